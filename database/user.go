package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned by Authenticate when the username is
// unknown or the password does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrUsernameTaken is returned by CreateUser for duplicate or reserved
// usernames.
var ErrUsernameTaken = errors.New("username already taken")

// CreateUser registers a new non-admin account with a bcrypt-hashed
// password.
func (c *Client) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if username == AdminUsername || username == GuestUsername {
		return nil, ErrUsernameTaken
	}
	var count int64
	if err := c.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := User{Username: username, PasswordHash: string(hash)}
	if err := c.db.WithContext(ctx).Create(&user).Error; err != nil {
		log.Error("failed to create user", "error", err)
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies a username/password pair. The guest account logs in
// with an empty password.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := c.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.IsGuest() && password == "" {
		return user, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword replaces the user's password after verifying the current
// one.
func (c *Client) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return c.db.WithContext(ctx).Model(user).Update("password_hash", string(hash)).Error
}

// GetUser returns the user with the given id.
func (c *Client) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername returns the user with the given username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by username", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all accounts, reserved ones included.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListLibraryUsers returns all accounts except admin and guest, for the
// admin sidebar.
func (c *Client) ListLibraryUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.db.WithContext(ctx).
		Where("username NOT IN ?", []string{AdminUsername, GuestUsername}).
		Order("username").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetAdmin flips the admin flag on a user.
func (c *Client) SetAdmin(ctx context.Context, userID uint, admin bool) error {
	return c.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("is_admin", admin).Error
}

// DeleteUser removes the user and every row the user owns. The rows are
// hard-deleted so the username becomes available again; the caller removes
// the user's book and cover directories.
func (c *Client) DeleteUser(ctx context.Context, userID uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bookIDs []uint
		if err := tx.Model(&Book{}).Where("user_id = ?", userID).Pluck("id", &bookIDs).Error; err != nil {
			return err
		}
		if len(bookIDs) > 0 {
			if err := tx.Exec("DELETE FROM book_list_books WHERE book_id IN ?", bookIDs).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("book_id IN ?", bookIDs).Delete(&Bookmark{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("book_id IN ?", bookIDs).Delete(&Favorite{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("book_id IN ?", bookIDs).Delete(&ReadingHistory{}).Error; err != nil {
				return err
			}
		}
		for _, model := range []any{&Book{}, &BookList{}, &Bookmark{}, &Favorite{}, &ReadingHistory{}} {
			if err := tx.Unscoped().Where("user_id = ?", userID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&User{}, userID).Error
	})
}
