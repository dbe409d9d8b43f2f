// Package database wraps the gorm/sqlite store behind per-entity query
// methods.
package database

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PageSize is the number of logical books per listing page.
const PageSize = 18

// Client wraps the gorm.DB instance.
type Client struct {
	db *gorm.DB
}

// New opens (or creates) the sqlite database at dbfile, runs migrations and
// seeds the reserved accounts.
func New(dbfile string) (*Client, error) {
	db, err := gorm.Open(sqlite.Open(dbfile), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	c := &Client{db: db}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	if err := c.seed(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// NewInMemory opens a private in-memory database, used by tests. The
// connection pool is pinned to a single connection because every sqlite
// connection gets its own :memory: database.
func NewInMemory() (*Client, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	c := &Client{db: db}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	if err := c.seed(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) migrate() error {
	if err := c.db.AutoMigrate(
		&User{},
		&Book{},
		&BookList{},
		&Bookmark{},
		&Favorite{},
		&ReadingHistory{},
		&GuestPermission{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// seed creates the admin and guest accounts and the guest permission row if
// they do not exist yet.
func (c *Client) seed(ctx context.Context) error {
	var count int64
	if err := c.db.WithContext(ctx).Model(&User{}).Where("username = ?", AdminUsername).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check admin account: %w", err)
	}
	if count == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		if err := c.db.WithContext(ctx).Create(&User{
			Username:     AdminUsername,
			PasswordHash: string(hash),
			IsAdmin:      true,
		}).Error; err != nil {
			return fmt.Errorf("failed to seed admin account: %w", err)
		}
		log.Warn("created default admin account, change its password", "username", AdminUsername)
	}

	if err := c.db.WithContext(ctx).Model(&User{}).Where("username = ?", GuestUsername).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check guest account: %w", err)
	}
	if count == 0 {
		if err := c.db.WithContext(ctx).Create(&User{Username: GuestUsername}).Error; err != nil {
			return fmt.Errorf("failed to seed guest account: %w", err)
		}
	}

	if err := c.db.WithContext(ctx).Model(&GuestPermission{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check guest permissions: %w", err)
	}
	if count == 0 {
		if err := c.db.WithContext(ctx).Create(&GuestPermission{}).Error; err != nil {
			return fmt.Errorf("failed to seed guest permissions: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
