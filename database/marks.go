package database

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// groupIDs resolves rep's logical book to the ids of all its format
// variants.
func (c *Client) groupIDs(ctx context.Context, rep *Book) ([]uint, error) {
	variants, err := c.FormatsOf(ctx, rep)
	if err != nil {
		return nil, err
	}
	return lo.Map(variants, func(b Book, _ int) uint { return b.ID }), nil
}

// ToggleFavorite flips the favorite state of rep's logical book for the
// user. The marker is fanned out to every format variant so that any
// variant row implies the state. Returns true when the book is now
// favorited.
func (c *Client) ToggleFavorite(ctx context.Context, userID uint, rep *Book) (bool, error) {
	ids, err := c.groupIDs(ctx, rep)
	if err != nil {
		return false, err
	}

	var count int64
	if err := c.db.WithContext(ctx).Model(&Favorite{}).
		Where("user_id = ? AND book_id IN ?", userID, ids).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}

	if count > 0 {
		err := c.db.WithContext(ctx).
			Where("user_id = ? AND book_id IN ?", userID, ids).
			Delete(&Favorite{}).Error
		return false, err
	}

	return true, c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := tx.Create(&Favorite{UserID: userID, BookID: id}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ToggleBookmark flips the bookmark state of rep's logical book for the
// user, with the same fan-out semantics as ToggleFavorite.
func (c *Client) ToggleBookmark(ctx context.Context, userID uint, rep *Book) (bool, error) {
	ids, err := c.groupIDs(ctx, rep)
	if err != nil {
		return false, err
	}

	var count int64
	if err := c.db.WithContext(ctx).Model(&Bookmark{}).
		Where("user_id = ? AND book_id IN ?", userID, ids).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check bookmark: %w", err)
	}

	if count > 0 {
		err := c.db.WithContext(ctx).
			Where("user_id = ? AND book_id IN ?", userID, ids).
			Delete(&Bookmark{}).Error
		return false, err
	}

	return true, c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := tx.Create(&Bookmark{UserID: userID, BookID: id}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// IsFavorited reports whether any format variant of rep's logical book is
// favorited by the user.
func (c *Client) IsFavorited(ctx context.Context, userID uint, rep *Book) (bool, error) {
	ids, err := c.groupIDs(ctx, rep)
	if err != nil {
		return false, err
	}
	var count int64
	err = c.db.WithContext(ctx).Model(&Favorite{}).
		Where("user_id = ? AND book_id IN ?", userID, ids).
		Count(&count).Error
	return count > 0, err
}

// IsBookmarked reports whether any format variant of rep's logical book is
// bookmarked by the user.
func (c *Client) IsBookmarked(ctx context.Context, userID uint, rep *Book) (bool, error) {
	ids, err := c.groupIDs(ctx, rep)
	if err != nil {
		return false, err
	}
	var count int64
	err = c.db.WithContext(ctx).Model(&Bookmark{}).
		Where("user_id = ? AND book_id IN ?", userID, ids).
		Count(&count).Error
	return count > 0, err
}

// FavoritedGroupKeys returns the GroupKeys of every logical book the user
// has favorited, used to decorate listings without per-row queries.
func (c *Client) FavoritedGroupKeys(ctx context.Context, userID uint) (map[string]struct{}, error) {
	return c.markedGroupKeys(ctx, userID, "favorites")
}

// BookmarkedGroupKeys returns the GroupKeys of every logical book the user
// has bookmarked.
func (c *Client) BookmarkedGroupKeys(ctx context.Context, userID uint) (map[string]struct{}, error) {
	return c.markedGroupKeys(ctx, userID, "bookmarks")
}

func (c *Client) markedGroupKeys(ctx context.Context, userID uint, table string) (map[string]struct{}, error) {
	type pair struct {
		Title  string
		Author string
	}
	var pairs []pair
	err := c.db.WithContext(ctx).Model(&Book{}).
		Select("DISTINCT books.title, books.author").
		Joins(fmt.Sprintf("JOIN %s m ON m.book_id = books.id", table)).
		Where("m.user_id = ? AND m.deleted_at IS NULL", userID).
		Scan(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to collect marked group keys: %w", err)
	}
	keys := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		keys[GroupKey(p.Title, p.Author)] = struct{}{}
	}
	return keys, nil
}
