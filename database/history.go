package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// TouchReadingHistory records that the user opened the reader for this
// format variant.
func (c *Client) TouchReadingHistory(ctx context.Context, userID, bookID uint) error {
	entry, err := c.getHistory(ctx, userID, bookID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return c.db.WithContext(ctx).Create(&ReadingHistory{
			UserID:   userID,
			BookID:   bookID,
			LastRead: time.Now().UTC(),
		}).Error
	}
	return c.db.WithContext(ctx).Model(entry).Update("last_read", time.Now().UTC()).Error
}

// ReaderSettings returns the stored reader settings blob for this
// (user, format variant), or "{}" when none exist. The blob is opaque to
// the server.
func (c *Client) ReaderSettings(ctx context.Context, userID, bookID uint) (string, error) {
	entry, err := c.getHistory(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "{}", nil
		}
		return "", err
	}
	if entry.Settings == "" {
		return "{}", nil
	}
	return entry.Settings, nil
}

// SaveReaderSettings stores the reader settings blob verbatim, creating the
// history entry if needed.
func (c *Client) SaveReaderSettings(ctx context.Context, userID, bookID uint, settings string) error {
	entry, err := c.getHistory(ctx, userID, bookID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return c.db.WithContext(ctx).Create(&ReadingHistory{
			UserID:   userID,
			BookID:   bookID,
			LastRead: time.Now().UTC(),
			Settings: settings,
		}).Error
	}
	return c.db.WithContext(ctx).Model(entry).Update("settings", settings).Error
}

func (c *Client) getHistory(ctx context.Context, userID, bookID uint) (*ReadingHistory, error) {
	var entry ReadingHistory
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
