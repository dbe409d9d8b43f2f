package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrListNameTaken is returned when the user already has a shelf with the
// same name.
var ErrListNameTaken = errors.New("a shelf with this name already exists")

// CreateList creates a named shelf for the user.
func (c *Client) CreateList(ctx context.Context, userID uint, name string) (*BookList, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&BookList{}).
		Where("user_id = ? AND name = ?", userID, name).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check shelf name: %w", err)
	}
	if count > 0 {
		return nil, ErrListNameTaken
	}
	list := BookList{Name: name, UserID: userID}
	if err := c.db.WithContext(ctx).Create(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to create shelf: %w", err)
	}
	return &list, nil
}

// GetList returns the user's shelf with the given id. Ownership is part of
// the lookup so a foreign list id behaves like a missing one.
func (c *Client) GetList(ctx context.Context, userID, listID uint) (*BookList, error) {
	var list BookList
	if err := c.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", listID, userID).
		First(&list).Error; err != nil {
		return nil, err
	}
	return &list, nil
}

// ListsOf returns all shelves of a user, sorted by name.
func (c *Client) ListsOf(ctx context.Context, userID uint) ([]BookList, error) {
	var lists []BookList
	if err := c.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name").
		Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

// ListContainsGroup reports whether any format variant of rep's logical
// book is on the shelf.
func (c *Client) ListContainsGroup(ctx context.Context, listID uint, rep *Book) (bool, error) {
	ids, err := c.groupIDs(ctx, rep)
	if err != nil {
		return false, err
	}
	var count int64
	err = c.db.WithContext(ctx).Table("book_list_books").
		Where("book_list_id = ? AND book_id IN ?", listID, ids).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check shelf membership: %w", err)
	}
	return count > 0, nil
}

// AddGroupToList puts every format variant of rep's logical book on the
// shelf.
func (c *Client) AddGroupToList(ctx context.Context, list *BookList, rep *Book) error {
	variants, err := c.FormatsOf(ctx, rep)
	if err != nil {
		return err
	}
	if err := c.db.WithContext(ctx).Model(list).Association("Books").Append(&variants); err != nil {
		return fmt.Errorf("failed to add to shelf: %w", err)
	}
	return nil
}

// RemoveGroupFromList removes every format variant of rep's logical book
// from the shelf.
func (c *Client) RemoveGroupFromList(ctx context.Context, list *BookList, rep *Book) error {
	variants, err := c.FormatsOf(ctx, rep)
	if err != nil {
		return err
	}
	if err := c.db.WithContext(ctx).Model(list).Association("Books").Delete(&variants); err != nil {
		return fmt.Errorf("failed to remove from shelf: %w", err)
	}
	return nil
}
