package database

import (
	"context"
	"fmt"
)

// GuestPermissions returns the single global permission row for the guest
// account.
func (c *Client) GuestPermissions(ctx context.Context) (*GuestPermission, error) {
	var perms GuestPermission
	if err := c.db.WithContext(ctx).First(&perms).Error; err != nil {
		return nil, fmt.Errorf("failed to load guest permissions: %w", err)
	}
	return &perms, nil
}

// SaveGuestPermissions persists the guest permission toggles.
func (c *Client) SaveGuestPermissions(ctx context.Context, perms *GuestPermission) error {
	if err := c.db.WithContext(ctx).Save(perms).Error; err != nil {
		return fmt.Errorf("failed to save guest permissions: %w", err)
	}
	return nil
}
