// Package cache keeps per-request hot lookups out of the database.
package cache

import (
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"

	"github.com/vquang/leaflib/database"
)

const (
	guestPermsKey = "guest_permissions"
	guestPermsTTL = 30 * time.Second
)

// Manager wraps the in-process TTL cache.
type Manager struct {
	cache *gocache.Cache
}

// NewManager creates a cache manager with sane expiry defaults.
func NewManager() *Manager {
	return &Manager{
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// GuestPermissions returns the cached guest permission row, if present.
// The row is read on nearly every guest request, so it gets a short TTL.
func (m *Manager) GuestPermissions() (*database.GuestPermission, bool) {
	if data, found := m.cache.Get(guestPermsKey); found {
		if perms, ok := data.(*database.GuestPermission); ok {
			return perms, true
		}
	}
	return nil, false
}

// SetGuestPermissions stores the guest permission row.
func (m *Manager) SetGuestPermissions(perms *database.GuestPermission) {
	m.cache.Set(guestPermsKey, perms, guestPermsTTL)
	log.Debug("cached guest permissions")
}

// ClearGuestPermissions drops the cached row after an admin edit.
func (m *Manager) ClearGuestPermissions() {
	m.cache.Delete(guestPermsKey)
}
