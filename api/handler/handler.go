// Package handler holds the gin handlers, one file per route family.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/vquang/leaflib/api/cache"
	"github.com/vquang/leaflib/config"
	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
	"github.com/vquang/leaflib/importer"
)

// UserContextKey is where the auth middleware stores the logged-in user.
const UserContextKey = "user"

// Flash is one queued flash message.
type Flash struct {
	Category string
	Message  string
}

type Handler struct {
	cfg    *config.Config
	db     *database.Client
	covers *cover.Processor
	tool   *ebook.Tool
	imp    *importer.Importer
	cache  *cache.Manager
}

func New(
	cfg *config.Config,
	db *database.Client,
	covers *cover.Processor,
	tool *ebook.Tool,
	imp *importer.Importer,
	cm *cache.Manager,
) *Handler {
	return &Handler{
		cfg:    cfg,
		db:     db,
		covers: covers,
		tool:   tool,
		imp:    imp,
		cache:  cm,
	}
}

// user returns the logged-in user placed in the context by the auth
// middleware. Handlers behind RequireAuth may rely on it being present.
func (h *Handler) user(c *gin.Context) *database.User {
	return c.MustGet(UserContextKey).(*database.User)
}

// guestPerms returns the guest permission row, through the short-TTL cache.
func (h *Handler) guestPerms(c *gin.Context) *database.GuestPermission {
	if perms, ok := h.cache.GuestPermissions(); ok {
		return perms
	}
	perms, err := h.db.GuestPermissions(c.Request.Context())
	if err != nil {
		log.Error("failed to load guest permissions", "error", err)
		return &database.GuestPermission{}
	}
	h.cache.SetGuestPermissions(perms)
	return perms
}

// guestAllowed checks one guest permission toggle for the current user.
// Non-guest users always pass.
func (h *Handler) guestAllowed(c *gin.Context, allowed func(*database.GuestPermission) bool) bool {
	if !h.user(c).IsGuest() {
		return true
	}
	return allowed(h.guestPerms(c))
}

// flash queues a message for the next rendered page.
func flash(c *gin.Context, category, message string) {
	session := sessions.Default(c)
	session.AddFlash(category + "|" + message)
	if err := session.Save(); err != nil {
		log.Error("failed to save session", "error", err)
	}
}

// takeFlashes drains the queued flash messages.
func takeFlashes(c *gin.Context) []Flash {
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(); err != nil {
		log.Error("failed to save session", "error", err)
	}
	flashes := make([]Flash, 0, len(raw))
	for _, f := range raw {
		s, ok := f.(string)
		if !ok {
			continue
		}
		category, message, found := strings.Cut(s, "|")
		if !found {
			category, message = "info", s
		}
		flashes = append(flashes, Flash{Category: category, Message: message})
	}
	return flashes
}

// render writes an HTML page with the fields every template expects.
func (h *Handler) render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["LibraryName"] = h.cfg.LibraryName
	data["Theme"] = h.cfg.Theme
	data["ThemeColor"] = h.cfg.ThemeColor
	data["Flashes"] = takeFlashes(c)
	if user, exists := c.Get(UserContextKey); exists {
		data["User"] = user
		data["GuestPerms"] = h.guestPerms(c)
	}
	c.HTML(status, page, data)
}

// idParam parses the :id route parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// pageParam parses the ?page query parameter, defaulting to 1.
func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// jsonError writes the uniform JSON error shape used by the API routes.
func jsonError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func notFound(c *gin.Context) {
	c.String(http.StatusNotFound, "not found")
}
