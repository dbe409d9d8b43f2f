package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/vquang/leaflib/ebook"
)

// ManageUsers renders the admin user management page.
func (h *Handler) ManageUsers(c *gin.Context) {
	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		log.Error("failed to list users", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	h.render(c, http.StatusOK, "manage_users.html", gin.H{
		"Title": "Manage users",
		"Users": users,
	})
}

// ToggleAdmin flips the admin flag on a user. The reserved accounts cannot
// be promoted or demoted.
func (h *Handler) ToggleAdmin(c *gin.Context) {
	userID, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	target, err := h.db.GetUser(c.Request.Context(), userID)
	if err != nil {
		notFound(c)
		return
	}
	if target.IsSystem() {
		flash(c, "danger", "The reserved accounts cannot be changed.")
		c.Redirect(http.StatusFound, "/manage_users")
		return
	}

	if err := h.db.SetAdmin(c.Request.Context(), target.ID, !target.IsAdmin); err != nil {
		log.Error("failed to toggle admin", "user", target.Username, "error", err)
		flash(c, "danger", "Changing the admin flag failed.")
	} else if target.IsAdmin {
		flash(c, "success", target.Username+" is no longer an admin.")
	} else {
		flash(c, "success", target.Username+" is now an admin.")
	}
	c.Redirect(http.StatusFound, "/manage_users")
}

// DeleteUser removes a user together with all their books, covers and
// files.
func (h *Handler) DeleteUser(c *gin.Context) {
	userID, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	ctx := c.Request.Context()
	target, err := h.db.GetUser(ctx, userID)
	if err != nil {
		notFound(c)
		return
	}
	if target.IsSystem() {
		flash(c, "danger", "The reserved accounts cannot be deleted.")
		c.Redirect(http.StatusFound, "/manage_users")
		return
	}

	// Collect the file names before the rows are gone.
	books, err := h.db.BooksOfUser(ctx, target.ID)
	if err != nil {
		log.Error("failed to collect user books", "user", target.Username, "error", err)
		flash(c, "danger", "Deleting the user failed.")
		c.Redirect(http.StatusFound, "/manage_users")
		return
	}

	if err := h.db.DeleteUser(ctx, target.ID); err != nil {
		log.Error("failed to delete user", "user", target.Username, "error", err)
		flash(c, "danger", "Deleting the user failed.")
		c.Redirect(http.StatusFound, "/manage_users")
		return
	}
	for i := range books {
		h.removeBookFiles(&books[i])
	}
	if err := os.RemoveAll(ebook.UserStorageDir(h.cfg.BooksDir(), target.ID)); err != nil {
		log.Warn("failed to remove user book directory", "user", target.Username, "error", err)
	}
	h.covers.RemoveUser(target.ID)

	flash(c, "success", "Deleted "+target.Username+" and their library.")
	c.Redirect(http.StatusFound, "/manage_users")
}

// GuestPermissionsPage renders the guest permission toggles.
func (h *Handler) GuestPermissionsPage(c *gin.Context) {
	perms, err := h.db.GuestPermissions(c.Request.Context())
	if err != nil {
		log.Error("failed to load guest permissions", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	h.render(c, http.StatusOK, "guest_permissions.html", gin.H{
		"Title": "Guest permissions",
		"Perms": perms,
	})
}

// SaveGuestPermissions stores the guest permission toggles and drops the
// cached row.
func (h *Handler) SaveGuestPermissions(c *gin.Context) {
	perms, err := h.db.GuestPermissions(c.Request.Context())
	if err != nil {
		log.Error("failed to load guest permissions", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}

	on := func(name string) bool { return c.PostForm(name) == "on" }
	perms.CanRate = on("can_rate")
	perms.CanEditBooks = on("can_edit_books")
	perms.CanUploadBooks = on("can_upload_books")
	perms.CanDeleteBooks = on("can_delete_books")
	perms.CanConvertBooks = on("can_convert_books")
	perms.CanBookmark = on("can_bookmark")
	perms.CanFavorite = on("can_favorite")

	if err := h.db.SaveGuestPermissions(c.Request.Context(), perms); err != nil {
		log.Error("failed to save guest permissions", "error", err)
		flash(c, "danger", "Saving the permissions failed.")
	} else {
		h.cache.ClearGuestPermissions()
		flash(c, "success", "Guest permissions saved.")
	}
	c.Redirect(http.StatusFound, "/guest_permissions")
}

// SettingsPage renders the server settings form.
func (h *Handler) SettingsPage(c *gin.Context) {
	h.render(c, http.StatusOK, "settings.html", gin.H{
		"Title":  "Settings",
		"Config": h.cfg,
	})
}

// SaveSettings writes the edited settings back to the config file. Data
// path and port changes only take effect after a restart.
func (h *Handler) SaveSettings(c *gin.Context) {
	libraryName := strings.TrimSpace(c.PostForm("library_name"))
	dataPath := strings.TrimSpace(c.PostForm("data_path"))
	portStr := strings.TrimSpace(c.PostForm("port"))
	theme := c.DefaultPostForm("theme", h.cfg.Theme)
	themeColor := c.DefaultPostForm("theme_color", h.cfg.ThemeColor)

	if libraryName == "" || dataPath == "" {
		flash(c, "danger", "Library name and data path must not be empty.")
		c.Redirect(http.StatusFound, "/settings")
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		flash(c, "danger", "The port must be a number between 1 and 65535.")
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	restartNeeded := dataPath != h.cfg.DataPath || port != h.cfg.Port

	h.cfg.LibraryName = libraryName
	h.cfg.DataPath = dataPath
	h.cfg.Port = port
	h.cfg.Theme = theme
	h.cfg.ThemeColor = themeColor

	if err := h.cfg.Save(); err != nil {
		log.Error("failed to save config", "error", err)
		flash(c, "danger", "Writing the config file failed.")
	} else if restartNeeded {
		flash(c, "warning", "Settings saved. Restart the server to apply the new data path or port.")
	} else {
		flash(c, "success", "Settings saved.")
	}
	c.Redirect(http.StatusFound, "/settings")
}

// underDir reports whether path equals root or lies below it. A plain
// prefix check would also admit siblings like /home/user2 for /home/user.
func underDir(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// Browse lists directories for the data-path picker, rooted at the home
// directory of the server user.
func (h *Handler) Browse(c *gin.Context) {
	home, err := os.UserHomeDir()
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "no home directory")
		return
	}

	reqPath := c.DefaultQuery("path", home)
	absPath, err := filepath.Abs(reqPath)
	if err != nil || !underDir(absPath, home) {
		absPath = home
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "cannot read directory")
		return
	}

	type dirEntry struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	dirs := make([]dirEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, dirEntry{
			Name: entry.Name(),
			Path: filepath.Join(absPath, entry.Name()),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })

	parent := filepath.Dir(absPath)
	if !underDir(parent, home) {
		parent = home
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"path":    absPath,
		"parent":  parent,
		"dirs":    dirs,
	})
}
