package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vquang/leaflib/database"
)

// ImportCalibrePage renders the calibre import form.
func (h *Handler) ImportCalibrePage(c *gin.Context) {
	h.render(c, http.StatusOK, "import_calibre.html", gin.H{
		"Title": "Import a calibre library",
	})
}

// ImportCalibre ingests an uploaded calibre export zip into the current
// user's library.
func (h *Handler) ImportCalibre(c *gin.Context) {
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanUploadBooks }) {
		flash(c, "danger", "The guest account may not import books.")
		c.Redirect(http.StatusFound, "/")
		return
	}

	file, err := c.FormFile("archive")
	if err != nil {
		flash(c, "warning", "No archive selected.")
		c.Redirect(http.StatusFound, "/import_calibre")
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".zip") {
		flash(c, "danger", "The import must be a zip archive.")
		c.Redirect(http.StatusFound, "/import_calibre")
		return
	}

	tmp := filepath.Join(os.TempDir(), "leaflib-import-"+uuid.NewString()+".zip")
	if err := c.SaveUploadedFile(file, tmp); err != nil {
		log.Error("failed to store import archive", "error", err)
		flash(c, "danger", "The upload could not be stored.")
		c.Redirect(http.StatusFound, "/import_calibre")
		return
	}
	defer os.Remove(tmp)

	log.Info("starting calibre import", "user", h.user(c).Username, "size", humanize.Bytes(uint64(file.Size)))
	sum, err := h.imp.ImportZip(c.Request.Context(), tmp, h.user(c).ID)
	if err != nil {
		log.Error("calibre import failed", "error", err)
		flash(c, "danger", "The archive could not be imported.")
		c.Redirect(http.StatusFound, "/import_calibre")
		return
	}

	msg := fmt.Sprintf("Imported %d book(s), skipped %d duplicate(s).", sum.Imported, sum.Skipped)
	if len(sum.Errors) > 0 {
		msg += fmt.Sprintf(" %d item(s) failed.", len(sum.Errors))
		flash(c, "warning", msg)
	} else {
		flash(c, "success", msg)
	}
	c.Redirect(http.StatusFound, "/")
}
