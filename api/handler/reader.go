package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// ReadOnline renders the in-browser EPUB reader for one format variant and
// records the read in the user's history.
func (h *Handler) ReadOnline(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	if book.Format != "epub" {
		flash(c, "warning", "Only EPUB books can be read in the browser.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	ctx := c.Request.Context()
	user := h.user(c)

	if err := h.db.TouchReadingHistory(ctx, user.ID, book.ID); err != nil {
		log.Error("failed to record reading history", "error", err)
	}
	settings, err := h.db.ReaderSettings(ctx, user.ID, book.ID)
	if err != nil {
		log.Error("failed to load reader settings", "error", err)
		settings = "{}"
	}

	h.render(c, http.StatusOK, "read_online.html", gin.H{
		"Title":    book.Title,
		"Book":     book,
		"Settings": settings,
	})
}

// SaveReaderSettings stores the reader's display settings blob verbatim.
// The shape of the blob belongs to the client; last writer wins.
func (h *Handler) SaveReaderSettings(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		jsonError(c, http.StatusNotFound, "book not found")
		return
	}

	var req struct {
		Settings string `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Settings == "" {
		req.Settings = "{}"
	}

	if err := h.db.SaveReaderSettings(c.Request.Context(), h.user(c).ID, book.ID, req.Settings); err != nil {
		log.Error("failed to save reader settings", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
