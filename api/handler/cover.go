package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Cover serves the processed cover thumbnail of a book variant. A missing
// thumbnail is generated lazily from the book file; when that fails too the
// shared placeholder is served.
func (h *Handler) Cover(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}

	path := h.covers.Path(book.UserID, book.ID)
	if !h.covers.Exists(book.UserID, book.ID) {
		err := h.covers.Extract(c.Request.Context(), h.bookFilePath(book), book.UserID, book.ID)
		if err != nil {
			log.Debug("lazy cover extraction failed", "book", book.Title, "error", err)
			path = h.covers.DefaultPath()
		} else if err := h.db.SetHasCover(c.Request.Context(), book.ID, true); err != nil {
			log.Error("failed to flag cover", "error", err)
		}
	}

	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "public, max-age=3600")
	c.File(path)
}

// CoverOriginal extracts and serves the embedded cover at full size,
// without the thumbnail pipeline.
func (h *Handler) CoverOriginal(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}

	tmp := filepath.Join(os.TempDir(), "leaflib-cover-"+uuid.NewString()+".jpg")
	defer os.Remove(tmp)

	if err := h.tool.ExtractCover(c.Request.Context(), h.bookFilePath(book), tmp); err != nil {
		log.Debug("full-size cover extraction failed", "book", book.Title, "error", err)
		c.Redirect(http.StatusFound, "/cover/"+c.Param("id"))
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(tmp)
}
