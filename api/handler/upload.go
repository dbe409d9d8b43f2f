package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
)

// Upload ingests one or more book files. Duplicates of an already stored
// (title, author, format) variant are skipped, everything else is stored
// with extracted metadata and cover.
func (h *Handler) Upload(c *gin.Context) {
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanUploadBooks }) {
		flash(c, "danger", "The guest account may not upload books.")
		c.Redirect(http.StatusFound, "/")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		flash(c, "danger", "The upload could not be read.")
		c.Redirect(http.StatusFound, "/")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		flash(c, "warning", "No files selected.")
		c.Redirect(http.StatusFound, "/")
		return
	}

	var (
		uploaded   int
		skipped    int
		failed     int
		totalBytes uint64
	)
	for _, file := range files {
		switch err := h.uploadOne(c, file); {
		case err == nil:
			uploaded++
			totalBytes += uint64(file.Size)
		case errors.Is(err, errDuplicateUpload):
			skipped++
		default:
			log.Error("upload failed", "file", file.Filename, "error", err)
			failed++
		}
	}

	msg := fmt.Sprintf("Uploaded %d book(s) (%s).", uploaded, humanize.Bytes(totalBytes))
	if skipped > 0 {
		msg += fmt.Sprintf(" Skipped %d duplicate(s).", skipped)
	}
	if failed > 0 {
		msg += fmt.Sprintf(" %d file(s) failed.", failed)
		flash(c, "warning", msg)
	} else {
		flash(c, "success", msg)
	}
	c.Redirect(http.StatusFound, "/")
}

var errDuplicateUpload = errors.New("duplicate upload")

// uploadOne stores a single uploaded file for the current user.
func (h *Handler) uploadOne(c *gin.Context, file *multipart.FileHeader) error {
	if !ebook.AllowedExtension(file.Filename) {
		return fmt.Errorf("unsupported file type: %s", file.Filename)
	}
	ctx := c.Request.Context()
	user := h.user(c)
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))

	tmp := filepath.Join(os.TempDir(), "leaflib-upload-"+uuid.NewString()+"."+format)
	if err := c.SaveUploadedFile(file, tmp); err != nil {
		return fmt.Errorf("failed to store upload: %w", err)
	}
	defer os.Remove(tmp)

	meta, err := h.tool.Metadata(ctx, tmp)
	if err != nil {
		// A missing or unreadable tool degrades to file-name metadata
		// instead of rejecting the upload.
		log.Warn("metadata extraction failed, using file name", "file", file.Filename, "error", err)
		meta = ebook.FromFilename(file.Filename)
	}

	exists, err := h.db.BookExists(ctx, user.ID, meta.Title, meta.Author, format)
	if err != nil {
		return err
	}
	if exists {
		return errDuplicateUpload
	}

	filename := ebook.StorageFilename(meta.Title, meta.Author, format)
	dest := ebook.StoragePath(h.cfg.BooksDir(), user.ID, filename)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := copyFile(tmp, dest); err != nil {
		return fmt.Errorf("failed to move upload into the library: %w", err)
	}

	book := &database.Book{
		Filename:    filename,
		Title:       meta.Title,
		Author:      meta.Author,
		Format:      format,
		Tags:        meta.Tags,
		Description: meta.Description,
		Series:      meta.Series,
		SeriesIndex: meta.SeriesIndex,
		Publisher:   meta.Publisher,
		Pubdate:     meta.Pubdate,
		Language:    meta.Language,
		UserID:      user.ID,
	}
	if err := h.db.CreateBook(ctx, book); err != nil {
		os.Remove(dest)
		return err
	}

	// Cover extraction failure leaves the placeholder; the backfill job
	// retries later.
	if err := h.covers.Extract(ctx, dest, user.ID, book.ID); err != nil {
		log.Debug("no cover extracted on upload", "book", meta.Title, "error", err)
	} else if err := h.db.SetHasCover(ctx, book.ID, true); err != nil {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
