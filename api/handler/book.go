package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
)

const relatedBooksLimit = 6

// bookForUser loads a book and enforces ownership: only the owner or the
// admin may touch it. A foreign book behaves like a missing one.
func (h *Handler) bookForUser(c *gin.Context) (*database.Book, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}
	book, err := h.db.GetBook(c.Request.Context(), id)
	if err != nil {
		return nil, false
	}
	user := h.user(c)
	if !user.IsAdmin && book.UserID != user.ID {
		return nil, false
	}
	return book, true
}

func (h *Handler) bookFilePath(book *database.Book) string {
	return ebook.StoragePath(h.cfg.BooksDir(), book.UserID, book.Filename)
}

// contentTypeFor maps a book format to the MIME type used when serving it.
func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "epub":
		return "application/epub+zip"
	case "pdf":
		return "application/pdf"
	case "txt":
		return "text/plain; charset=utf-8"
	case "html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Detail renders the book page: all format variants, related books and the
// user's marks on the logical book.
func (h *Handler) Detail(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	ctx := c.Request.Context()
	user := h.user(c)

	formats, err := h.db.FormatsOf(ctx, book)
	if err != nil {
		log.Error("failed to load format variants", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	epubVariant, hasEpub := lo.Find(formats, func(b database.Book) bool { return b.Format == "epub" })

	related, err := h.db.RelatedBooks(ctx, book, relatedBooksLimit)
	if err != nil {
		log.Error("failed to load related books", "error", err)
	}

	favorited, err := h.db.IsFavorited(ctx, user.ID, book)
	if err != nil {
		log.Error("failed to check favorite", "error", err)
	}
	bookmarked, err := h.db.IsBookmarked(ctx, user.ID, book)
	if err != nil {
		log.Error("failed to check bookmark", "error", err)
	}

	lists, err := h.db.ListsOf(ctx, user.ID)
	if err != nil {
		log.Error("failed to load shelves", "error", err)
	}

	h.render(c, http.StatusOK, "book_detail.html", gin.H{
		"Title":          book.Title,
		"Book":           book,
		"Formats":        formats,
		"Related":        related,
		"Favorited":      favorited,
		"Bookmarked":     bookmarked,
		"Lists":          lists,
		"HasEpub":        hasEpub,
		"EpubVariant":    epubVariant,
		"ConvertTargets": ebook.ConvertTargets,
	})
}

// EditPage renders the metadata edit form.
func (h *Handler) EditPage(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanEditBooks }) {
		flash(c, "danger", "The guest account may not edit books.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	h.render(c, http.StatusOK, "edit_book.html", gin.H{
		"Title": "Edit " + book.Title,
		"Book":  book,
	})
}

// Edit applies a metadata edit to every format variant of the logical book.
// A series index collision re-renders the form with the attempted values so
// nothing typed is lost.
func (h *Handler) Edit(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanEditBooks }) {
		flash(c, "danger", "The guest account may not edit books.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	ctx := c.Request.Context()

	seriesIndex, _ := strconv.Atoi(c.PostForm("series_index"))
	edit := database.BookEdit{
		Title:       strings.TrimSpace(c.PostForm("title")),
		Author:      strings.TrimSpace(c.PostForm("author")),
		Tags:        strings.TrimSpace(c.PostForm("tags")),
		Description: strings.TrimSpace(c.PostForm("description")),
		Series:      strings.TrimSpace(c.PostForm("series")),
		SeriesIndex: seriesIndex,
		Publisher:   strings.TrimSpace(c.PostForm("publisher")),
		Pubdate:     strings.TrimSpace(c.PostForm("pubdate")),
		Language:    strings.TrimSpace(c.PostForm("language")),
	}

	rerender := func(message string) {
		attempted := *book
		attempted.Title = edit.Title
		attempted.Author = edit.Author
		attempted.Tags = edit.Tags
		attempted.Description = edit.Description
		attempted.Series = edit.Series
		attempted.SeriesIndex = edit.SeriesIndex
		attempted.Publisher = edit.Publisher
		attempted.Pubdate = edit.Pubdate
		attempted.Language = edit.Language
		flash(c, "danger", message)
		h.render(c, http.StatusOK, "edit_book.html", gin.H{
			"Title": "Edit " + book.Title,
			"Book":  &attempted,
		})
	}

	if edit.Title == "" || edit.Author == "" {
		rerender("Title and author must not be empty.")
		return
	}

	if err := h.db.UpdateLogicalBook(ctx, book, edit); err != nil {
		if errors.Is(err, database.ErrSeriesIndexTaken) {
			rerender(fmt.Sprintf("Series %q already has a book at index %d.", edit.Series, edit.SeriesIndex))
			return
		}
		log.Error("failed to update book", "book", book.Title, "error", err)
		flash(c, "danger", "Saving the changes failed.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}

	if err := h.applyUploadedCover(c, book); err != nil {
		flash(c, "warning", "Metadata saved, but the cover image could not be used.")
	} else {
		flash(c, "success", "Changes saved.")
	}
	c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
}

// applyUploadedCover installs an optional cover image from the edit form on
// every format variant of the logical book.
func (h *Handler) applyUploadedCover(c *gin.Context, book *database.Book) error {
	file, err := c.FormFile("cover")
	if err != nil {
		// No file uploaded.
		return nil
	}

	tmp := filepath.Join(os.TempDir(), "leaflib-upload-"+uuid.NewString())
	if err := c.SaveUploadedFile(file, tmp); err != nil {
		return err
	}
	defer os.Remove(tmp)

	variants, err := h.db.FormatsOf(c.Request.Context(), book)
	if err != nil {
		return err
	}
	for _, v := range variants {
		if err := h.covers.Install(tmp, v.UserID, v.ID); err != nil {
			return err
		}
		if err := h.db.SetHasCover(c.Request.Context(), v.ID, true); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the whole logical book: every variant row, its files and
// its covers.
func (h *Handler) Delete(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanDeleteBooks }) {
		flash(c, "danger", "The guest account may not delete books.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}

	deleted, err := h.db.DeleteLogicalBook(c.Request.Context(), book)
	if err != nil {
		log.Error("failed to delete book", "book", book.Title, "error", err)
		flash(c, "danger", "Deleting the book failed.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	for _, b := range deleted {
		h.removeBookFiles(&b)
	}
	flash(c, "success", fmt.Sprintf("Deleted %q.", book.Title))
	c.Redirect(http.StatusFound, "/")
}

// DeleteFormat removes a single format variant. The user lands on another
// variant of the same logical book, or on the index when none is left.
func (h *Handler) DeleteFormat(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanDeleteBooks }) {
		flash(c, "danger", "The guest account may not delete books.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	ctx := c.Request.Context()

	if err := h.db.DeleteBook(ctx, book.ID); err != nil {
		log.Error("failed to delete format", "book", book.Title, "format", book.Format, "error", err)
		flash(c, "danger", "Deleting the file failed.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	h.removeBookFiles(book)
	flash(c, "success", fmt.Sprintf("Removed the %s file of %q.", book.Format, book.Title))

	remaining, err := h.db.FormatsOf(ctx, book)
	if err == nil && len(remaining) > 0 {
		c.Redirect(http.StatusFound, fmt.Sprintf("/book/%d", remaining[0].ID))
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// removeBookFiles deletes a variant's stored file and cover from disk.
func (h *Handler) removeBookFiles(book *database.Book) {
	if err := os.Remove(h.bookFilePath(book)); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove book file", "file", book.Filename, "error", err)
	}
	h.covers.Remove(book.UserID, book.ID)
}

// Convert produces a new format variant with ebook-convert.
func (h *Handler) Convert(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanConvertBooks }) {
		flash(c, "danger", "The guest account may not convert books.")
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}
	ctx := c.Request.Context()
	detailURL := "/book/" + c.Param("id")

	target := strings.ToLower(strings.TrimSpace(c.PostForm("target_format")))
	if !lo.Contains(ebook.ConvertTargets, target) {
		flash(c, "danger", "Unsupported target format.")
		c.Redirect(http.StatusFound, detailURL)
		return
	}
	if target == book.Format {
		flash(c, "warning", "The book is already stored in this format.")
		c.Redirect(http.StatusFound, detailURL)
		return
	}
	exists, err := h.db.BookExists(ctx, book.UserID, book.Title, book.Author, target)
	if err == nil && exists {
		flash(c, "warning", fmt.Sprintf("A %s version already exists.", target))
		c.Redirect(http.StatusFound, detailURL)
		return
	}

	filename := ebook.StorageFilename(book.Title, book.Author, target)
	dst := ebook.StoragePath(h.cfg.BooksDir(), book.UserID, filename)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		log.Error("failed to create user book directory", "error", err)
		flash(c, "danger", "Conversion failed.")
		c.Redirect(http.StatusFound, detailURL)
		return
	}
	if err := h.tool.Convert(ctx, h.bookFilePath(book), dst); err != nil {
		log.Error("conversion failed", "book", book.Title, "target", target, "error", err)
		flash(c, "danger", conversionErrorMessage(err))
		c.Redirect(http.StatusFound, detailURL)
		return
	}

	variant := &database.Book{
		Filename:    filename,
		Title:       book.Title,
		Author:      book.Author,
		Format:      target,
		Tags:        book.Tags,
		Description: book.Description,
		Rating:      book.Rating,
		Series:      book.Series,
		SeriesIndex: book.SeriesIndex,
		Publisher:   book.Publisher,
		Pubdate:     book.Pubdate,
		Language:    book.Language,
		UserID:      book.UserID,
	}
	if err := h.db.CreateBook(ctx, variant); err != nil {
		os.Remove(dst)
		log.Error("failed to store converted variant", "error", err)
		flash(c, "danger", "Conversion succeeded but storing the file failed.")
		c.Redirect(http.StatusFound, detailURL)
		return
	}

	// Reuse the source variant's cover; fall back to extracting one from
	// the converted file.
	if h.covers.Exists(book.UserID, book.ID) {
		err = h.covers.Install(h.covers.Path(book.UserID, book.ID), variant.UserID, variant.ID)
	} else {
		err = h.covers.Extract(ctx, dst, variant.UserID, variant.ID)
	}
	if err == nil {
		if err := h.db.SetHasCover(ctx, variant.ID, true); err != nil {
			log.Error("failed to flag cover", "error", err)
		}
	}

	flash(c, "success", fmt.Sprintf("Created a %s version of %q.", target, book.Title))
	c.Redirect(http.StatusFound, fmt.Sprintf("/book/%d", variant.ID))
}

// conversionErrorMessage maps tool errors to something a user can act on.
func conversionErrorMessage(err error) string {
	switch {
	case errors.Is(err, ebook.ErrToolNotFound):
		return "Conversion is unavailable: calibre is not installed on the server."
	case errors.Is(err, ebook.ErrTimeout):
		return "The conversion took too long and was aborted."
	default:
		return "The conversion failed. The file may be corrupt or DRM-protected."
	}
}

// Rate sets the star rating on every variant of the logical book.
func (h *Handler) Rate(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		jsonError(c, http.StatusNotFound, "book not found")
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanRate }) {
		jsonError(c, http.StatusForbidden, "the guest account may not rate books")
		return
	}

	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating < 0 || req.Rating > 5 {
		jsonError(c, http.StatusBadRequest, "rating must be between 0 and 5")
		return
	}
	if err := h.db.RateLogicalBook(c.Request.Context(), book, req.Rating); err != nil {
		log.Error("failed to rate book", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "rating": req.Rating})
}

// ToggleFavorite flips the favorite mark on the logical book.
func (h *Handler) ToggleFavorite(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		jsonError(c, http.StatusNotFound, "book not found")
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanFavorite }) {
		jsonError(c, http.StatusForbidden, "the guest account may not favorite books")
		return
	}
	added, err := h.db.ToggleFavorite(c.Request.Context(), h.user(c).ID, book)
	if err != nil {
		log.Error("failed to toggle favorite", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "favorited": added})
}

// ToggleBookmark flips the bookmark on the logical book.
func (h *Handler) ToggleBookmark(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		jsonError(c, http.StatusNotFound, "book not found")
		return
	}
	if !h.guestAllowed(c, func(p *database.GuestPermission) bool { return p.CanBookmark }) {
		jsonError(c, http.StatusForbidden, "the guest account may not bookmark books")
		return
	}
	added, err := h.db.ToggleBookmark(c.Request.Context(), h.user(c).ID, book)
	if err != nil {
		log.Error("failed to toggle bookmark", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bookmarked": added})
}

// Download sends the book file as an attachment.
func (h *Handler) Download(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	path := h.bookFilePath(book)
	if _, err := os.Stat(path); err != nil {
		log.Error("book file missing on disk", "file", book.Filename)
		notFound(c)
		return
	}
	c.Header("Content-Type", contentTypeFor(book.Format))
	c.FileAttachment(path, fmt.Sprintf("%s - %s.%s", book.Author, book.Title, book.Format))
}

// ServeBookFile streams the book file inline, for the in-browser reader.
func (h *Handler) ServeBookFile(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		notFound(c)
		return
	}
	path := h.bookFilePath(book)
	if _, err := os.Stat(path); err != nil {
		notFound(c)
		return
	}
	c.Header("Content-Type", contentTypeFor(book.Format))
	c.File(path)
}
