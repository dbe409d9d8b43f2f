package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/vquang/leaflib/textutil"
)

// GroupKey identifies a logical book: every Book row sharing this key is a
// format variant of the same work.
func GroupKey(title, author string) string {
	return title + "\x1f" + author
}

// ListOptions controls a deduplicated library listing.
type ListOptions struct {
	// OwnerID restricts the listing to one user's books; zero means all
	// owners (admin view).
	OwnerID uint
	// Query is the raw search string; it is accent-folded before matching.
	Query string
	// Page is 1-based.
	Page int
}

// BookPage is one page of a deduplicated listing.
type BookPage struct {
	Items      []Book
	Page       int
	PageSize   int
	TotalItems int64
	TotalPages int
}

// HasPrev reports whether a previous page exists.
func (p *BookPage) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p *BookPage) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage returns the previous page number, clamped to 1.
func (p *BookPage) PrevPage() int {
	if p.Page <= 1 {
		return 1
	}
	return p.Page - 1
}

// NextPage returns the next page number, clamped to the last page.
func (p *BookPage) NextPage() int {
	if p.Page >= p.TotalPages {
		return p.TotalPages
	}
	return p.Page + 1
}

// Pages lists all page numbers, for the pagination bar.
func (p *BookPage) Pages() []int {
	pages := make([]int, 0, p.TotalPages)
	for i := 1; i <= p.TotalPages; i++ {
		pages = append(pages, i)
	}
	return pages
}

// dedupQuery returns a query over one representative row per logical book
// (the lowest id of each (title, author) group), optionally restricted to
// one owner.
func (c *Client) dedupQuery(ctx context.Context, ownerID uint) *gorm.DB {
	sub := c.db.WithContext(ctx).Model(&Book{}).Select("MIN(id) AS min_id").Group("title, author")
	if ownerID != 0 {
		sub = sub.Where("user_id = ?", ownerID)
	}
	return c.db.WithContext(ctx).Model(&Book{}).
		Joins("JOIN (?) dedup ON books.id = dedup.min_id", sub)
}

// searchFilter applies the accent-folded substring match over title, author,
// tags and series.
func searchFilter(q *gorm.DB, fold string) *gorm.DB {
	like := "%" + fold + "%"
	return q.Where(
		"title_fold LIKE ? OR (author <> '' AND author_fold LIKE ?) OR (tags <> '' AND tags_fold LIKE ?) OR (series <> '' AND series_fold LIKE ?)",
		like, like, like, like,
	)
}

// ListBooks returns one page of the deduplicated library. With a query the
// ordering is exact title match, then title prefix match, then author
// substring match, then everything else, alphabetical by title within each
// rank. Without a query the listing is alphabetical.
func (c *Client) ListBooks(ctx context.Context, opts ListOptions) (*BookPage, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	fold := textutil.Fold(strings.TrimSpace(opts.Query))

	countQuery := c.dedupQuery(ctx, opts.OwnerID)
	if fold != "" {
		countQuery = searchFilter(countQuery, fold)
	}
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	q := c.dedupQuery(ctx, opts.OwnerID).Preload("User")
	if fold != "" {
		q = searchFilter(q, fold)
		q = q.Select(
			"books.*, CASE WHEN title_fold = ? THEN 1 WHEN title_fold LIKE ? THEN 2 WHEN author_fold LIKE ? THEN 3 ELSE 10 END AS relevance",
			fold, fold+"%", "%"+fold+"%",
		).Order("relevance, title")
	} else {
		q = q.Order("title")
	}

	var items []Book
	if err := q.Limit(PageSize).Offset((opts.Page - 1) * PageSize).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	return newBookPage(items, opts.Page, total), nil
}

// RandomBooks returns up to n random logical books, for the discovery strip
// on the first page.
func (c *Client) RandomBooks(ctx context.Context, ownerID uint, n int) ([]Book, error) {
	var items []Book
	err := c.dedupQuery(ctx, ownerID).Order("RANDOM()").Limit(n).Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to pick random books: %w", err)
	}
	return items, nil
}

// ListFavoriteBooks returns one page of the user's favorited logical books.
func (c *Client) ListFavoriteBooks(ctx context.Context, userID uint, page int) (*BookPage, error) {
	sub := c.db.WithContext(ctx).Model(&Favorite{}).Select("book_id").Where("user_id = ?", userID)
	return c.listMarked(ctx, sub, page)
}

// ListBookmarkedBooks returns one page of the user's bookmarked logical
// books.
func (c *Client) ListBookmarkedBooks(ctx context.Context, userID uint, page int) (*BookPage, error) {
	sub := c.db.WithContext(ctx).Model(&Bookmark{}).Select("book_id").Where("user_id = ?", userID)
	return c.listMarked(ctx, sub, page)
}

func (c *Client) listMarked(ctx context.Context, idSub *gorm.DB, page int) (*BookPage, error) {
	if page < 1 {
		page = 1
	}
	dedup := c.db.WithContext(ctx).Model(&Book{}).
		Select("MIN(id) AS min_id").
		Where("id IN (?)", idSub).
		Group("title, author")

	base := func() *gorm.DB {
		return c.db.WithContext(ctx).Model(&Book{}).
			Joins("JOIN (?) dedup ON books.id = dedup.min_id", dedup)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count marked books: %w", err)
	}
	var items []Book
	if err := base().Order("title").Limit(PageSize).Offset((page - 1) * PageSize).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list marked books: %w", err)
	}
	return newBookPage(items, page, total), nil
}

// ListBooksInList returns one page of the shelf's logical books.
func (c *Client) ListBooksInList(ctx context.Context, listID uint, page int) (*BookPage, error) {
	sub := c.db.WithContext(ctx).
		Table("book_list_books").
		Select("book_id").
		Where("book_list_id = ?", listID)
	return c.listMarked(ctx, sub, page)
}

func newBookPage(items []Book, page int, total int64) *BookPage {
	totalPages := int((total + PageSize - 1) / PageSize)
	return &BookPage{
		Items:      items,
		Page:       page,
		PageSize:   PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// GetBook returns the book row with the given id.
func (c *Client) GetBook(ctx context.Context, id uint) (*Book, error) {
	var book Book
	if err := c.db.WithContext(ctx).First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook inserts a new format variant.
func (c *Client) CreateBook(ctx context.Context, book *Book) error {
	if err := c.db.WithContext(ctx).Create(book).Error; err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// SaveBook persists all fields of an existing book row.
func (c *Client) SaveBook(ctx context.Context, book *Book) error {
	return c.db.WithContext(ctx).Save(book).Error
}

// SetHasCover updates only the has-cover flag.
func (c *Client) SetHasCover(ctx context.Context, bookID uint, has bool) error {
	return c.db.WithContext(ctx).Model(&Book{}).Where("id = ?", bookID).Update("has_cover", has).Error
}

// BookExists reports whether this (title, author, format) variant already
// exists for the user. Uploads and imports use it to skip duplicates.
func (c *Client) BookExists(ctx context.Context, userID uint, title, author, format string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&Book{}).
		Where("title = ? AND author = ? AND format = ? AND user_id = ?", title, author, format, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// BooksOfUser returns every book row of one user, without deduplication.
// Used to clean up files when a user is deleted.
func (c *Client) BooksOfUser(ctx context.Context, userID uint) ([]Book, error) {
	var books []Book
	if err := c.db.WithContext(ctx).Where("user_id = ?", userID).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list user books: %w", err)
	}
	return books, nil
}

// BooksWithoutCovers returns up to limit book rows that have no stored
// cover yet, oldest first. The maintenance job retries cover extraction for
// them.
func (c *Client) BooksWithoutCovers(ctx context.Context, limit int) ([]Book, error) {
	var books []Book
	err := c.db.WithContext(ctx).
		Where("has_cover = ?", false).
		Order("id").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list books without covers: %w", err)
	}
	return books, nil
}

// FormatsOf returns every format variant of the logical book rep belongs
// to, ordered by format.
func (c *Client) FormatsOf(ctx context.Context, rep *Book) ([]Book, error) {
	var books []Book
	err := c.db.WithContext(ctx).
		Where("title = ? AND author = ? AND user_id = ?", rep.Title, rep.Author, rep.UserID).
		Order("format").
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve format variants: %w", err)
	}
	return books, nil
}

// RelatedBooks returns up to limit other books by the same author or in the
// same series, within the same library.
func (c *Client) RelatedBooks(ctx context.Context, rep *Book, limit int) ([]Book, error) {
	var books []Book
	q := c.db.WithContext(ctx).
		Where("id <> ? AND user_id = ?", rep.ID, rep.UserID)
	if rep.Series != "" {
		q = q.Where("author = ? OR series = ?", rep.Author, rep.Series)
	} else {
		q = q.Where("author = ?", rep.Author)
	}
	if err := q.Limit(limit).Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// BookEdit carries the editable descriptive fields applied across a logical
// book.
type BookEdit struct {
	Title       string
	Author      string
	Tags        string
	Description string
	Series      string
	SeriesIndex int
	Publisher   string
	Pubdate     string
	Language    string
}

// ErrSeriesIndexTaken is returned when an edit would assign a
// (series, series index) pair already used by a different logical book of
// the same owner.
var ErrSeriesIndexTaken = fmt.Errorf("series index already taken")

// UpdateLogicalBook applies the edit to every format variant of rep's
// logical book. A (series, series index) collision with a different logical
// book of the same owner rejects the whole edit.
func (c *Client) UpdateLogicalBook(ctx context.Context, rep *Book, edit BookEdit) error {
	variants, err := c.FormatsOf(ctx, rep)
	if err != nil {
		return err
	}
	variantIDs := lo.Map(variants, func(b Book, _ int) uint { return b.ID })

	if edit.Series != "" && edit.SeriesIndex != 0 {
		var count int64
		err := c.db.WithContext(ctx).Model(&Book{}).
			Where("user_id = ? AND series = ? AND series_index = ? AND id NOT IN ?",
				rep.UserID, edit.Series, edit.SeriesIndex, variantIDs).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check series collision: %w", err)
		}
		if count > 0 {
			return ErrSeriesIndexTaken
		}
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range variants {
			b := &variants[i]
			b.Title = edit.Title
			b.Author = edit.Author
			b.Tags = edit.Tags
			b.Description = edit.Description
			b.Series = edit.Series
			if edit.SeriesIndex > 0 {
				b.SeriesIndex = edit.SeriesIndex
			} else {
				b.SeriesIndex = 1
			}
			b.Publisher = edit.Publisher
			b.Pubdate = edit.Pubdate
			b.Language = edit.Language
			if err := tx.Save(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RateLogicalBook sets the rating on every format variant.
func (c *Client) RateLogicalBook(ctx context.Context, rep *Book, rating int) error {
	variants, err := c.FormatsOf(ctx, rep)
	if err != nil {
		return err
	}
	ids := lo.Map(variants, func(b Book, _ int) uint { return b.ID })
	return c.db.WithContext(ctx).Model(&Book{}).Where("id IN ?", ids).Update("rating", rating).Error
}

// DeleteBook removes a single format variant and its marker rows.
func (c *Client) DeleteBook(ctx context.Context, bookID uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteBookTx(tx, bookID)
	})
}

// DeleteLogicalBook removes every format variant of rep's logical book and
// returns the deleted rows so the caller can remove their files.
func (c *Client) DeleteLogicalBook(ctx context.Context, rep *Book) ([]Book, error) {
	variants, err := c.FormatsOf(ctx, rep)
	if err != nil {
		return nil, err
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range variants {
			if err := deleteBookTx(tx, b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return variants, nil
}

func deleteBookTx(tx *gorm.DB, bookID uint) error {
	if err := tx.Exec("DELETE FROM book_list_books WHERE book_id = ?", bookID).Error; err != nil {
		return err
	}
	if err := tx.Where("book_id = ?", bookID).Delete(&Bookmark{}).Error; err != nil {
		return err
	}
	if err := tx.Where("book_id = ?", bookID).Delete(&Favorite{}).Error; err != nil {
		return err
	}
	if err := tx.Where("book_id = ?", bookID).Delete(&ReadingHistory{}).Error; err != nil {
		return err
	}
	return tx.Delete(&Book{}, bookID).Error
}
