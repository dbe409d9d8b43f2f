package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/vquang/leaflib/database"
)

const randomSampleSize = 5

// BookCard decorates a book row with the per-user state the listing
// templates need.
type BookCard struct {
	database.Book
	Favorited  bool
	Bookmarked bool
}

// buildCards resolves favorite/bookmark state for a whole listing with two
// queries instead of two per row.
func (h *Handler) buildCards(ctx context.Context, userID uint, items []database.Book) ([]BookCard, error) {
	favKeys, err := h.db.FavoritedGroupKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	markKeys, err := h.db.BookmarkedGroupKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(b database.Book, _ int) BookCard {
		key := database.GroupKey(b.Title, b.Author)
		_, fav := favKeys[key]
		_, marked := markKeys[key]
		return BookCard{Book: b, Favorited: fav, Bookmarked: marked}
	}), nil
}

// listingScope returns the owner restriction for listings: the admin sees
// every library, everyone else their own.
func listingScope(user *database.User) uint {
	if user.IsAdmin {
		return 0
	}
	return user.ID
}

// Index renders the main library page with search, pagination and, on the
// first unsearched page, a strip of random picks.
func (h *Handler) Index(c *gin.Context) {
	user := h.user(c)
	query := strings.TrimSpace(c.Query("q"))
	page := pageParam(c)

	bookPage, err := h.db.ListBooks(c.Request.Context(), database.ListOptions{
		OwnerID: listingScope(user),
		Query:   query,
		Page:    page,
	})
	if err != nil {
		log.Error("failed to list books", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}

	data := gin.H{
		"Title":   h.cfg.LibraryName,
		"Query":   query,
		"BaseURL": "/",
	}
	if query == "" && page == 1 && bookPage.TotalItems > 0 {
		random, err := h.db.RandomBooks(c.Request.Context(), listingScope(user), randomSampleSize)
		if err != nil {
			log.Error("failed to pick random books", "error", err)
		} else {
			data["RandomBooks"] = random
		}
	}
	h.renderListing(c, bookPage, data)
}

// UserLibrary lets the admin browse one specific user's books.
func (h *Handler) UserLibrary(c *gin.Context) {
	ownerID, ok := idParam(c, "user_id")
	if !ok {
		notFound(c)
		return
	}
	owner, err := h.db.GetUser(c.Request.Context(), ownerID)
	if err != nil {
		notFound(c)
		return
	}

	bookPage, err := h.db.ListBooks(c.Request.Context(), database.ListOptions{
		OwnerID: owner.ID,
		Query:   strings.TrimSpace(c.Query("q")),
		Page:    pageParam(c),
	})
	if err != nil {
		log.Error("failed to list user library", "owner", owner.Username, "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	h.renderListing(c, bookPage, gin.H{
		"Title":   "Library of " + owner.Username,
		"Query":   strings.TrimSpace(c.Query("q")),
		"BaseURL": "/library/" + c.Param("user_id"),
	})
}

// Favorites renders the user's favorited logical books.
func (h *Handler) Favorites(c *gin.Context) {
	user := h.user(c)
	bookPage, err := h.db.ListFavoriteBooks(c.Request.Context(), user.ID, pageParam(c))
	if err != nil {
		log.Error("failed to list favorites", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	h.renderListing(c, bookPage, gin.H{"Title": "Favorites", "BaseURL": "/favorites"})
}

// Bookmarks renders the user's bookmarked logical books.
func (h *Handler) Bookmarks(c *gin.Context) {
	user := h.user(c)
	bookPage, err := h.db.ListBookmarkedBooks(c.Request.Context(), user.ID, pageParam(c))
	if err != nil {
		log.Error("failed to list bookmarks", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	h.renderListing(c, bookPage, gin.H{"Title": "Bookmarks", "BaseURL": "/bookmarks"})
}

// ListPage renders one shelf.
func (h *Handler) ListPage(c *gin.Context) {
	user := h.user(c)
	listID, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	list, err := h.db.GetList(c.Request.Context(), user.ID, listID)
	if err != nil {
		notFound(c)
		return
	}

	bookPage, err := h.db.ListBooksInList(c.Request.Context(), list.ID, pageParam(c))
	if err != nil {
		log.Error("failed to list shelf", "list", list.Name, "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	h.renderListing(c, bookPage, gin.H{
		"Title":   list.Name,
		"List":    list,
		"BaseURL": "/lists/" + c.Param("id"),
	})
}

// renderListing fills the fields shared by every listing view and renders
// the index template.
func (h *Handler) renderListing(c *gin.Context, bookPage *database.BookPage, data gin.H) {
	user := h.user(c)

	cards, err := h.buildCards(c.Request.Context(), user.ID, bookPage.Items)
	if err != nil {
		log.Error("failed to decorate listing", "error", err)
		c.String(http.StatusInternalServerError, "database error")
		return
	}
	data["Books"] = cards
	data["Page"] = bookPage

	lists, err := h.db.ListsOf(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("failed to load shelves", "error", err)
	} else {
		data["Lists"] = lists
	}

	if user.IsAdmin {
		users, err := h.db.ListLibraryUsers(c.Request.Context())
		if err != nil {
			log.Error("failed to load library users", "error", err)
		} else {
			data["LibraryUsers"] = users
		}
	}
	h.render(c, http.StatusOK, "index.html", data)
}
