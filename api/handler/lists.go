package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/vquang/leaflib/database"
)

// CreateList creates a new shelf for the current user.
func (h *Handler) CreateList(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(c, http.StatusBadRequest, "the shelf name must not be empty")
		return
	}

	list, err := h.db.CreateList(c.Request.Context(), h.user(c).ID, name)
	if err != nil {
		if errors.Is(err, database.ErrListNameTaken) {
			jsonError(c, http.StatusConflict, "a shelf with this name already exists")
			return
		}
		log.Error("failed to create shelf", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": list.ID, "name": list.Name})
}

// ToggleBookInList adds the logical book to the shelf, or removes it when it
// is already there.
func (h *Handler) ToggleBookInList(c *gin.Context) {
	var req struct {
		ListID uint `json:"list_id"`
		BookID uint `json:"book_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ListID == 0 || req.BookID == 0 {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	user := h.user(c)

	list, err := h.db.GetList(ctx, user.ID, req.ListID)
	if err != nil {
		jsonError(c, http.StatusNotFound, "shelf not found")
		return
	}
	book, err := h.db.GetBook(ctx, req.BookID)
	if err != nil || (!user.IsAdmin && book.UserID != user.ID) {
		jsonError(c, http.StatusNotFound, "book not found")
		return
	}

	onList, err := h.db.ListContainsGroup(ctx, list.ID, book)
	if err != nil {
		log.Error("failed to check shelf membership", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	if onList {
		err = h.db.RemoveGroupFromList(ctx, list, book)
	} else {
		err = h.db.AddGroupToList(ctx, list, book)
	}
	if err != nil {
		log.Error("failed to toggle shelf membership", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "on_list": !onList})
}

// BookLists returns the user's shelves with a membership flag for one book,
// feeding the add-to-shelf dropdown.
func (h *Handler) BookLists(c *gin.Context) {
	book, ok := h.bookForUser(c)
	if !ok {
		jsonError(c, http.StatusNotFound, "book not found")
		return
	}
	ctx := c.Request.Context()
	user := h.user(c)

	lists, err := h.db.ListsOf(ctx, user.ID)
	if err != nil {
		log.Error("failed to load shelves", "error", err)
		jsonError(c, http.StatusInternalServerError, "database error")
		return
	}

	type listEntry struct {
		ID     uint   `json:"id"`
		Name   string `json:"name"`
		OnList bool   `json:"on_list"`
	}
	entries := make([]listEntry, 0, len(lists))
	for _, list := range lists {
		onList, err := h.db.ListContainsGroup(ctx, list.ID, book)
		if err != nil {
			log.Error("failed to check shelf membership", "error", err)
			jsonError(c, http.StatusInternalServerError, "database error")
			return
		}
		entries = append(entries, listEntry{ID: list.ID, Name: list.Name, OnList: onList})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lists": entries})
}
