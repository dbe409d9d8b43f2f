package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/vquang/leaflib/textutil"
)

// Reserved account names. The admin account is seeded on first start, the
// guest account logs in without a password and is gated by GuestPermission.
const (
	AdminUsername = "admin"
	GuestUsername = "guest"
)

// User represents a library account. Deleting a user cascades to every row
// the user owns; the caller is responsible for removing the user's file
// trees on disk.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"not null;default:false"`

	Books     []Book     `gorm:"constraint:OnDelete:CASCADE"`
	BookLists []BookList `gorm:"constraint:OnDelete:CASCADE"`
}

// IsGuest reports whether this is the reserved guest account.
func (u *User) IsGuest() bool { return u.Username == GuestUsername }

// IsSystem reports whether this is one of the reserved accounts that cannot
// be deleted or demoted.
func (u *User) IsSystem() bool {
	return u.Username == AdminUsername || u.Username == GuestUsername
}

// Book is one file variant of a logical title. Rows sharing
// (title, author, user_id) are the same logical book in different formats;
// every cross-variant action resolves the group through FormatsOf.
type Book struct {
	gorm.Model
	Filename    string `gorm:"not null"`
	Title       string `gorm:"not null;index"`
	TitleFold   string `gorm:"index"`
	Author      string `gorm:"index"`
	AuthorFold  string `gorm:"index"`
	Format      string
	Tags        string
	TagsFold    string
	Description string
	Rating      int `gorm:"default:0"`
	Series      string
	SeriesFold  string
	SeriesIndex int `gorm:"default:1"`
	Publisher   string
	Pubdate     string
	Language    string
	HasCover    bool `gorm:"not null;default:false"`
	UserID      uint `gorm:"not null;index"`

	User  User       `gorm:"constraint:OnDelete:CASCADE"`
	Lists []BookList `gorm:"many2many:book_list_books"`
}

// BeforeSave keeps the folded search columns in sync with the display
// columns.
func (b *Book) BeforeSave(*gorm.DB) error {
	b.TitleFold = textutil.Fold(b.Title)
	b.AuthorFold = textutil.Fold(b.Author)
	b.TagsFold = textutil.Fold(b.Tags)
	b.SeriesFold = textutil.Fold(b.Series)
	return nil
}

// BookList is a user-defined shelf, independent of logical-book grouping.
// Membership is kept consistent across format variants by the toggle
// handlers, not by the schema.
type BookList struct {
	gorm.Model
	Name   string `gorm:"not null"`
	UserID uint   `gorm:"not null;index"`

	Books []Book `gorm:"many2many:book_list_books"`
}

// Bookmark marks a (user, book variant) pair. A bookmark on any variant of
// a logical book means the logical book is bookmarked.
type Bookmark struct {
	gorm.Model
	UserID uint `gorm:"not null;index"`
	BookID uint `gorm:"not null;index"`
}

// Favorite marks a (user, book variant) pair, with the same group
// semantics as Bookmark.
type Favorite struct {
	gorm.Model
	UserID uint `gorm:"not null;index"`
	BookID uint `gorm:"not null;index"`
}

// ReadingHistory stores the last-read time and the reader's display
// settings for one specific format variant. Settings is an opaque JSON
// blob owned by the client; the server stores and returns it verbatim.
type ReadingHistory struct {
	gorm.Model
	UserID   uint `gorm:"not null;index"`
	BookID   uint `gorm:"not null;index"`
	LastRead time.Time
	Settings string
}

// GuestPermission is the single global row gating what the guest account
// may do.
type GuestPermission struct {
	gorm.Model
	CanRate         bool `gorm:"not null;default:false"`
	CanEditBooks    bool `gorm:"not null;default:false"`
	CanUploadBooks  bool `gorm:"not null;default:false"`
	CanDeleteBooks  bool `gorm:"not null;default:false"`
	CanConvertBooks bool `gorm:"not null;default:false"`
	CanBookmark     bool `gorm:"not null;default:false"`
	CanFavorite     bool `gorm:"not null;default:false"`
}
