package ebook

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vquang/leaflib/textutil"
)

// StorageFilename builds the on-disk file name for a newly stored book
// variant. The unix timestamp keeps repeated uploads of the same work from
// clobbering each other.
func StorageFilename(title, author, format string) string {
	stem := author + "_" + title + "_" + strconv.FormatInt(time.Now().Unix(), 10)
	return textutil.SafeFilename(stem) + "." + strings.ToLower(format)
}

// UserStorageDir returns the directory holding one user's book files. Each
// user gets a subdirectory of the books root, keyed by id like the cover
// tree, so identical file names from different users never collide.
func UserStorageDir(booksDir string, userID uint) string {
	return filepath.Join(booksDir, strconv.FormatUint(uint64(userID), 10))
}

// StoragePath returns the on-disk location of a stored book file.
func StoragePath(booksDir string, userID uint, filename string) string {
	return filepath.Join(UserStorageDir(booksDir, userID), filename)
}
