package importer

import (
	"archive/zip"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
)

const testOPF = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Dế Mèn Phiêu Lưu Ký</dc:title>
    <dc:creator>Tô Hoài</dc:creator>
    <dc:language>vie</dc:language>
  </metadata>
</package>`

// writeArchive builds a calibre-style export zip with one book directory.
func writeArchive(t *testing.T, withCover bool) string {
	t.Helper()

	zipPath := filepath.Join(t.TempDir(), "library.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	add := func(name string, data []byte) {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	add("To Hoai/De Men (1)/metadata.opf", []byte(testOPF))
	add("To Hoai/De Men (1)/De Men.epub", []byte("fake epub payload"))
	add("To Hoai/De Men (1)/De Men.txt", []byte("fake text payload"))
	add("To Hoai/De Men (1)/notes.xyz", []byte("ignored"))
	if withCover {
		coverPath := filepath.Join(t.TempDir(), "cover.jpg")
		require.NoError(t, imaging.Save(imaging.New(100, 150, color.White), coverPath))
		data, err := os.ReadFile(coverPath)
		require.NoError(t, err)
		add("To Hoai/De Men (1)/cover.jpg", data)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func newTestImporter(t *testing.T) (*Importer, *database.Client, *database.User) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user, err := db.CreateUser(context.Background(), "mai", "secret123")
	require.NoError(t, err)

	base := t.TempDir()
	covers := cover.NewProcessor(filepath.Join(base, "covers"), nil)
	imp := New(db, covers, filepath.Join(base, "books"), filepath.Join(base, "scratch"))
	return imp, db, user
}

func TestImportZip(t *testing.T) {
	imp, db, user := newTestImporter(t)
	ctx := context.Background()

	sum, err := imp.ImportZip(ctx, writeArchive(t, true), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Imported)
	assert.Zero(t, sum.Skipped)
	assert.Empty(t, sum.Errors)

	exists, err := db.BookExists(ctx, user.ID, "Dế Mèn Phiêu Lưu Ký", "Tô Hoài", "epub")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = db.BookExists(ctx, user.ID, "Dế Mèn Phiêu Lưu Ký", "Tô Hoài", "txt")
	require.NoError(t, err)
	assert.True(t, exists)

	page, err := db.ListBooks(ctx, database.ListOptions{OwnerID: user.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	book := page.Items[0]
	assert.True(t, book.HasCover)
	assert.Equal(t, "vie", book.Language)

	// The stored file exists under the owner's book directory.
	_, err = os.Stat(ebook.StoragePath(imp.booksDir, user.ID, book.Filename))
	assert.NoError(t, err)

	// Scratch space is cleaned up after the run.
	entries, err := os.ReadDir(imp.scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImportZipSeparatesUserLibraries(t *testing.T) {
	imp, db, user := newTestImporter(t)
	ctx := context.Background()

	other, err := db.CreateUser(ctx, "lan", "secret123")
	require.NoError(t, err)

	archive := writeArchive(t, false)
	_, err = imp.ImportZip(ctx, archive, user.ID)
	require.NoError(t, err)
	_, err = imp.ImportZip(ctx, archive, other.ID)
	require.NoError(t, err)

	pathOf := func(userID uint) string {
		page, err := db.ListBooks(ctx, database.ListOptions{OwnerID: userID})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		return ebook.StoragePath(imp.booksDir, userID, page.Items[0].Filename)
	}

	// Both copies survive even when the generated file names collide.
	first, second := pathOf(user.ID), pathOf(other.ID)
	assert.NotEqual(t, first, second)
	for _, path := range []string{first, second} {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestImportZipSkipsDuplicates(t *testing.T) {
	imp, _, user := newTestImporter(t)
	ctx := context.Background()

	_, err := imp.ImportZip(ctx, writeArchive(t, false), user.ID)
	require.NoError(t, err)

	sum, err := imp.ImportZip(ctx, writeArchive(t, false), user.ID)
	require.NoError(t, err)
	assert.Zero(t, sum.Imported)
	assert.Equal(t, 2, sum.Skipped)
}

func TestImportZipWithoutCover(t *testing.T) {
	imp, db, user := newTestImporter(t)
	ctx := context.Background()

	_, err := imp.ImportZip(ctx, writeArchive(t, false), user.ID)
	require.NoError(t, err)

	page, err := db.ListBooks(ctx, database.ListOptions{OwnerID: user.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].HasCover)
}

func TestImportZipRejectsGarbage(t *testing.T) {
	imp, _, user := newTestImporter(t)

	bad := filepath.Join(t.TempDir(), "not-a-zip.zip")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	_, err := imp.ImportZip(context.Background(), bad, user.ID)
	assert.Error(t, err)
}

func TestExtractZipRejectsEscapingEntries(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("../evil.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("escape"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	err = extractZip(zipPath, t.TempDir())
	assert.Error(t, err)
}
