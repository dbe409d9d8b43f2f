// Package importer ingests calibre library exports: a zip archive holding
// one directory per book with a metadata.opf, an optional cover.jpg and the
// book files themselves.
package importer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
)

// Summary reports what one import run did.
type Summary struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Importer unpacks calibre exports into a user's library.
type Importer struct {
	db         *database.Client
	covers     *cover.Processor
	booksDir   string
	scratchDir string
}

// New returns an Importer storing book files in booksDir and using
// scratchDir for temporary extraction.
func New(db *database.Client, covers *cover.Processor, booksDir, scratchDir string) *Importer {
	return &Importer{db: db, covers: covers, booksDir: booksDir, scratchDir: scratchDir}
}

// ScratchDir returns the directory used for temporary extraction, so the
// maintenance sweep knows what to clean.
func (i *Importer) ScratchDir() string { return i.scratchDir }

// ImportZip extracts the archive into a scratch directory, imports every
// book directory found inside and always removes the scratch directory
// afterwards. Per-book failures are collected in the summary instead of
// aborting the run.
func (i *Importer) ImportZip(ctx context.Context, zipPath string, userID uint) (*Summary, error) {
	scratch := filepath.Join(i.scratchDir, uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := extractZip(zipPath, scratch); err != nil {
		return nil, err
	}

	sum := &Summary{}
	err := filepath.WalkDir(scratch, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || d.Name() != "metadata.opf" {
			return nil
		}
		i.importBookDir(ctx, filepath.Dir(path), userID, sum)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk archive: %w", err)
	}
	return sum, nil
}

// importBookDir imports every allowed book file in one calibre book
// directory, sharing the directory's metadata and cover.
func (i *Importer) importBookDir(ctx context.Context, dir string, userID uint, sum *Summary) {
	opfData, err := os.ReadFile(filepath.Join(dir, "metadata.opf"))
	if err != nil {
		sum.fail(dir, err)
		return
	}
	meta, err := ebook.ParseOPF(opfData)
	if err != nil {
		sum.fail(dir, err)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		sum.fail(dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !ebook.AllowedExtension(entry.Name()) {
			continue
		}
		format := strings.ToLower(strings.TrimPrefix(filepath.Ext(entry.Name()), "."))

		exists, err := i.db.BookExists(ctx, userID, meta.Title, meta.Author, format)
		if err != nil {
			sum.fail(entry.Name(), err)
			continue
		}
		if exists {
			sum.Skipped++
			continue
		}

		if err := i.importFile(ctx, filepath.Join(dir, entry.Name()), meta, format, userID); err != nil {
			sum.fail(entry.Name(), err)
			continue
		}
		sum.Imported++
	}
}

func (i *Importer) importFile(ctx context.Context, srcPath string, meta *ebook.Metadata, format string, userID uint) error {
	filename := ebook.StorageFilename(meta.Title, meta.Author, format)
	dst := ebook.StoragePath(i.booksDir, userID, filename)
	if err := copyFile(srcPath, dst); err != nil {
		return err
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
		UserID:      userID,
	}
	if err := i.db.CreateBook(ctx, book); err != nil {
		os.Remove(dst)
		return err
	}

	coverPath := filepath.Join(filepath.Dir(srcPath), "cover.jpg")
	if _, err := os.Stat(coverPath); err == nil {
		if err := i.covers.Install(coverPath, userID, book.ID); err != nil {
			log.Warn("failed to import cover", "book", book.Title, "error", err)
		} else if err := i.db.SetHasCover(ctx, book.ID, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Summary) fail(what string, err error) {
	log.Error("import failed", "path", what, "error", err)
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", filepath.Base(what), err))
}

// extractZip unpacks the archive below dest, refusing entries that would
// escape it.
func extractZip(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes extraction directory: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
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
