// Package cover turns book files and uploaded images into the JPEG cover
// thumbnails served by the web UI.
package cover

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/vquang/leaflib/ebook"
)

// MaxHeight caps the stored cover height. Width follows the aspect ratio.
const MaxHeight = 600

const jpegQuality = 80

// DefaultName is the file name of the shared placeholder cover.
const DefaultName = "default.jpg"

// Processor extracts, normalizes and stores cover images under a single
// covers directory, one subdirectory per user.
type Processor struct {
	coversDir string
	tool      *ebook.Tool
}

// NewProcessor returns a Processor storing covers below coversDir.
func NewProcessor(coversDir string, tool *ebook.Tool) *Processor {
	return &Processor{coversDir: coversDir, tool: tool}
}

// Path returns where the cover of a book variant lives on disk.
func (p *Processor) Path(userID, bookID uint) string {
	return filepath.Join(p.coversDir, fmt.Sprint(userID), fmt.Sprintf("%d.jpg", bookID))
}

// DefaultPath returns the shared placeholder cover path.
func (p *Processor) DefaultPath() string {
	return filepath.Join(p.coversDir, DefaultName)
}

// Exists reports whether a stored cover exists for the book variant.
func (p *Processor) Exists(userID, bookID uint) bool {
	_, err := os.Stat(p.Path(userID, bookID))
	return err == nil
}

// Extract pulls the embedded cover out of the book file and installs it.
// A book without an embedded cover is not an error to the caller beyond the
// returned error value; the book simply keeps the placeholder.
func (p *Processor) Extract(ctx context.Context, bookPath string, userID, bookID uint) error {
	tmp := filepath.Join(os.TempDir(), "leaflib-cover-"+uuid.NewString()+".jpg")
	defer os.Remove(tmp)

	if err := p.tool.ExtractCover(ctx, bookPath, tmp); err != nil {
		return err
	}
	return p.Install(tmp, userID, bookID)
}

// Install normalizes the image at srcPath and stores it as the cover of the
// book variant: downscale to MaxHeight, flatten transparency onto white and
// re-encode as JPEG.
func (p *Processor) Install(srcPath string, userID, bookID uint) error {
	img, err := imaging.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to decode cover image: %w", err)
	}
	img = normalize(img)

	dest := p.Path(userID, bookID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create cover directory: %w", err)
	}
	if err := imaging.Save(img, dest, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("failed to save cover: %w", err)
	}
	return nil
}

// Remove deletes the stored cover of a book variant, if any.
func (p *Processor) Remove(userID, bookID uint) {
	if err := os.Remove(p.Path(userID, bookID)); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove cover", "user", userID, "book", bookID, "error", err)
	}
}

// RemoveUser deletes the whole cover directory of a user.
func (p *Processor) RemoveUser(userID uint) {
	if err := os.RemoveAll(filepath.Join(p.coversDir, fmt.Sprint(userID))); err != nil {
		log.Warn("failed to remove user covers", "user", userID, "error", err)
	}
}

// EnsureDefault writes the shared placeholder cover if it does not exist
// yet. The placeholder is generated locally so a fresh install works
// offline.
func (p *Processor) EnsureDefault() error {
	dest := p.DefaultPath()
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(p.coversDir, 0o755); err != nil {
		return fmt.Errorf("failed to create covers directory: %w", err)
	}
	return imaging.Save(placeholder(), dest, imaging.JPEGQuality(jpegQuality))
}

// normalize flattens transparency onto a white background and caps the
// height at MaxHeight, preserving the aspect ratio.
func normalize(img image.Image) image.Image {
	bounds := img.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	out := imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)
	if out.Bounds().Dy() > MaxHeight {
		return imaging.Resize(out, 0, MaxHeight, imaging.Lanczos)
	}
	return out
}

// placeholder renders the generic no-cover image: a dark page with a
// lighter spine band on the left.
func placeholder() image.Image {
	const w, h = 400, MaxHeight
	page := imaging.New(w, h, color.NRGBA{R: 0x2b, G: 0x33, B: 0x40, A: 0xff})
	spine := imaging.New(28, h, color.NRGBA{R: 0x4a, G: 0x58, B: 0x68, A: 0xff})
	out := imaging.Paste(page, spine, image.Pt(0, 0))
	band := imaging.New(w-80, 8, color.NRGBA{R: 0x4a, G: 0x58, B: 0x68, A: 0xff})
	out = imaging.Paste(out, band, image.Pt(54, h/3))
	out = imaging.Paste(out, band, image.Pt(54, h/3+24))
	return out
}
