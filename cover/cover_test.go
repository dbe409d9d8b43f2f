package cover

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	return NewProcessor(filepath.Join(t.TempDir(), "covers"), nil)
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, imaging.Save(img, path))
}

func TestInstallResizesTallImages(t *testing.T) {
	p := newTestProcessor(t)
	src := filepath.Join(t.TempDir(), "src.png")
	writeImage(t, src, imaging.New(800, 1200, color.White))

	require.NoError(t, p.Install(src, 1, 42))

	img, err := imaging.Open(p.Path(1, 42))
	require.NoError(t, err)
	assert.Equal(t, MaxHeight, img.Bounds().Dy())
	// 800x1200 scaled to height 600 keeps the 2:3 ratio.
	assert.Equal(t, 400, img.Bounds().Dx())
}

func TestInstallKeepsSmallImages(t *testing.T) {
	p := newTestProcessor(t)
	src := filepath.Join(t.TempDir(), "src.png")
	writeImage(t, src, imaging.New(200, 300, color.White))

	require.NoError(t, p.Install(src, 1, 7))

	img, err := imaging.Open(p.Path(1, 7))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dy())
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestInstallFlattensTransparency(t *testing.T) {
	p := newTestProcessor(t)
	src := filepath.Join(t.TempDir(), "src.png")
	writeImage(t, src, imaging.New(100, 100, color.NRGBA{}))

	require.NoError(t, p.Install(src, 2, 1))

	img, err := imaging.Open(p.Path(2, 1))
	require.NoError(t, err)
	r, g, b, _ := img.At(50, 50).RGBA()
	// Fully transparent input lands on the white background.
	assert.Greater(t, r, uint32(0xf000))
	assert.Greater(t, g, uint32(0xf000))
	assert.Greater(t, b, uint32(0xf000))
}

func TestInstallRejectsNonImages(t *testing.T) {
	p := newTestProcessor(t)
	assert.Error(t, p.Install("/nonexistent/file.jpg", 1, 1))
}

func TestExistsAndRemove(t *testing.T) {
	p := newTestProcessor(t)
	src := filepath.Join(t.TempDir(), "src.png")
	writeImage(t, src, imaging.New(10, 10, color.White))

	assert.False(t, p.Exists(3, 9))
	require.NoError(t, p.Install(src, 3, 9))
	assert.True(t, p.Exists(3, 9))

	p.Remove(3, 9)
	assert.False(t, p.Exists(3, 9))
}

func TestEnsureDefault(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.EnsureDefault())

	img, err := imaging.Open(p.DefaultPath())
	require.NoError(t, err)
	assert.Equal(t, MaxHeight, img.Bounds().Dy())

	// Idempotent.
	require.NoError(t, p.EnsureDefault())
}
