package ebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOPF = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Dế Mèn Phiêu Lưu Ký</dc:title>
    <dc:creator opf:role="aut">Tô Hoài</dc:creator>
    <dc:description>Chuyến phiêu lưu của chú dế mèn.</dc:description>
    <dc:publisher>NXB Kim Đồng</dc:publisher>
    <dc:date>1941-01-01T00:00:00+00:00</dc:date>
    <dc:language>vie</dc:language>
    <dc:subject>Thiếu nhi</dc:subject>
    <dc:subject>Văn học Việt Nam</dc:subject>
    <meta name="calibre:series" content="Tuyển tập Tô Hoài"/>
    <meta name="calibre:series_index" content="2.0"/>
  </metadata>
</package>`

func TestParseOPF(t *testing.T) {
	m, err := ParseOPF([]byte(sampleOPF))
	require.NoError(t, err)
	assert.Equal(t, "Dế Mèn Phiêu Lưu Ký", m.Title)
	assert.Equal(t, "Tô Hoài", m.Author)
	assert.Equal(t, "Chuyến phiêu lưu của chú dế mèn.", m.Description)
	assert.Equal(t, "NXB Kim Đồng", m.Publisher)
	assert.Equal(t, "1941-01-01", m.Pubdate)
	assert.Equal(t, "vie", m.Language)
	assert.Equal(t, "Thiếu nhi, Văn học Việt Nam", m.Tags)
	assert.Equal(t, "Tuyển tập Tô Hoài", m.Series)
	assert.Equal(t, 2, m.SeriesIndex)
}

func TestParseOPFDefaults(t *testing.T) {
	minimal := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Sách Không Tác Giả</dc:title>
  </metadata>
</package>`

	m, err := ParseOPF([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthor, m.Author)
	assert.Equal(t, DefaultLanguage, m.Language)
	assert.Equal(t, 1, m.SeriesIndex)
	assert.Empty(t, m.Series)
	assert.Empty(t, m.Tags)
}

func TestParseOPFRejectsMissingTitle(t *testing.T) {
	empty := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"/>
</package>`

	_, err := ParseOPF([]byte(empty))
	assert.Error(t, err)
}

func TestParseOPFMalformed(t *testing.T) {
	_, err := ParseOPF([]byte("not xml at all"))
	assert.Error(t, err)
}

func TestFromFilename(t *testing.T) {
	m := FromFilename("/data/books/nha_gia_kim_1700000000.epub")
	assert.Equal(t, "nha_gia_kim_1700000000", m.Title)
	assert.Equal(t, DefaultAuthor, m.Author)
	assert.Equal(t, DefaultLanguage, m.Language)
}

func TestAllowedExtension(t *testing.T) {
	assert.True(t, AllowedExtension("book.epub"))
	assert.True(t, AllowedExtension("BOOK.PDF"))
	assert.True(t, AllowedExtension("a.b.mobi"))
	assert.False(t, AllowedExtension("archive.zip"))
	assert.False(t, AllowedExtension("noextension"))
	assert.False(t, AllowedExtension("script.exe"))
}
