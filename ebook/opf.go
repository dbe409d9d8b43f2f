package ebook

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults used when a book carries no usable metadata.
const (
	DefaultAuthor   = "Chưa rõ"
	DefaultLanguage = "Tiếng Việt"
)

// Metadata holds the fields extracted from a book file.
type Metadata struct {
	Title       string
	Author      string
	Description string
	Publisher   string
	Pubdate     string
	Language    string
	Tags        string
	Series      string
	SeriesIndex int
}

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Metadata opfMetadata `xml:"metadata"`
}

type opfMetadata struct {
	Titles      []string  `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators    []string  `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Description string    `xml:"http://purl.org/dc/elements/1.1/ description"`
	Publisher   string    `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Dates       []string  `xml:"http://purl.org/dc/elements/1.1/ date"`
	Languages   []string  `xml:"http://purl.org/dc/elements/1.1/ language"`
	Subjects    []string  `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Metas       []opfMeta `xml:"meta"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// ParseOPF parses an OPF metadata document as emitted by ebook-meta. Missing
// fields fall back to sensible defaults; a missing title is an error because
// the file name fallback is the caller's decision.
func ParseOPF(data []byte) (*Metadata, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("malformed opf: %w", err)
	}

	m := &Metadata{
		Title:       firstNonEmpty(pkg.Metadata.Titles),
		Author:      firstNonEmpty(pkg.Metadata.Creators),
		Description: strings.TrimSpace(pkg.Metadata.Description),
		Publisher:   strings.TrimSpace(pkg.Metadata.Publisher),
		Language:    firstNonEmpty(pkg.Metadata.Languages),
		SeriesIndex: 1,
	}
	if m.Title == "" {
		return nil, fmt.Errorf("opf carries no title")
	}
	if m.Author == "" {
		m.Author = DefaultAuthor
	}
	if m.Language == "" {
		m.Language = DefaultLanguage
	}

	if date := firstNonEmpty(pkg.Metadata.Dates); date != "" {
		// Keep the date part only; calibre emits full timestamps.
		if i := strings.IndexByte(date, 'T'); i > 0 {
			date = date[:i]
		}
		m.Pubdate = date
	}

	var tags []string
	for _, s := range pkg.Metadata.Subjects {
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	m.Tags = strings.Join(tags, ", ")

	for _, meta := range pkg.Metadata.Metas {
		switch meta.Name {
		case "calibre:series":
			m.Series = strings.TrimSpace(meta.Content)
		case "calibre:series_index":
			if f, err := strconv.ParseFloat(strings.TrimSpace(meta.Content), 64); err == nil {
				m.SeriesIndex = int(f)
			}
		}
	}
	return m, nil
}

// FromFilename builds fallback metadata when the tools cannot read the file:
// the title is the bare file name, everything else is defaulted.
func FromFilename(filename string) *Metadata {
	base := filepath.Base(filename)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return &Metadata{
		Title:       title,
		Author:      DefaultAuthor,
		Language:    DefaultLanguage,
		SeriesIndex: 1,
	}
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
