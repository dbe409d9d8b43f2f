// Package web holds the embedded HTML templates and static assets.
package web

import (
	"fmt"
	"html/template"
	"io/fs"

	"embed"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses the embedded page templates with the shared helpers.
func Templates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	return tmpl, nil
}

// Static returns the embedded static asset tree rooted at static/.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"humanizeTime": humanize.Time,
		// seq yields 1..n, used for the star rating widgets.
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
		"truncate": func(n int, s string) string {
			if len(s) <= n {
				return s
			}
			runes := []rune(s)
			if len(runes) <= n {
				return s
			}
			return string(runes[:n]) + "…"
		},
	}
}
