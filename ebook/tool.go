// Package ebook wraps the external calibre command line tools used for
// metadata extraction, cover extraction and format conversion.
package ebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors distinguishing the ways a tool invocation can fail.
var (
	// ErrToolNotFound means the executable is not installed or not on PATH.
	ErrToolNotFound = errors.New("ebook tool not found")
	// ErrTimeout means the invocation exceeded its deadline.
	ErrTimeout = errors.New("ebook tool timed out")
	// ErrInvalidOutput means the tool exited successfully but produced
	// output that could not be used.
	ErrInvalidOutput = errors.New("ebook tool produced invalid output")
)

// ExitError reports a non-zero exit from the tool, carrying its stderr.
type ExitError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// AllowedExtensions lists the file extensions accepted for upload and
// import.
var AllowedExtensions = map[string]struct{}{
	"epub": {}, "mobi": {}, "pdf": {}, "azw3": {}, "txt": {}, "azw": {},
	"doc": {}, "docx": {}, "rtf": {}, "html": {}, "lit": {}, "prc": {}, "oeb": {},
}

// AllowedExtension reports whether filename carries an importable book
// extension.
func AllowedExtension(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	_, ok := AllowedExtensions[strings.ToLower(filename[i+1:])]
	return ok
}

// ConvertTargets lists the formats offered by the conversion dialog.
var ConvertTargets = []string{"epub", "mobi", "pdf", "azw3"}

// Tool invokes the calibre executables. The zero value is not usable; use
// NewTool.
type Tool struct {
	metaBin      string
	convertBin   string
	coverTimeout time.Duration
}

// NewTool returns a Tool using the standard calibre binaries from PATH.
func NewTool() *Tool {
	return &Tool{
		metaBin:      "ebook-meta",
		convertBin:   "ebook-convert",
		coverTimeout: 30 * time.Second,
	}
}

// Metadata runs ebook-meta to emit an OPF document for the file and parses
// it. The caller decides how to fall back when this fails.
func (t *Tool) Metadata(ctx context.Context, path string) (*Metadata, error) {
	out, err := t.run(ctx, 0, t.metaBin, "--to-opf", path)
	if err != nil {
		return nil, err
	}
	meta, err := ParseOPF(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return meta, nil
}

// ExtractCover runs ebook-meta to write the embedded cover image of the
// book file to outPath. The invocation is bounded by a fixed timeout.
func (t *Tool) ExtractCover(ctx context.Context, bookPath, outPath string) error {
	_, err := t.run(ctx, t.coverTimeout, t.metaBin, bookPath, "--get-cover", outPath)
	return err
}

// Convert runs ebook-convert to produce dst from src. Conversion time is
// unbounded; large files can take minutes.
func (t *Tool) Convert(ctx context.Context, src, dst string) error {
	_, err := t.run(ctx, 0, t.convertBin, src, dst)
	return err
}

func (t *Tool) run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, bin)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, bin)
	}
	return nil, &ExitError{
		Tool:   bin,
		Stderr: strings.TrimSpace(stderr.String()),
		Err:    err,
	}
}
