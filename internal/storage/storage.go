// Package storage keeps generated report files. A file either appears
// complete or not at all: a failed write never leaves a partial artifact that
// a COMPLETED job could point to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("report file not found")

// Store saves and serves report files by name.
type Store interface {
	// Save streams the file through write and publishes it only when write
	// and the final flush both succeed.
	Save(ctx context.Context, name string, write func(w io.Writer) error) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// XLSXContentType is the MIME type of generated workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// validName rejects names that could escape the store's root.
func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid report file name %q", name)
	}
	return nil
}
