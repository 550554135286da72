// Package reader turns book files into book.Documents. Each supported
// container registers a Format; Parse selects one by hint, magic bytes or
// file extension.
package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metcalfc/shu/internal/book"
)

// Format parses one kind of book container.
type Format interface {
	Name() string
	Kind() book.Format
	Extensions() []string
	// Sniff reports whether data looks like this format. Formats without a
	// reliable signature return false and are picked by extension.
	Sniff(data []byte) bool
	Parse(data []byte, name string) (*book.Document, error)
}

var registry []Format

// Register adds a format reader to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// Open reads and parses the book at path.
func Open(path string) (*book.Document, error) {
	return OpenWithHint(path, book.FormatUnknown)
}

// OpenWithHint is Open with an explicit format, bypassing detection.
func OpenWithHint(path string, hint book.Format) (*book.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, book.NewFormatError(path, hint, "invalid path", err)
	}
	return Parse(data, path, hint)
}

// Parse parses data as a book. name is used for extension based detection
// and error messages. Parse never returns a document without chapters.
func Parse(data []byte, name string, hint book.Format) (doc *book.Document, err error) {
	if len(data) == 0 {
		return nil, book.NewFormatError(name, hint, "zero-byte file", book.ErrEmptyBook)
	}

	f := Detect(data, name, hint)
	if f == nil {
		return nil, book.NewFormatError(name, hint, "", book.ErrUnsupported)
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = book.NewFormatError(name, f.Kind(), "malformed container", fmt.Errorf("%v", r))
		}
	}()

	doc, err = f.Parse(data, name)
	if err != nil {
		if book.IsFormatError(err) {
			return nil, err
		}
		return nil, book.NewFormatError(name, f.Kind(), "", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, book.NewFormatError(name, f.Kind(), err.Error(), book.ErrEmptyBook)
	}
	if !hasText(doc) {
		return nil, book.NewFormatError(name, f.Kind(), "no readable text", book.ErrEmptyBook)
	}

	doc.ID = book.ContentID(data)
	doc.Path = name
	doc.Format = f.Kind()
	if doc.Title == "" {
		doc.Title = baseTitle(name)
	}
	return doc, nil
}

// Detect picks the Format for data. An explicit hint wins, then content
// signatures, then the file extension.
func Detect(data []byte, name string, hint book.Format) Format {
	if hint != book.FormatUnknown {
		for _, f := range registry {
			if f.Kind() == hint {
				return f
			}
		}
	}
	for _, f := range registry {
		if f.Sniff(data) {
			return f
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f
			}
		}
	}
	return nil
}

// Supported reports whether a file name has an extension some format handles.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return true
			}
		}
	}
	return false
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}

func hasText(doc *book.Document) bool {
	for _, ch := range doc.Chapters {
		for _, b := range ch.Blocks {
			if b.Kind != book.Empty && strings.TrimSpace(b.Content) != "" {
				return true
			}
		}
	}
	return false
}

func baseTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
