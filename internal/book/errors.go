package book

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a chapter's page index is being rebuilt.
	// Callers retry or wait; stale pages are never served.
	ErrNotReady = errors.New("page index not ready")

	// ErrOutOfRange is returned for chapter or page numbers beyond bounds.
	ErrOutOfRange = errors.New("out of range")

	// ErrUnsupported is returned when no parser recognises a file.
	ErrUnsupported = errors.New("unsupported book format")

	// ErrEmptyBook marks a file that parsed but holds no readable chapter.
	ErrEmptyBook = errors.New("empty book")

	// ErrNotFound is returned when a search has no match anywhere.
	ErrNotFound = errors.New("pattern not found")
)

// FormatError reports a malformed, unsupported or empty book file.
type FormatError struct {
	Path   string
	Format Format
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("failed to load %s", e.Path)
	if e.Format != FormatUnknown {
		msg += " as " + e.Format.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// NewFormatError builds a FormatError for path.
func NewFormatError(path string, format Format, reason string, err error) *FormatError {
	return &FormatError{Path: path, Format: format, Reason: reason, Err: err}
}

// ConfigError reports a layout configuration that cannot produce pages, such
// as a viewport smaller than a single glyph.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid layout config: %s: %s", e.Field, e.Reason)
}

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
