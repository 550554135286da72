// Package session is the entry point used by the front-ends: it opens books
// into handles and answers page and position queries against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/normalize"
	"github.com/metcalfc/shu/internal/pagination"
	"github.com/metcalfc/shu/internal/reader"
)

// ErrUnknownHandle is returned for handles that were never opened or are
// already closed.
var ErrUnknownHandle = errors.New("unknown book handle")

// Handle identifies an open book.
type Handle string

// Library holds the open books and the settings snapshot they share.
type Library struct {
	log    *slog.Logger
	engine *layout.Engine

	mu    sync.RWMutex
	snap  pagination.Snapshot
	books map[Handle]*pagination.Navigator
}

// NewLibrary returns an empty library laying out with snap.
func NewLibrary(snap pagination.Snapshot, log *slog.Logger) *Library {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Library{
		log:    log,
		engine: layout.NewEngine(log),
		snap:   snap,
		books:  make(map[Handle]*pagination.Navigator),
	}
}

// Open parses the book at path.
func (l *Library) Open(path string) (Handle, error) {
	doc, err := reader.Open(path)
	if err != nil {
		return "", err
	}
	return l.add(doc), nil
}

// OpenBytes parses an in-memory book; name drives format detection.
func (l *Library) OpenBytes(data []byte, name string) (Handle, error) {
	doc, err := reader.Parse(data, name, book.FormatUnknown)
	if err != nil {
		return "", err
	}
	return l.add(doc), nil
}

func (l *Library) add(doc *book.Document) Handle {
	h := Handle(uuid.NewString())
	l.mu.Lock()
	defer l.mu.Unlock()
	nav := pagination.New(doc, l.snap,
		pagination.WithEngine(l.engine),
		pagination.WithLogger(l.log.With("handle", string(h))))
	l.books[h] = nav
	l.log.Info("book opened",
		"handle", string(h),
		"title", doc.Title,
		"format", doc.Format.String(),
		"chapters", len(doc.Chapters))
	return h
}

func (l *Library) nav(h Handle) (*pagination.Navigator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.books[h]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h, ErrUnknownHandle)
	}
	return n, nil
}

// Navigator returns the navigator of an open book.
func (l *Library) Navigator(h Handle) (*pagination.Navigator, error) {
	return l.nav(h)
}

// Document returns the parsed document of an open book.
func (l *Library) Document(h Handle) (*book.Document, error) {
	n, err := l.nav(h)
	if err != nil {
		return nil, err
	}
	return n.Document(), nil
}

// Chapters lists the chapters left after chapter title filtering.
func (l *Library) Chapters(h Handle) ([]normalize.ChapterEntry, error) {
	n, err := l.nav(h)
	if err != nil {
		return nil, err
	}
	return n.Chapters(), nil
}

// Page returns page p of chapter ch. It fails with book.ErrNotReady while
// the chapter is being laid out and book.ErrOutOfRange for bad numbers.
func (l *Library) Page(h Handle, ch, p int) (layout.Page, error) {
	n, err := l.nav(h)
	if err != nil {
		return layout.Page{}, err
	}
	return n.Page(ch, p)
}

// BookmarkPosition converts a point on a page into a storable position.
func (l *Library) BookmarkPosition(h Handle, ch, p, line, offset int) (book.LogicalPosition, error) {
	n, err := l.nav(h)
	if err != nil {
		return book.LogicalPosition{}, err
	}
	return n.Position(ch, p, line, offset)
}

// Restore finds the page showing pos under the current settings.
func (l *Library) Restore(h Handle, pos book.LogicalPosition) (book.PageRef, error) {
	n, err := l.nav(h)
	if err != nil {
		return book.PageRef{}, err
	}
	return n.Resolve(pos)
}

// RestoreWait is Restore after waiting for the chapter's layout.
func (l *Library) RestoreWait(ctx context.Context, h Handle, pos book.LogicalPosition) (book.PageRef, error) {
	n, err := l.nav(h)
	if err != nil {
		return book.PageRef{}, err
	}
	return n.ResolveWait(ctx, pos)
}

// Configure applies a new snapshot to every open book.
func (l *Library) Configure(snap pagination.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = snap
	for h, n := range l.books {
		if n.Configure(snap) {
			l.log.Debug("book invalidated", "handle", string(h))
		}
	}
}

// Close releases an open book and cancels its background layout.
func (l *Library) Close(h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.books[h]
	if !ok {
		return fmt.Errorf("%s: %w", h, ErrUnknownHandle)
	}
	n.Close()
	delete(l.books, h)
	return nil
}

// CloseAll closes every open book.
func (l *Library) CloseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for h, n := range l.books {
		n.Close()
		delete(l.books, h)
	}
}
