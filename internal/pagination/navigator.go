// Package pagination keeps per-chapter page indices for one document and
// translates between logical positions and laid-out pages. Chapters are
// laid out lazily on background goroutines; a chapter is only ever served
// from the pages of the current configuration.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/normalize"
)

// State is the layout state of one chapter.
type State int

const (
	Stale State = iota
	Computing
	Fresh
	Failed
)

func (s State) String() string {
	switch s {
	case Stale:
		return "stale"
	case Computing:
		return "computing"
	case Fresh:
		return "fresh"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is the immutable configuration a layout pass runs against.
type Snapshot struct {
	Layout    layout.Config
	Normalize normalize.Options
}

type slot struct {
	state   State
	pages   []layout.Page
	index   *pageIndex
	err     error
	cancel  context.CancelFunc
	running bool
	wanted  bool
}

// Navigator owns the normalized chapters and page indices of one document.
type Navigator struct {
	doc    *book.Document
	engine *layout.Engine
	log    *slog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	snap   Snapshot
	gen    uint64
	chs    []normalize.NormalizedChapter
	slots  []*slot
	change chan struct{}
	closed bool
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLogger sets the logger used for layout events.
func WithLogger(log *slog.Logger) Option {
	return func(n *Navigator) { n.log = log }
}

// WithEngine replaces the default layout engine.
func WithEngine(e *layout.Engine) Option {
	return func(n *Navigator) { n.engine = e }
}

// New normalizes doc under snap. No chapter is laid out until requested.
func New(doc *book.Document, snap Snapshot, opts ...Option) *Navigator {
	ctx, stop := context.WithCancel(context.Background())
	n := &Navigator{
		doc:    doc,
		ctx:    ctx,
		stop:   stop,
		snap:   snap,
		chs:    normalize.Normalize(doc, snap.Normalize),
		slots:  make([]*slot, len(doc.Chapters)),
		change: make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	if n.log == nil {
		n.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if n.engine == nil {
		n.engine = layout.NewEngine(n.log)
	}
	n.log = n.log.With("doc", doc.ID)
	for i := range n.slots {
		n.slots[i] = &slot{}
	}
	return n
}

// Document returns the document being paginated.
func (n *Navigator) Document() *book.Document { return n.doc }

// Snapshot returns the configuration currently in effect.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snap
}

// Configure installs a new snapshot. Any change to layout or to empty line
// stripping marks every chapter Stale and cancels in-flight passes; a
// chapter that was being computed is recomputed for the new snapshot once
// its cancelled pass returns. Chapter filter changes only affect Chapters.
// It reports whether the page indices were invalidated.
func (n *Navigator) Configure(snap Snapshot) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	relayout := !snap.Layout.Equal(n.snap.Layout)
	renormalize := snap.Normalize.StripEmptyLines != n.snap.Normalize.StripEmptyLines
	n.snap = snap
	if !relayout && !renormalize {
		return false
	}
	if renormalize {
		n.chs = normalize.Normalize(n.doc, snap.Normalize)
	}

	n.gen++
	for _, s := range n.slots {
		s.pages, s.index, s.err = nil, nil, nil
		s.state = Stale
		if s.running {
			s.cancel()
		} else {
			s.wanted = false
		}
	}
	n.log.Debug("pagination invalidated", "generation", n.gen,
		"orientation", snap.Layout.Orientation.String(), "strip_empty", snap.Normalize.StripEmptyLines)
	n.notify()
	return true
}

// Close cancels all background work. The navigator must not be used after.
func (n *Navigator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.stop()
	n.notify()
}

// ChapterCount returns the number of chapters, filtered or not.
func (n *Navigator) ChapterCount() int { return len(n.slots) }

// Chapters lists the chapters not hidden by the chapter filters.
func (n *Navigator) Chapters() []normalize.ChapterEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return normalize.Visible(n.chs, n.snap.Normalize)
}

// Normalized returns the normalized form of chapter ch.
func (n *Navigator) Normalized(ch int) (normalize.NormalizedChapter, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkChapter(ch); err != nil {
		return normalize.NormalizedChapter{}, err
	}
	return n.chs[ch], nil
}

// State returns the layout state of chapter ch.
func (n *Navigator) State(ch int) State {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch < 0 || ch >= len(n.slots) {
		return Stale
	}
	return n.slots[ch].state
}

// Request schedules a background layout of chapter ch unless it is Fresh
// or already being computed.
func (n *Navigator) Request(ch int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkChapter(ch); err != nil {
		return err
	}
	n.request(ch)
	return nil
}

func (n *Navigator) request(ch int) {
	s := n.slots[ch]
	s.wanted = true
	if n.closed || s.running || s.state == Fresh || s.state == Failed {
		return
	}
	n.start(ch)
}

// start launches a pass for the current generation. Called with mu held.
func (n *Navigator) start(ch int) {
	s := n.slots[ch]
	ctx, cancel := context.WithCancel(n.ctx)
	s.running, s.cancel, s.state = true, cancel, Computing
	gen, nc, cfg := n.gen, n.chs[ch], n.snap.Layout
	go n.run(ctx, ch, gen, nc, cfg)
}

func (n *Navigator) run(ctx context.Context, ch int, gen uint64, nc normalize.NormalizedChapter, cfg layout.Config) {
	pages, err := n.engine.Layout(ctx, nc, cfg)

	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.notify()

	s := n.slots[ch]
	s.cancel()
	s.running, s.cancel = false, nil

	log := n.log.With("chapter", ch, "generation", gen)
	switch {
	case gen != n.gen:
		log.Debug("layout superseded")
		if s.wanted && !n.closed {
			n.start(ch)
		}
		return
	case err != nil && errors.Is(err, context.Canceled):
		s.state = Stale
		return
	case err != nil:
		log.Warn("layout failed", "error", err)
		s.state, s.err = Failed, err
		return
	}
	s.pages, s.index, s.state = pages, buildIndex(pages), Fresh
	log.Debug("layout fresh", "pages", len(pages))
}

func (n *Navigator) notify() {
	close(n.change)
	n.change = make(chan struct{})
}

// Await requests chapter ch and blocks until it is Fresh, fails or ctx is
// done.
func (n *Navigator) Await(ctx context.Context, ch int) error {
	for {
		n.mu.Lock()
		if err := n.checkChapter(ch); err != nil {
			n.mu.Unlock()
			return err
		}
		s := n.slots[ch]
		switch {
		case s.state == Fresh:
			n.mu.Unlock()
			return nil
		case s.state == Failed:
			err := s.err
			n.mu.Unlock()
			return fmt.Errorf("layout chapter %d: %w", ch, err)
		case n.closed:
			n.mu.Unlock()
			return fmt.Errorf("navigator closed: %w", context.Canceled)
		}
		n.request(ch)
		wait := n.change
		n.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// LayoutAll lays out every chapter with at most limit passes in flight.
func (n *Navigator) LayoutAll(ctx context.Context, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for ch := range n.slots {
		ch := ch
		g.Go(func() error { return n.Await(ctx, ch) })
	}
	return g.Wait()
}

// fresh returns the slot of ch if it can be served, scheduling it otherwise.
// Called with mu held.
func (n *Navigator) fresh(ch int) (*slot, error) {
	if err := n.checkChapter(ch); err != nil {
		return nil, err
	}
	s := n.slots[ch]
	switch s.state {
	case Fresh:
		return s, nil
	case Failed:
		return nil, fmt.Errorf("layout chapter %d: %w", ch, s.err)
	}
	n.request(ch)
	return nil, fmt.Errorf("chapter %d is %s: %w", ch, s.state, book.ErrNotReady)
}

func (n *Navigator) checkChapter(ch int) error {
	if ch < 0 || ch >= len(n.slots) {
		return fmt.Errorf("chapter %d of %d: %w", ch, len(n.slots), book.ErrOutOfRange)
	}
	return nil
}

// Page returns page p of chapter ch, or ErrNotReady while the chapter is
// not Fresh.
func (n *Navigator) Page(ch, p int) (layout.Page, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.fresh(ch)
	if err != nil {
		return layout.Page{}, err
	}
	if p < 0 || p >= len(s.pages) {
		return layout.Page{}, fmt.Errorf("page %d of chapter %d (%d pages): %w", p, ch, len(s.pages), book.ErrOutOfRange)
	}
	return s.pages[p], nil
}

// PageCount returns the number of pages in chapter ch.
func (n *Navigator) PageCount(ch int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.fresh(ch)
	if err != nil {
		return 0, err
	}
	return len(s.pages), nil
}

// GlobalPage numbers page p of chapter ch across the whole book. Every
// preceding chapter must be Fresh.
func (n *Navigator) GlobalPage(ch, p int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkChapter(ch); err != nil {
		return 0, err
	}
	total := 0
	for i := 0; i < ch; i++ {
		s, err := n.fresh(i)
		if err != nil {
			return 0, err
		}
		total += len(s.pages)
	}
	s, err := n.fresh(ch)
	if err != nil {
		return 0, err
	}
	if p < 0 || p >= len(s.pages) {
		return 0, fmt.Errorf("page %d of chapter %d: %w", p, ch, book.ErrOutOfRange)
	}
	return total + p, nil
}

// TotalPages returns the page count of the whole book.
func (n *Navigator) TotalPages() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for i := range n.slots {
		s, err := n.fresh(i)
		if err != nil {
			return 0, err
		}
		total += len(s.pages)
	}
	return total, nil
}

// Resolve maps a logical position to the page showing it. A block removed
// by normalization resolves to the next retained block; an offset past the
// end of its block resolves to the block's last line.
func (n *Navigator) Resolve(pos book.LogicalPosition) (book.PageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.fresh(pos.Chapter)
	if err != nil {
		return book.PageRef{}, err
	}
	nc := &n.chs[pos.Chapter]
	if len(nc.Blocks) == 0 {
		return book.PageRef{Chapter: pos.Chapter}, nil
	}

	block, offset := max(pos.Block, 0), max(pos.Offset, 0)
	i := nc.Successor(block)
	switch {
	case i < 0:
		// past the last retained block: the end of the chapter
		i = len(nc.Blocks) - 1
		offset = len([]rune(nc.Blocks[i].Content))
	case nc.Blocks[i].Source != block:
		offset = 0
	}
	b := nc.Blocks[i]
	if size := len([]rune(b.Content)); offset >= size {
		offset = max(size-1, 0)
	}

	ref := s.index.lookup(b.Source, offset)
	ref.Chapter = pos.Chapter
	return ref, nil
}

// ResolveWait is Resolve after waiting for the chapter to be laid out.
func (n *Navigator) ResolveWait(ctx context.Context, pos book.LogicalPosition) (book.PageRef, error) {
	if err := n.Await(ctx, pos.Chapter); err != nil {
		return book.PageRef{}, err
	}
	return n.Resolve(pos)
}

// Locate returns the position of the first character on page p of chapter
// ch. An empty page is addressed by the start of the chapter.
func (n *Navigator) Locate(ch, p int) (book.LogicalPosition, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.fresh(ch)
	if err != nil {
		return book.LogicalPosition{}, err
	}
	if p < 0 || p >= len(s.pages) {
		return book.LogicalPosition{}, fmt.Errorf("page %d of chapter %d: %w", p, ch, book.ErrOutOfRange)
	}
	return s.index.first[p], nil
}

// LocateWait is Locate after waiting for the chapter to be laid out.
func (n *Navigator) LocateWait(ctx context.Context, ch, p int) (book.LogicalPosition, error) {
	if err := n.Await(ctx, ch); err != nil {
		return book.LogicalPosition{}, err
	}
	return n.Locate(ch, p)
}

// Position converts a point on a page into a logical position, for
// bookmarks. The offset is clamped to the line.
func (n *Navigator) Position(ch, p, line, offset int) (book.LogicalPosition, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.fresh(ch)
	if err != nil {
		return book.LogicalPosition{}, err
	}
	if p < 0 || p >= len(s.pages) {
		return book.LogicalPosition{}, fmt.Errorf("page %d of chapter %d: %w", p, ch, book.ErrOutOfRange)
	}
	page := s.pages[p]
	if len(page.Lines) == 0 && line == 0 {
		return s.index.first[p], nil
	}
	if line < 0 || line >= len(page.Lines) {
		return book.LogicalPosition{}, fmt.Errorf("line %d of page %d: %w", line, p, book.ErrOutOfRange)
	}
	l := page.Lines[line]
	offset = min(max(offset, 0), l.Length)
	return book.LogicalPosition{Chapter: ch, Block: l.Block, Offset: l.Offset + offset}, nil
}
