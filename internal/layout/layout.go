// Package layout reflows normalized chapters into fixed-size pages, either
// horizontally (lines left to right, top to bottom) or vertically (columns
// top to bottom, right to left).
package layout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/normalize"
)

// Orientation is the writing direction of a page.
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// ParseOrientation accepts "horizontal" or "vertical".
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horizontal", "h", "":
		return Horizontal, nil
	case "vertical", "v":
		return Vertical, nil
	}
	return Horizontal, fmt.Errorf("unknown orientation %q", s)
}

// Size is a glyph box in the metrics' units.
type Size struct {
	Width, Height float64
}

// Point is a position inside the viewport, origin at the top left.
type Point struct {
	X, Y float64
}

// Metrics supplies glyph boxes. It is provided by the front-end; the engine
// never loads fonts.
type Metrics interface {
	Glyph(r rune, bold bool) Size
	// LinePitch is the distance between two lines (horizontal) or two
	// columns (vertical).
	LinePitch() float64
}

// Viewport is the drawable page area.
type Viewport struct {
	Width, Height float64
}

// Config is the layout-affecting part of the settings. It is treated as an
// immutable snapshot for the duration of a pass.
type Config struct {
	Viewport         Viewport
	Orientation      Orientation
	Metrics          Metrics
	IgnoreFontWeight bool
	// Indent is the first-line indent of paragraphs in em.
	Indent float64
}

// Equal reports whether c and o lay out identically. Metrics providers are
// compared by identity, so they must be comparable types.
func (c Config) Equal(o Config) bool {
	return c.Viewport == o.Viewport &&
		c.Orientation == o.Orientation &&
		c.IgnoreFontWeight == o.IgnoreFontWeight &&
		c.Indent == o.Indent &&
		c.Metrics == o.Metrics
}

// Run is a stretch of a line sharing weight and rotation.
type Run struct {
	Text    string
	Offset  int // rune offset of Text within the block
	Origin  Point
	Extent  float64 // advance along the line
	Bold    bool
	Rotated bool // Latin text set sideways in a vertical column
}

// Line is one line (or column) of a page. Block is the source index of the
// block it came from and Offset the rune offset of its first character.
type Line struct {
	Block  int
	Offset int
	Length int
	Origin Point
	Runs   []Run
}

// Text returns the characters of the line.
func (l Line) Text() string {
	var sb strings.Builder
	for _, r := range l.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Page is a laid-out page. Number is 0-based within the chapter.
type Page struct {
	Chapter     int
	Number      int
	Orientation Orientation
	Lines       []Line
}

// Text returns the page's lines joined by newlines.
func (p Page) Text() string {
	lines := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = l.Text()
	}
	return strings.Join(lines, "\n")
}

// Engine lays out chapters. It holds no caches and is safe for concurrent
// use.
type Engine struct {
	log *slog.Logger
}

// NewEngine returns an Engine logging to log. A nil logger discards.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{log: log}
}

// Layout reflows nc into pages. A chapter without retained blocks yields a
// single empty page. The context is checked between lines; a cancelled pass
// returns ctx.Err() and no pages.
func (e *Engine) Layout(ctx context.Context, nc normalize.NormalizedChapter, cfg Config) ([]Page, error) {
	start := time.Now()
	m, err := newMeasurer(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.check(nc); err != nil {
		return nil, err
	}

	perPage := m.linesPerPage()
	var (
		pages []Page
		cur   = Page{Chapter: nc.Index, Orientation: cfg.Orientation}
	)
	emit := func(l Line) {
		if len(cur.Lines) == perPage {
			pages = append(pages, cur)
			cur = Page{Chapter: nc.Index, Number: len(pages), Orientation: cfg.Orientation}
		}
		l.Origin = m.lineOrigin(len(cur.Lines))
		for i := range l.Runs {
			l.Runs[i].Origin = m.runOrigin(l.Origin, l.Runs[i].Origin)
		}
		cur.Lines = append(cur.Lines, l)
	}

	for _, b := range nc.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.breakBlock(ctx, b, emit); err != nil {
			return nil, err
		}
	}
	pages = append(pages, cur)

	e.log.Debug("chapter laid out",
		"chapter", nc.Index,
		"orientation", cfg.Orientation.String(),
		"pages", len(pages),
		"elapsed", time.Since(start))
	return pages, nil
}

// Validate checks that cfg can produce at least one glyph per line and one
// line per page for ordinary CJK text.
func (cfg Config) Validate() error {
	m, err := newMeasurer(cfg)
	if err != nil {
		return err
	}
	return m.fits('國', false)
}

// FirstPosition returns the address of the page's first character. An empty
// page has none.
func (p Page) FirstPosition() (book.LogicalPosition, bool) {
	if len(p.Lines) == 0 {
		return book.LogicalPosition{}, false
	}
	l := p.Lines[0]
	return book.LogicalPosition{Chapter: p.Chapter, Block: l.Block, Offset: l.Offset}, true
}
