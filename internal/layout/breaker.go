package layout

import (
	"context"
	"fmt"
	"math"
	"unicode"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/normalize"
)

const ideographicSpace = '　'

type glyphKey struct {
	r    rune
	bold bool
}

// measurer wraps Metrics for one layout pass. Glyph boxes are memoized only
// for the lifetime of the pass.
type measurer struct {
	cfg    Config
	pitch  float64
	extent float64 // usable length of a line along the writing direction
	cross  float64 // viewport size across lines
	cache  map[glyphKey]Size
}

func newMeasurer(cfg Config) (*measurer, error) {
	if cfg.Metrics == nil {
		return nil, &book.ConfigError{Field: "metrics", Reason: "no glyph metrics provider"}
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		return nil, &book.ConfigError{Field: "viewport",
			Reason: fmt.Sprintf("%gx%g is not a drawable area", cfg.Viewport.Width, cfg.Viewport.Height)}
	}
	if cfg.Indent < 0 {
		return nil, &book.ConfigError{Field: "indent", Reason: "must not be negative"}
	}
	m := &measurer{cfg: cfg, pitch: cfg.Metrics.LinePitch(), cache: make(map[glyphKey]Size)}
	m.extent, m.cross = cfg.Viewport.Width, cfg.Viewport.Height
	if cfg.Orientation == Vertical {
		m.extent, m.cross = cfg.Viewport.Height, cfg.Viewport.Width
	}
	if m.pitch <= 0 || m.pitch > m.cross {
		return nil, &book.ConfigError{Field: "viewport",
			Reason: fmt.Sprintf("line pitch %g does not fit in %g", m.pitch, m.cross)}
	}
	return m, nil
}

func (m *measurer) glyph(r rune, bold bool) Size {
	k := glyphKey{r, bold && !m.cfg.IgnoreFontWeight}
	if s, ok := m.cache[k]; ok {
		return s
	}
	s := m.cfg.Metrics.Glyph(k.r, k.bold)
	m.cache[k] = s
	return s
}

// rotated reports whether r is set sideways in a vertical column.
func (m *measurer) rotated(r rune) bool {
	return m.cfg.Orientation == Vertical && !book.IsCJK(r)
}

// advance is how far r moves the pen along the line.
func (m *measurer) advance(r rune, bold bool) float64 {
	s := m.glyph(r, bold)
	if m.cfg.Orientation == Vertical && !m.rotated(r) {
		return s.Height
	}
	return s.Width
}

func (m *measurer) fits(r rune, bold bool) error {
	if adv := m.advance(r, bold); adv > m.extent {
		return &book.ConfigError{Field: "viewport",
			Reason: fmt.Sprintf("glyph %q needs %g but a line holds %g", r, adv, m.extent)}
	}
	return nil
}

// check rejects a chapter containing a glyph wider than an empty line.
func (m *measurer) check(nc normalize.NormalizedChapter) error {
	for _, b := range nc.Blocks {
		bold := blockBold(b)
		for _, r := range b.Content {
			if hangs(r) {
				continue
			}
			if err := m.fits(r, bold); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *measurer) linesPerPage() int {
	return int(math.Floor(m.cross / m.pitch))
}

func (m *measurer) lineOrigin(i int) Point {
	if m.cfg.Orientation == Vertical {
		return Point{X: m.cfg.Viewport.Width - float64(i+1)*m.pitch}
	}
	return Point{Y: float64(i) * m.pitch}
}

// runOrigin converts a pen offset stored in rel.X into viewport coordinates.
func (m *measurer) runOrigin(line Point, rel Point) Point {
	if m.cfg.Orientation == Vertical {
		return Point{X: line.X, Y: line.Y + rel.X}
	}
	return Point{X: line.X + rel.X, Y: line.Y}
}

func (m *measurer) indent() float64 {
	if m.cfg.Indent == 0 {
		return 0
	}
	w := m.cfg.Indent * m.advance(ideographicSpace, false)
	if w >= m.extent {
		return 0
	}
	return w
}

func blockBold(b normalize.NormalizedBlock) bool {
	return b.Hints.Bold || b.Kind == book.Heading
}

// hangs reports whether r may extend past the end of a line without taking
// space. The ideographic space is a full character and never hangs.
func hangs(r rune) bool {
	return r != ideographicSpace && unicode.IsSpace(r)
}

// breakable reports whether a line may end between a and b.
func breakable(a, b rune) bool {
	return book.IsCJK(a) || book.IsCJK(b) || hangs(a)
}

// breakBlock splits one block into lines and hands them to emit in order.
func (m *measurer) breakBlock(ctx context.Context, b normalize.NormalizedBlock, emit func(Line)) error {
	rs := []rune(b.Content)
	if len(rs) == 0 {
		emit(Line{Block: b.Source})
		return nil
	}
	bold := blockBold(b)
	indent := 0.0
	if b.Kind == book.Paragraph {
		indent = m.indent()
	}
	// an indent that leaves no room for the first glyph is dropped
	for _, r := range rs {
		if hangs(r) {
			continue
		}
		if indent+m.advance(r, bold) > m.extent {
			indent = 0
		}
		break
	}

	for pos := 0; pos < len(rs); {
		if err := ctx.Err(); err != nil {
			return err
		}
		avail := m.extent
		if pos == 0 {
			avail -= indent
		}
		end := m.lineEnd(rs, pos, avail, bold)
		l := m.buildLine(b.Source, rs, pos, end, bold)
		if pos == 0 && indent > 0 {
			for i := range l.Runs {
				l.Runs[i].Origin.X += indent
			}
		}
		emit(l)
		pos = end
	}
	return nil
}

// lineEnd finds where the line starting at pos ends. Whitespace hangs so it
// always fits; a line break goes to the last opportunity, or falls back to
// breaking between characters when a run has none.
func (m *measurer) lineEnd(rs []rune, pos int, avail float64, bold bool) int {
	var used, pending float64
	lastBreak := -1
	for i := pos; i < len(rs); i++ {
		r := rs[i]
		if i > pos && breakable(rs[i-1], r) {
			lastBreak = i
		}
		adv := m.advance(r, bold)
		if hangs(r) {
			pending += adv
			continue
		}
		if used+pending+adv <= avail {
			used += pending + adv
			pending = 0
			continue
		}
		switch {
		case i == pos:
			return pos + 1
		case lastBreak > pos:
			return lastBreak
		default:
			return i
		}
	}
	return len(rs)
}

// buildLine turns rs[from:to] into runs. Trailing whitespace gets no extent.
func (m *measurer) buildLine(source int, rs []rune, from, to int, bold bool) Line {
	l := Line{Block: source, Offset: from, Length: to - from}
	visibleEnd := to
	for visibleEnd > from && hangs(rs[visibleEnd-1]) {
		visibleEnd--
	}
	runBold := bold && !m.cfg.IgnoreFontWeight

	var pen float64
	for i := from; i < to; {
		rot := m.rotated(rs[i])
		j := i
		var ext float64
		for j < to && m.rotated(rs[j]) == rot {
			if j < visibleEnd {
				ext += m.advance(rs[j], bold)
			}
			j++
		}
		l.Runs = append(l.Runs, Run{
			Text:    string(rs[i:j]),
			Offset:  i,
			Origin:  Point{X: pen},
			Extent:  ext,
			Bold:    runBold,
			Rotated: rot,
		})
		pen += ext
		i = j
	}
	return l
}
