package main

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/metcalfc/shu/internal/glyph"
	"github.com/metcalfc/shu/internal/layout"
)

// cell is one terminal cell of a rendered page. An empty text marks the
// right half of a wide glyph.
type cell struct {
	text  string
	bold  bool
	block int
}

// pageGrid is a page drawn into terminal cells.
type pageGrid [][]cell

// styleFunc decorates a stretch of cells sharing weight and source block.
type styleFunc func(s string, bold bool, block int) string

func plainStyle(s string, _ bool, _ int) string { return s }

// renderCells draws a page laid out with terminal metrics into a
// width x height grid. Glyphs falling outside the grid are dropped.
func renderCells(p layout.Page, width, height int, m *glyph.Terminal) pageGrid {
	grid := make(pageGrid, height)
	for y := range grid {
		grid[y] = make([]cell, width)
		for x := range grid[y] {
			grid[y][x] = cell{text: " ", block: -1}
		}
	}
	put := func(x, y int, r rune, w int, bold bool, block int) {
		if y < 0 || y >= height || x < 0 {
			return
		}
		if w == 0 {
			// combining marks join the previous cell
			if x > 0 && x-1 < width {
				grid[y][x-1].text += string(r)
			}
			return
		}
		if x+w > width {
			return
		}
		grid[y][x] = cell{text: string(r), bold: bold, block: block}
		for i := 1; i < w; i++ {
			grid[y][x+i] = cell{bold: bold, block: block}
		}
	}

	for _, l := range p.Lines {
		for _, run := range l.Runs {
			x, y := int(run.Origin.X), int(run.Origin.Y)
			for _, r := range run.Text {
				w := m.Cells(string(r))
				put(x, y, r, w, run.Bold, l.Block)
				if p.Orientation == layout.Vertical {
					if w > 0 {
						y++
					}
				} else {
					x += w
				}
			}
		}
	}
	return grid
}

// rows renders the grid one string per row, grouping equally styled cells.
func (g pageGrid) rows(style styleFunc) []string {
	out := make([]string, len(g))
	for y, row := range g {
		var sb, span strings.Builder
		cur := cell{block: -2}
		flush := func() {
			if span.Len() > 0 {
				sb.WriteString(style(span.String(), cur.bold, cur.block))
				span.Reset()
			}
		}
		for _, c := range row {
			if c.text == "" {
				continue
			}
			if c.bold != cur.bold || c.block != cur.block {
				flush()
				cur = c
			}
			span.WriteString(c.text)
		}
		flush()
		out[y] = sb.String()
	}
	return out
}

// arrowStep maps an arrow key to a page step. Vertical books read right to
// left, so the left arrow turns forward.
func arrowStep(o layout.Orientation, k string) int {
	switch k {
	case "down":
		return 1
	case "up":
		return -1
	case "right":
		if o == layout.Vertical {
			return -1
		}
		return 1
	case "left":
		if o == layout.Vertical {
			return 1
		}
		return -1
	}
	return 0
}

// hexColor parses "#rgb" and "#rrggbb" colours from style hints. Named and
// functional CSS colours are ignored.
func hexColor(s string) (color.NRGBA, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, false
	}
	s = s[1:]
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
