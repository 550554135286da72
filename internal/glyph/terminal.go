// Package glyph provides layout.Metrics implementations for the front-ends.
package glyph

import (
	"github.com/mattn/go-runewidth"

	"github.com/metcalfc/shu/internal/layout"
)

// Terminal measures glyphs in terminal cells. Wide characters take two
// cells, everything else one, and every glyph is one row tall. In vertical
// mode a column is two cells wide so a wide glyph fits upright.
type Terminal struct {
	orientation layout.Orientation
	cond        *runewidth.Condition
}

// NewTerminal returns cell metrics for the given orientation.
func NewTerminal(o layout.Orientation) *Terminal {
	cond := runewidth.NewCondition()
	cond.EastAsianWidth = false
	return &Terminal{orientation: o, cond: cond}
}

func (t *Terminal) Glyph(r rune, bold bool) layout.Size {
	w := t.cond.RuneWidth(r)
	if w < 0 {
		w = 0
	}
	return layout.Size{Width: float64(w), Height: 1}
}

func (t *Terminal) LinePitch() float64 {
	if t.orientation == layout.Vertical {
		return 2
	}
	return 1
}

// Cells returns the display width of s in cells.
func (t *Terminal) Cells(s string) int {
	return t.cond.StringWidth(s)
}
