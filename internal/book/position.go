package book

import "fmt"

// LogicalPosition addresses a character independently of layout. Block is the
// index into the chapter's original (unfiltered) block list and Offset counts
// runes within that block.
type LogicalPosition struct {
	Chapter int `json:"chapter"`
	Block   int `json:"block"`
	Offset  int `json:"offset"`
}

func (p LogicalPosition) String() string {
	return fmt.Sprintf("%d:%d:%d", p.Chapter, p.Block, p.Offset)
}

// Compare orders positions in reading order.
func (p LogicalPosition) Compare(o LogicalPosition) int {
	switch {
	case p.Chapter != o.Chapter:
		return cmpInt(p.Chapter, o.Chapter)
	case p.Block != o.Block:
		return cmpInt(p.Block, o.Block)
	default:
		return cmpInt(p.Offset, o.Offset)
	}
}

// Before reports whether p comes strictly before o.
func (p LogicalPosition) Before(o LogicalPosition) bool {
	return p.Compare(o) < 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// PageRef is a laid-out coordinate: a page within a chapter, a line on that
// page and a rune offset within the line.
type PageRef struct {
	Chapter int
	Page    int
	Line    int
	Offset  int
}
