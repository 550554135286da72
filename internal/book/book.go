// Package book holds the format-independent document model shared by every
// parser, the normalizer and the layout engine.
package book

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Format identifies the container a Document was parsed from.
type Format int

const (
	FormatUnknown Format = iota
	FormatEPUB
	FormatHaodoo
	FormatText
	FormatHTML
	FormatMarkdown
)

func (f Format) String() string {
	switch f {
	case FormatEPUB:
		return "EPUB"
	case FormatHaodoo:
		return "Haodoo"
	case FormatText:
		return "Text"
	case FormatHTML:
		return "HTML"
	case FormatMarkdown:
		return "Markdown"
	}
	return "unknown"
}

// BlockKind classifies a TextBlock.
type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	Empty
)

func (k BlockKind) String() string {
	switch k {
	case Paragraph:
		return "paragraph"
	case Heading:
		return "heading"
	case Empty:
		return "empty"
	}
	return fmt.Sprintf("BlockKind(%d)", int(k))
}

// StyleHints records presentation hints the book itself asked for. They are
// only honoured downstream when the reader enables book custom colour/font.
type StyleHints struct {
	Color      string
	Background string
	FontFamily string
	Bold       bool
}

// Custom reports whether the block carries any colour or font hint.
func (h StyleHints) Custom() bool {
	return h.Color != "" || h.Background != "" || h.FontFamily != ""
}

// TextBlock is one paragraph, heading or blank line of a chapter.
type TextBlock struct {
	Kind    BlockKind
	Content string
	Hints   StyleHints
}

// Chapter is the unit of independent layout.
type Chapter struct {
	Index  int
	Title  string
	Blocks []TextBlock
}

// Document is a parsed book. It is never mutated after the parser returns it.
type Document struct {
	ID       string
	Title    string
	Author   string
	Language string
	Path     string
	Format   Format
	Chapters []Chapter
}

// Chapter returns the chapter at index i.
func (d *Document) Chapter(i int) (*Chapter, error) {
	if i < 0 || i >= len(d.Chapters) {
		return nil, fmt.Errorf("chapter %d of %d: %w", i, len(d.Chapters), ErrOutOfRange)
	}
	return &d.Chapters[i], nil
}

// Validate checks the structural invariants every parser must uphold:
// at least one chapter and indices contiguous from zero.
func (d *Document) Validate() error {
	if len(d.Chapters) == 0 {
		return fmt.Errorf("document has no chapters")
	}
	for i, ch := range d.Chapters {
		if ch.Index != i {
			return fmt.Errorf("chapter at position %d has index %d", i, ch.Index)
		}
	}
	return nil
}

// CharCount returns the number of runes in the document's block content.
func (d *Document) CharCount() int {
	n := 0
	for _, ch := range d.Chapters {
		for _, b := range ch.Blocks {
			n += len([]rune(b.Content))
		}
	}
	return n
}

// ContentID derives a stable document identifier from the book bytes, so
// reading state survives renames and moves.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
