// Package normalize prepares parsed chapters for layout: Unicode NFC,
// whitespace-only paragraphs folded into Empty blocks and the optional
// removal of Empty blocks. Removed blocks keep their place in the logical
// address space through NormalizedBlock.Source.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/metcalfc/shu/internal/book"
)

// Options are the normalization-affecting settings.
type Options struct {
	StripEmptyLines bool
	ChapterFilters  []*regexp.Regexp
}

// NormalizedBlock is a retained block. Source is its index in the original
// chapter and is what LogicalPosition.Block refers to.
type NormalizedBlock struct {
	Source  int
	Kind    book.BlockKind
	Content string
	Hints   book.StyleHints
}

// NormalizedChapter is a chapter ready for layout. BlockCount is the length
// of the original block list.
type NormalizedChapter struct {
	Index      int
	Title      string
	Blocks     []NormalizedBlock
	BlockCount int
}

// Normalize normalizes every chapter of doc.
func Normalize(doc *book.Document, opts Options) []NormalizedChapter {
	out := make([]NormalizedChapter, len(doc.Chapters))
	for i := range doc.Chapters {
		out[i] = NormalizeChapter(&doc.Chapters[i], opts)
	}
	return out
}

// NormalizeChapter normalizes a single chapter.
func NormalizeChapter(ch *book.Chapter, opts Options) NormalizedChapter {
	nc := NormalizedChapter{
		Index:      ch.Index,
		Title:      norm.NFC.String(ch.Title),
		BlockCount: len(ch.Blocks),
		Blocks:     make([]NormalizedBlock, 0, len(ch.Blocks)),
	}
	for i, b := range ch.Blocks {
		nb := NormalizedBlock{Source: i, Kind: b.Kind, Hints: b.Hints}
		if b.Kind != book.Empty {
			nb.Content = cleanText(b.Content)
			if strings.TrimFunc(nb.Content, unicode.IsSpace) == "" {
				nb.Kind = book.Empty
				nb.Content = ""
			}
		}
		if nb.Kind == book.Empty && opts.StripEmptyLines {
			continue
		}
		nc.Blocks = append(nc.Blocks, nb)
	}
	return nc
}

// cleanText applies NFC and drops carriage returns and other control
// characters. Tabs become spaces.
func cleanText(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n':
			return ' '
		case unicode.IsControl(r), r == '\ufeff':
			return -1
		}
		return r
	}, s)
}

// Successor returns the position in nc.Blocks of the nearest retained block
// whose Source is at or after source, or -1 when none remains.
func (nc *NormalizedChapter) Successor(source int) int {
	lo, hi := 0, len(nc.Blocks)
	for lo < hi {
		mid := (lo + hi) / 2
		if nc.Blocks[mid].Source < source {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == len(nc.Blocks) {
		return -1
	}
	return lo
}

// Find returns the position in nc.Blocks of the block with the given Source.
func (nc *NormalizedChapter) Find(source int) (int, bool) {
	i := nc.Successor(source)
	if i < 0 || nc.Blocks[i].Source != source {
		return -1, false
	}
	return i, true
}

// Text returns the chapter's retained content in reading order, one line per
// block. Empty blocks contribute an empty line.
func (nc *NormalizedChapter) Text() string {
	lines := make([]string, len(nc.Blocks))
	for i, b := range nc.Blocks {
		lines[i] = b.Content
	}
	return strings.Join(lines, "\n")
}

// ChapterEntry is one row of the chapter list shown to the reader.
type ChapterEntry struct {
	Index int
	Title string
}

// Visible lists the chapters whose titles match none of opts.ChapterFilters.
// Filtering only hides list entries; chapter indices are unchanged.
func Visible(chapters []NormalizedChapter, opts Options) []ChapterEntry {
	entries := make([]ChapterEntry, 0, len(chapters))
	for _, ch := range chapters {
		if filtered(ch.Title, opts.ChapterFilters) {
			continue
		}
		entries = append(entries, ChapterEntry{Index: ch.Index, Title: ch.Title})
	}
	return entries
}

func filtered(title string, filters []*regexp.Regexp) bool {
	for _, re := range filters {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// CompileFilters compiles chapter title patterns. Blank patterns are skipped.
func CompileFilters(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("chapter filter %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
