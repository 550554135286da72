package pagination

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/normalize"
)

// match is one hit of a search, to exclusive.
type match struct {
	from, to book.LogicalPosition
}

// Search finds re in the normalized text. A forward search returns the first
// match starting at or after from; a backward search returns the last match
// starting before it. Both wrap around the end of the book once. Matches are
// confined to one block and empty matches are ignored. The chapters need not
// be laid out.
func (n *Navigator) Search(ctx context.Context, re *regexp.Regexp, from book.LogicalPosition, forward bool) (book.LogicalPosition, book.LogicalPosition, error) {
	n.mu.Lock()
	chs := n.chs
	n.mu.Unlock()

	var first, last, hit *match
	for ch := range chs {
		if err := ctx.Err(); err != nil {
			return from, from, err
		}
		for _, b := range chs[ch].Blocks {
			for _, m := range blockMatches(re, ch, b) {
				m := m
				if first == nil {
					first = &m
				}
				last = &m
				before := m.from.Before(from)
				if forward && !before {
					return m.from, m.to, nil
				}
				if !forward && before {
					hit = &m
				}
			}
		}
	}
	if hit == nil {
		hit = first
		if !forward {
			hit = last
		}
	}
	if hit == nil {
		return from, from, fmt.Errorf("search %q: %w", re.String(), book.ErrNotFound)
	}
	return hit.from, hit.to, nil
}

func blockMatches(re *regexp.Regexp, ch int, b normalize.NormalizedBlock) []match {
	idx := re.FindAllStringIndex(b.Content, -1)
	out := make([]match, 0, len(idx))
	for _, loc := range idx {
		if loc[0] == loc[1] {
			continue
		}
		start := utf8.RuneCountInString(b.Content[:loc[0]])
		end := start + utf8.RuneCountInString(b.Content[loc[0]:loc[1]])
		out = append(out, match{
			from: book.LogicalPosition{Chapter: ch, Block: b.Source, Offset: start},
			to:   book.LogicalPosition{Chapter: ch, Block: b.Source, Offset: end},
		})
	}
	return out
}
