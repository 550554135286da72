package pagination

import (
	"sort"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/layout"
)

type lineStart struct {
	block, offset int
	page, line    int
}

// pageIndex maps block offsets to lines. It is built once per layout pass
// and never patched.
type pageIndex struct {
	lines []lineStart // sorted by (block, offset)
	first []book.LogicalPosition
}

func buildIndex(pages []layout.Page) *pageIndex {
	idx := &pageIndex{first: make([]book.LogicalPosition, len(pages))}
	for p, pg := range pages {
		idx.first[p] = book.LogicalPosition{Chapter: pg.Chapter}
		if pos, ok := pg.FirstPosition(); ok {
			idx.first[p] = pos
		}
		for i, l := range pg.Lines {
			idx.lines = append(idx.lines, lineStart{block: l.Block, offset: l.Offset, page: p, line: i})
		}
	}
	return idx
}

// lookup finds the line containing offset of block.
func (idx *pageIndex) lookup(block, offset int) book.PageRef {
	i := sort.Search(len(idx.lines), func(i int) bool {
		e := idx.lines[i]
		return e.block > block || (e.block == block && e.offset > offset)
	}) - 1
	if i < 0 {
		return book.PageRef{}
	}
	e := idx.lines[i]
	ref := book.PageRef{Page: e.page, Line: e.line}
	if e.block == block {
		ref.Offset = offset - e.offset
	}
	return ref
}
