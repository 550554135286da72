package pagination

import (
	"strings"

	"github.com/metcalfc/shu/internal/book"
)

// selectionSplitters end a word when selecting text for lookup.
const selectionSplitters = " \t#%&()+,-./;<=>?@[\\]_{}~—‘’“”…─ⸯ　、。〈〉《》「」『』【】〔〕〖〗" +
	"︗︘︙︱︵︶︷︸︹︺︻︼︽︾︿﹀﹁﹂﹃﹄！＃％＆（）＊＋，－／：；＝？［］｀｛｜｝～"

func isSplitter(r rune) bool {
	return strings.ContainsRune(selectionSplitters, r)
}

// Text returns the normalized text between two positions, from inclusive
// and to exclusive. Blocks are separated by newlines. Positions are
// clamped to the document; from after to yields "".
func (n *Navigator) Text(from, to book.LogicalPosition) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !from.Before(to) {
		return ""
	}
	blockOf := func(p book.LogicalPosition) book.LogicalPosition {
		return book.LogicalPosition{Chapter: p.Chapter, Block: p.Block}
	}
	first, last := blockOf(from), blockOf(to)

	var sb strings.Builder
	wrote := false
	for ch := max(from.Chapter, 0); ch <= to.Chapter && ch < len(n.chs); ch++ {
		for _, b := range n.chs[ch].Blocks {
			at := book.LogicalPosition{Chapter: ch, Block: b.Source}
			c1, c2 := at.Compare(first), at.Compare(last)
			if c1 < 0 || c2 > 0 {
				continue
			}
			rs := []rune(b.Content)
			lo, hi := 0, len(rs)
			if c1 == 0 {
				lo = min(max(from.Offset, 0), len(rs))
			}
			if c2 == 0 {
				hi = min(max(to.Offset, lo), len(rs))
			}
			if wrote {
				sb.WriteByte('\n')
			}
			sb.WriteString(string(rs[lo:hi]))
			wrote = true
		}
	}
	return sb.String()
}

// WordAt returns the word around pos and its bounds (to exclusive). A
// position on a splitter selects just that character. It fails when pos
// does not address a character of a retained block.
func (n *Navigator) WordAt(pos book.LogicalPosition) (string, book.LogicalPosition, book.LogicalPosition, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkChapter(pos.Chapter); err != nil {
		return "", pos, pos, err
	}
	nc := &n.chs[pos.Chapter]
	i, ok := nc.Find(pos.Block)
	if !ok {
		return "", pos, pos, book.ErrOutOfRange
	}
	rs := []rune(nc.Blocks[i].Content)
	if pos.Offset < 0 || pos.Offset >= len(rs) {
		return "", pos, pos, book.ErrOutOfRange
	}

	lo, hi := pos.Offset, pos.Offset+1
	if !isSplitter(rs[pos.Offset]) {
		for lo > 0 && !isSplitter(rs[lo-1]) {
			lo--
		}
		for hi < len(rs) && !isSplitter(rs[hi]) {
			hi++
		}
	}
	from, to := pos, pos
	from.Offset, to.Offset = lo, hi
	return string(rs[lo:hi]), from, to, nil
}
