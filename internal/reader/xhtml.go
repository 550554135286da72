package reader

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/metcalfc/shu/internal/book"
)

// ImageChar stands in for an embedded image so the reader has something to
// land on; the picture itself is the front-end's business.
const ImageChar = '🖼'

// xhtmlContent is what a single (X)HTML file contributes to a book.
type xhtmlContent struct {
	Title   string // <title> text
	Heading string // first heading text
	Blocks  []book.TextBlock
}

// extractXHTML walks a (X)HTML document and splits it into text blocks.
func extractXHTML(data []byte) (*xhtmlContent, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	w := &blockWriter{}
	out := &xhtmlContent{Title: textContent(findElement(doc, "title"))}
	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}
	w.walk(root, book.StyleHints{})
	w.flush(false)
	out.Blocks = w.blocks
	for _, b := range out.Blocks {
		if b.Kind == book.Heading {
			out.Heading = b.Content
			break
		}
	}
	return out, nil
}

type blockWriter struct {
	blocks  []book.TextBlock
	cur     strings.Builder
	kind    book.BlockKind
	hints   book.StyleHints
	pre     bool
	started bool // any non-empty block emitted yet
	last    rune // last rune written to cur
	pending rune // collapsed whitespace waiting for the next visible rune
}

func (w *blockWriter) walk(n *html.Node, hints book.StyleHints) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data, hints)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, hints)
		}
		return
	}

	hints = elementHints(n, hints)
	switch n.Data {
	case "script", "style", "head", "noscript", "template":
		return
	case "br":
		w.flush(true)
		return
	case "img", "image", "svg":
		w.addRune(ImageChar, hints)
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.flush(false)
		w.kind = book.Heading
		w.children(n, hints)
		w.flush(false)
		return
	case "pre":
		w.flush(false)
		w.pre = true
		w.children(n, hints)
		w.flush(false)
		w.pre = false
		return
	case "p":
		w.flush(false)
		w.children(n, hints)
		w.flush(true)
		return
	}
	if blockElements[n.Data] {
		w.flush(false)
		w.children(n, hints)
		w.flush(false)
		return
	}
	w.children(n, hints)
}

func (w *blockWriter) children(n *html.Node, hints book.StyleHints) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, hints)
	}
}

func (w *blockWriter) text(s string, hints book.StyleHints) {
	if w.pre {
		lines := strings.Split(strings.ReplaceAll(s, "\r", ""), "\n")
		for i, line := range lines {
			if i > 0 {
				w.flush(true)
			}
			if line != "" {
				w.cur.WriteString(line)
				w.mergeHints(hints)
			}
		}
		return
	}
	for _, r := range s {
		w.addRune(r, hints)
	}
}

// addRune appends r, collapsing whitespace runs. A source line break between
// two CJK characters is dropped instead of becoming a space.
func (w *blockWriter) addRune(r rune, hints book.StyleHints) {
	switch {
	case r == '\r' || r == 0:
		return
	case r == '\n':
		if w.last != 0 && w.pending == 0 {
			w.pending = '\n'
		}
		return
	case r == '\u00a0' || (r != '\u3000' && unicode.IsSpace(r)):
		if w.last != 0 {
			w.pending = ' '
		}
		return
	}
	switch w.pending {
	case ' ':
		w.cur.WriteByte(' ')
	case '\n':
		if !(book.IsCJK(w.last) && book.IsCJK(r)) {
			w.cur.WriteByte(' ')
		}
	}
	w.pending = 0
	w.cur.WriteRune(r)
	w.last = r
	w.mergeHints(hints)
}

func (w *blockWriter) mergeHints(h book.StyleHints) {
	if w.hints.Color == "" {
		w.hints.Color = h.Color
	}
	if w.hints.Background == "" {
		w.hints.Background = h.Background
	}
	if w.hints.FontFamily == "" {
		w.hints.FontFamily = h.FontFamily
	}
	w.hints.Bold = w.hints.Bold || h.Bold
}

// flush closes the current block. When keepEmpty is set and nothing was
// written, a blank line is recorded, but never before the first real block.
func (w *blockWriter) flush(keepEmpty bool) {
	content := strings.TrimSpace(w.cur.String())
	switch {
	case content != "":
		w.blocks = append(w.blocks, book.TextBlock{Kind: w.kind, Content: content, Hints: w.hints})
		w.started = true
	case keepEmpty && w.started:
		w.blocks = append(w.blocks, book.TextBlock{Kind: book.Empty})
	}
	w.cur.Reset()
	w.last, w.pending = 0, 0
	w.kind = book.Paragraph
	w.hints = book.StyleHints{}
}

var blockElements = map[string]bool{
	"div": true, "li": true, "blockquote": true, "section": true, "article": true,
	"aside": true, "tr": true, "td": true, "th": true, "dt": true, "dd": true,
	"figure": true, "figcaption": true, "hr": true, "table": true, "ul": true,
	"ol": true, "dl": true, "header": true, "footer": true, "nav": true, "body": true,
}

// elementHints folds presentational attributes of n into the inherited hints.
func elementHints(n *html.Node, inherited book.StyleHints) book.StyleHints {
	h := inherited
	switch n.Data {
	case "b", "strong", "h1", "h2", "h3":
		h.Bold = true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "color":
			if n.Data == "font" {
				h.Color = strings.TrimSpace(a.Val)
			}
		case "face":
			if n.Data == "font" {
				h.FontFamily = strings.TrimSpace(a.Val)
			}
		case "bgcolor":
			h.Background = strings.TrimSpace(a.Val)
		case "style":
			for _, decl := range strings.Split(a.Val, ";") {
				prop, val, ok := strings.Cut(decl, ":")
				if !ok {
					continue
				}
				prop = strings.ToLower(strings.TrimSpace(prop))
				val = strings.TrimSpace(val)
				switch prop {
				case "color":
					h.Color = val
				case "background-color", "background":
					h.Background = val
				case "font-family":
					h.FontFamily = strings.Trim(val, `"'`)
				case "font-weight":
					h.Bold = isBoldWeight(val)
				}
			}
		}
	}
	return h
}

func isBoldWeight(v string) bool {
	v = strings.ToLower(v)
	if v == "bold" || v == "bolder" {
		return true
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 600
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}
