package reader

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/metcalfc/shu/internal/book"
)

// MarkdownFormat implements Format for Markdown files.
type MarkdownFormat struct{}

func init() {
	Register(&MarkdownFormat{})
}

func (f *MarkdownFormat) Name() string         { return "Markdown" }
func (f *MarkdownFormat) Kind() book.Format     { return book.FormatMarkdown }
func (f *MarkdownFormat) Extensions() []string { return []string{".md", ".markdown"} }
func (f *MarkdownFormat) Sniff([]byte) bool    { return false }

// Parse makes one chapter per top level heading. The top level is the
// smallest heading level used in the file.
func (f *MarkdownFormat) Parse(data []byte, name string) (*book.Document, error) {
	src := data
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	top := 0
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && (top == 0 || h.Level < top) {
			top = h.Level
		}
	}

	doc := &book.Document{}
	var chapters []book.Chapter
	add := func(b book.TextBlock) {
		if len(chapters) == 0 {
			chapters = append(chapters, book.Chapter{Title: baseTitle(name)})
		}
		last := &chapters[len(chapters)-1]
		last.Blocks = append(last.Blocks, b)
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := inlineText(node, src)
			if node.Level == top {
				if doc.Title == "" && len(chapters) == 0 {
					doc.Title = title
				}
				chapters = append(chapters, book.Chapter{Index: len(chapters), Title: title})
			}
			add(book.TextBlock{Kind: book.Heading, Content: title, Hints: book.StyleHints{Bold: true}})
		case *ast.ThematicBreak:
			add(book.TextBlock{Kind: book.Empty})
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimRight(string(seg.Value(src)), "\r\n")
				if strings.TrimSpace(line) == "" {
					add(book.TextBlock{Kind: book.Empty})
					continue
				}
				add(book.TextBlock{Kind: book.Paragraph, Content: line})
			}
		default:
			for _, p := range blockTexts(n, src) {
				add(book.TextBlock{Kind: book.Paragraph, Content: p})
			}
		}
	}

	for i := range chapters {
		chapters[i].Index = i
	}
	doc.Chapters = chapters
	return doc, nil
}

// blockTexts returns one string per paragraph-like descendant of n, so list
// items and block quotes keep their paragraph boundaries.
func blockTexts(n ast.Node, src []byte) []string {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if t := inlineText(n, src); t != "" {
			return []string{t}
		}
		return nil
	}
	var out []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, blockTexts(c, src)...)
	}
	return out
}

// inlineText flattens the inline children of n. Soft line breaks become a
// space unless both neighbours are CJK.
func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(t.Value)
			case *ast.Image:
				buf.WriteRune(ImageChar)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return joinLines(buf.String())
}

func joinLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var buf strings.Builder
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i > 0 && line != "" && buf.Len() > 0 {
			prev := []rune(buf.String())
			if !(book.IsCJK(prev[len(prev)-1]) && book.IsCJK([]rune(line)[0])) {
				buf.WriteByte(' ')
			}
		}
		buf.WriteString(line)
	}
	return buf.String()
}
