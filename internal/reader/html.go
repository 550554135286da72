package reader

import (
	"github.com/metcalfc/shu/internal/book"
)

// HTMLFormat implements Format for standalone HTML files. Every heading
// starts a chapter; a page without headings is a single chapter.
type HTMLFormat struct{}

func init() {
	Register(&HTMLFormat{})
}

func (f *HTMLFormat) Name() string         { return "HTML" }
func (f *HTMLFormat) Kind() book.Format     { return book.FormatHTML }
func (f *HTMLFormat) Extensions() []string { return []string{".html", ".htm", ".xhtml"} }
func (f *HTMLFormat) Sniff([]byte) bool    { return false }

func (f *HTMLFormat) Parse(data []byte, name string) (*book.Document, error) {
	content, err := extractXHTML(data)
	if err != nil {
		return nil, book.NewFormatError(name, book.FormatHTML, "parse html", err)
	}
	doc := &book.Document{Title: content.Title}
	if doc.Title == "" {
		doc.Title = content.Heading
	}
	doc.Chapters = splitAtHeadings(content.Blocks, baseTitle(name))
	return doc, nil
}

// splitAtHeadings starts a new chapter at every Heading block. Blocks before
// the first heading form a chapter titled fallback.
func splitAtHeadings(blocks []book.TextBlock, fallback string) []book.Chapter {
	var chapters []book.Chapter
	for _, b := range blocks {
		if b.Kind == book.Heading || len(chapters) == 0 {
			title := fallback
			if b.Kind == book.Heading {
				title = b.Content
			}
			chapters = append(chapters, book.Chapter{Index: len(chapters), Title: title})
		}
		last := &chapters[len(chapters)-1]
		last.Blocks = append(last.Blocks, b)
	}
	return chapters
}
