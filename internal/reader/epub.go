package reader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"

	"github.com/metcalfc/shu/internal/book"
)

const containerPath = "META-INF/container.xml"

// EPUBFormat implements Format for EPUB files.
type EPUBFormat struct{}

func init() {
	Register(&EPUBFormat{})
}

func (f *EPUBFormat) Name() string         { return "EPUB" }
func (f *EPUBFormat) Kind() book.Format     { return book.FormatEPUB }
func (f *EPUBFormat) Extensions() []string { return []string{".epub"} }

// Sniff checks for a zip whose first entry is the EPUB mimetype file.
func (f *EPUBFormat) Sniff(data []byte) bool {
	if len(data) < 58 || !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return false
	}
	return bytes.Equal(data[30:38], []byte("mimetype")) &&
		bytes.Contains(data[38:min(len(data), 100)], []byte("application/epub+zip"))
}

// Parse reads the container, walks the spine in reading order and turns
// every spine item into one chapter.
func (f *EPUBFormat) Parse(data []byte, name string) (*book.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, book.NewFormatError(name, book.FormatEPUB, "not a zip container", err)
	}
	if !hasFile(zr, containerPath) {
		return nil, book.NewFormatError(name, book.FormatEPUB, "missing "+containerPath, nil)
	}

	rc, err := epub.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, book.NewFormatError(name, book.FormatEPUB, "malformed container", err)
	}
	if len(rc.Rootfiles) == 0 {
		return nil, book.NewFormatError(name, book.FormatEPUB, "no rootfiles found in epub", nil)
	}
	pkg := rc.Rootfiles[0]

	doc := &book.Document{
		Title:    strings.TrimSpace(pkg.Title),
		Author:   strings.TrimSpace(pkg.Creator),
		Language: strings.TrimSpace(pkg.Language),
	}

	titles := buildTOCHrefMap(zr, pkg)

	for i, ref := range pkg.Spine.Itemrefs {
		if ref.Item == nil {
			// dangling idref: an empty chapter keeps indices on the spine
			doc.Chapters = append(doc.Chapters, book.Chapter{
				Index:  len(doc.Chapters),
				Title:  chapterTitle("", titles, &xhtmlContent{}, i),
				Blocks: []book.TextBlock{{Kind: book.Empty}},
			})
			continue
		}
		content, err := readSpineItem(ref.Item)
		if err != nil {
			return nil, book.NewFormatError(name, book.FormatEPUB,
				fmt.Sprintf("spine item %q", ref.Item.HREF), err)
		}

		blocks := content.Blocks
		if len(blocks) == 0 {
			blocks = []book.TextBlock{{Kind: book.Empty}}
		}
		doc.Chapters = append(doc.Chapters, book.Chapter{
			Index:  len(doc.Chapters),
			Title:  chapterTitle(ref.Item.HREF, titles, content, i),
			Blocks: blocks,
		})
	}

	if len(doc.Chapters) == 0 {
		return nil, book.NewFormatError(name, book.FormatEPUB, "empty spine", book.ErrEmptyBook)
	}
	return doc, nil
}

func readSpineItem(item *epub.Item) (*xhtmlContent, error) {
	r, err := item.Open()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if !strings.Contains(item.MediaType, "html") && item.MediaType != "" {
		if strings.HasPrefix(item.MediaType, "image/") {
			return &xhtmlContent{Blocks: []book.TextBlock{{Kind: book.Paragraph, Content: string(ImageChar)}}}, nil
		}
		return &xhtmlContent{}, nil
	}
	return extractXHTML(data)
}

// chapterTitle prefers the table of contents, then the document's own
// heading or <title>, then a positional name.
func chapterTitle(href string, toc map[string]string, content *xhtmlContent, spineIndex int) string {
	if href != "" {
		if t, ok := toc[href]; ok && t != "" {
			return t
		}
		if t, ok := toc[path.Base(href)]; ok && t != "" {
			return t
		}
	}
	if content.Heading != "" {
		return content.Heading
	}
	if content.Title != "" {
		return content.Title
	}
	return fmt.Sprintf("Section %d", spineIndex+1)
}

func hasFile(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}
