package reader

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/metcalfc/shu/internal/book"
)

// TextFormat implements Format for plain text novels.
type TextFormat struct{}

func init() {
	Register(&TextFormat{})
}

func (f *TextFormat) Name() string         { return "Text" }
func (f *TextFormat) Kind() book.Format     { return book.FormatText }
func (f *TextFormat) Extensions() []string { return []string{".txt"} }
func (f *TextFormat) Sniff([]byte) bool    { return false }

// chapterHeading matches the chapter lines common in web novels
// ("第十二章 ..." / "Chapter 12" / "Chapter IV: ..."). The number must be
// followed by a space, a colon, a period or the end of the line.
var chapterHeading = regexp.MustCompile(`^[\s\x{3000}]*(?:(第[0-9０-９〇零一二三四五六七八九十百千两]+[章回节節卷部集])|` +
	`(?i:chapter\s+([0-9]+|m{0,3}(?:cm|cd|d?c{0,3})(?:xc|xl|l?x{0,3})(?:ix|iv|v?i{0,3}))(?:[:.\s]|$)))`)

// isChapterHeading rejects the empty Roman numeral the pattern allows.
func isChapterHeading(line string) bool {
	m := chapterHeading.FindStringSubmatch(line)
	return m != nil && (m[1] != "" || m[2] != "")
}

// Parse splits the text into chapters at heading lines. Text before the
// first heading becomes its own chapter named after the file.
func (f *TextFormat) Parse(data []byte, name string) (*book.Document, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, book.NewFormatError(name, book.FormatText, "unreadable encoding", err)
	}

	type section struct {
		title   string
		heading bool
		lines   []string
	}
	sections := []section{{title: baseTitle(name)}}
	for _, line := range strings.Split(text, "\n") {
		if isChapterHeading(line) {
			sections = append(sections, section{title: strings.TrimSpace(line), heading: true})
			continue
		}
		last := &sections[len(sections)-1]
		last.lines = append(last.lines, line)
	}

	doc := &book.Document{}
	for _, s := range sections {
		body := plainBlocks(strings.Join(s.lines, "\n"))
		blank := len(body) == 1 && body[0].Kind == book.Empty
		if !s.heading && blank {
			continue
		}
		ch := book.Chapter{Index: len(doc.Chapters), Title: s.title}
		if s.heading {
			ch.Blocks = append(ch.Blocks, book.TextBlock{Kind: book.Heading, Content: s.title})
		}
		if !blank || !s.heading {
			ch.Blocks = append(ch.Blocks, body...)
		}
		doc.Chapters = append(doc.Chapters, ch)
	}
	return doc, nil
}

// decodeText returns data as UTF-8. BOMs are honoured; otherwise invalid
// UTF-8 is retried as GB18030 and Big5, keeping whichever decodes cleaner.
func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		data = data[3:]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeStrict(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}

	gb, gbErr := decodeStrict(simplifiedchinese.GB18030, data)
	big5, big5Err := decodeStrict(traditionalchinese.Big5, data)
	switch {
	case gbErr == nil && big5Err == nil:
		if strings.Count(big5, "�") < strings.Count(gb, "�") {
			return big5, nil
		}
		return gb, nil
	case gbErr == nil:
		return gb, nil
	case big5Err == nil:
		return big5, nil
	}
	return "", fmt.Errorf("neither UTF-8, GB18030 nor Big5: %w", gbErr)
}
