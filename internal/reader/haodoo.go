package reader

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/metcalfc/shu/internal/book"
)

// Palm database layout used by Haodoo books (.pdb in Big5, .updb in UTF-16LE).
const (
	pdbHeaderSize   = 78
	pdbTypeOffset   = 60
	pdbRecordsAt    = 76
	pdbRecordEntry  = 8
	haodooEscape    = "\x1b"
	haodooBig5      = "MTIT"
	haodooUnicode   = "MTIU"
	haodooBookType  = "BOOK"
	haodooSkipBytes = 8 // leading bytes of record 0 before the title
)

// HaodooFormat implements Format for Haodoo PDB/UPDB books.
type HaodooFormat struct{}

func init() {
	Register(&HaodooFormat{})
}

func (f *HaodooFormat) Name() string         { return "Haodoo" }
func (f *HaodooFormat) Kind() book.Format     { return book.FormatHaodoo }
func (f *HaodooFormat) Extensions() []string { return []string{".pdb", ".updb"} }

func (f *HaodooFormat) Sniff(data []byte) bool {
	_, ok := haodooEncoding(data)
	return ok
}

func haodooEncoding(data []byte) (encoding.Encoding, bool) {
	if len(data) < pdbHeaderSize {
		return nil, false
	}
	if string(data[pdbTypeOffset:pdbTypeOffset+4]) != haodooBookType {
		return nil, false
	}
	switch string(data[pdbTypeOffset+4 : pdbTypeOffset+8]) {
	case haodooBig5:
		return traditionalchinese.Big5, true
	case haodooUnicode:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), true
	}
	return nil, false
}

// Parse reads the record table. Record 0 carries the book title and the
// chapter titles; every following record is one chapter's text.
func (f *HaodooFormat) Parse(data []byte, name string) (*book.Document, error) {
	enc, ok := haodooEncoding(data)
	if !ok {
		return nil, book.NewFormatError(name, book.FormatHaodoo, "not a Haodoo book", nil)
	}
	records, err := pdbRecords(data)
	if err != nil {
		return nil, book.NewFormatError(name, book.FormatHaodoo, "malformed record table", err)
	}
	if len(records) < 2 {
		return nil, book.NewFormatError(name, book.FormatHaodoo, "no chapter records", book.ErrEmptyBook)
	}

	header := records[0]
	if len(header) < haodooSkipBytes {
		return nil, book.NewFormatError(name, book.FormatHaodoo, "short header record", nil)
	}
	headerText, err := decodeStrict(enc, header[haodooSkipBytes:])
	if err != nil {
		return nil, book.NewFormatError(name, book.FormatHaodoo, "unreadable encoding", err)
	}
	title, titles := parseHaodooHeader(headerText)

	count := len(records) - 1
	if len(titles) > 0 && len(titles) < count {
		count = len(titles)
	}

	doc := &book.Document{Title: title}
	for i := 0; i < count; i++ {
		text, err := decodeStrict(enc, records[i+1])
		if err != nil {
			return nil, book.NewFormatError(name, book.FormatHaodoo,
				fmt.Sprintf("unreadable encoding in chapter %d", i+1), err)
		}
		chTitle := fmt.Sprintf("%d", i+1)
		if i < len(titles) && titles[i] != "" {
			chTitle = titles[i]
		}
		doc.Chapters = append(doc.Chapters, book.Chapter{
			Index:  i,
			Title:  chTitle,
			Blocks: plainBlocks(strings.TrimRight(text, "\x00"+haodooEscape)),
		})
	}
	return doc, nil
}

// pdbRecords slices data into its records using the offset table.
func pdbRecords(data []byte) ([][]byte, error) {
	n := int(binary.BigEndian.Uint16(data[pdbRecordsAt:]))
	tableEnd := pdbHeaderSize + n*pdbRecordEntry
	if n == 0 || tableEnd > len(data) {
		return nil, fmt.Errorf("record table of %d entries exceeds file size %d", n, len(data))
	}
	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.BigEndian.Uint32(data[pdbHeaderSize+i*pdbRecordEntry:]))
	}
	offsets[n] = len(data)
	records := make([][]byte, n)
	for i := 0; i < n; i++ {
		start, end := offsets[i], offsets[i+1]
		if start < tableEnd || start > end || end > len(data) {
			return nil, fmt.Errorf("record %d spans [%d,%d) of %d bytes", i, start, end, len(data))
		}
		records[i] = data[start:end]
	}
	return records, nil
}

// parseHaodooHeader splits the ESC separated header: title, an empty field,
// the chapter count, then one title per chapter.
func parseHaodooHeader(s string) (string, []string) {
	fields := strings.Split(strings.TrimRight(s, "\x00"), haodooEscape)
	title := strings.TrimSpace(fields[0])
	for i := 1; i < len(fields); i++ {
		n, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			continue
		}
		rest := fields[i+1:]
		if n < len(rest) {
			rest = rest[:n]
		}
		titles := make([]string, len(rest))
		for j, t := range rest {
			titles[j] = strings.TrimSpace(t)
		}
		return title, titles
	}
	return title, nil
}

// decodeStrict decodes b and rejects text that is mostly replacement
// characters, which means the bytes were not in the declared encoding.
func decodeStrict(enc encoding.Encoding, b []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	s := string(out)
	if bad := strings.Count(s, "�"); bad > 0 && bad*10 > len([]rune(s)) {
		return "", fmt.Errorf("%d of %d characters undecodable", bad, len([]rune(s)))
	}
	return s, nil
}

// plainBlocks turns line oriented text into blocks: one paragraph per line,
// blank lines as Empty blocks. Leading indentation is dropped because the
// layout engine indents paragraphs itself.
func plainBlocks(text string) []book.TextBlock {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}

	blocks := make([]book.TextBlock, 0, len(lines))
	for _, line := range lines {
		content := strings.TrimRight(strings.TrimLeft(line, " \t　"), " \t")
		if strings.TrimSpace(content) == "" {
			blocks = append(blocks, book.TextBlock{Kind: book.Empty})
			continue
		}
		blocks = append(blocks, book.TextBlock{Kind: book.Paragraph, Content: content})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, book.TextBlock{Kind: book.Empty})
	}
	return blocks
}
