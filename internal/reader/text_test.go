package reader

import (
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/metcalfc/shu/internal/book"
)

func TestTextChapters(t *testing.T) {
	src := "序言一段。\n\n第一章 起\n　　他来了。\n\n第二章 承\n走了。\n"
	doc, err := Parse([]byte(src), "novel.txt", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(doc.Chapters))
	}
	if doc.Chapters[0].Title != "novel" {
		t.Errorf("preface title = %q", doc.Chapters[0].Title)
	}
	ch := doc.Chapters[1]
	if ch.Title != "第一章 起" {
		t.Errorf("title = %q", ch.Title)
	}
	if ch.Blocks[0].Kind != book.Heading || ch.Blocks[1].Content != "他来了。" {
		t.Errorf("unexpected blocks: %+v", ch.Blocks)
	}
}

func TestTextWithoutPreface(t *testing.T) {
	doc, err := Parse([]byte("\n\nChapter 1\nHello.\n"), "a.txt", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Chapters) != 1 || doc.Chapters[0].Title != "Chapter 1" {
		t.Errorf("unexpected chapters: %+v", doc.Chapters)
	}
}

func TestChapterHeading(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"第十二章 歸來", true},
		{"　第三回", true},
		{"第１２章", true},
		{"Chapter 12", true},
		{"  chapter 3: Home", true},
		{"Chapter IV. The Return", true},
		{"CHAPTER xii", true},
		{"Chapter civil unrest", false},
		{"Chapter 12a", false},
		{"Chapter", false},
		{"Chapter   ", false},
		{"Chapters 1", false},
		{"The chapter 1 of it", false},
		{"第一次見面", false},
	}
	for _, tt := range tests {
		if got := isChapterHeading(tt.line); got != tt.want {
			t.Errorf("isChapterHeading(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestDecodeText(t *testing.T) {
	const want = "這是一本書，內容很長。"

	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"utf8", func(*testing.T) []byte { return []byte(want) }},
		{"utf8 bom", func(*testing.T) []byte { return append([]byte{0xEF, 0xBB, 0xBF}, want...) }},
		{"big5", func(t *testing.T) []byte {
			b, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(want))
			if err != nil {
				t.Fatal(err)
			}
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeText(tt.data(t))
			if err != nil {
				t.Fatalf("decodeText: %v", err)
			}
			if got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}

	t.Run("gb18030", func(t *testing.T) {
		const simplified = "这是一本书，内容很长。"
		b, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(simplified))
		if err != nil {
			t.Fatal(err)
		}
		got, err := decodeText(b)
		if err != nil {
			t.Fatalf("decodeText: %v", err)
		}
		if got != simplified {
			t.Errorf("got %q, want %q", got, simplified)
		}
	})
}
