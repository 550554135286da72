package normalize

import (
	"testing"

	"github.com/metcalfc/shu/internal/book"
)

func sampleChapter() *book.Chapter {
	return &book.Chapter{
		Index: 1,
		Title: "第二章",
		Blocks: []book.TextBlock{
			{Kind: book.Paragraph, Content: "第一段。"},
			{Kind: book.Empty},
			{Kind: book.Paragraph, Content: "　 \t"},
			{Kind: book.Paragraph, Content: "e\u0301te\r"},
		},
	}
}

func TestNormalizeChapter(t *testing.T) {
	nc := NormalizeChapter(sampleChapter(), Options{})
	if nc.BlockCount != 4 || len(nc.Blocks) != 4 {
		t.Fatalf("expected 4 blocks kept, got %d of %d", len(nc.Blocks), nc.BlockCount)
	}
	if nc.Blocks[2].Kind != book.Empty {
		t.Errorf("whitespace-only paragraph should become Empty, got %v", nc.Blocks[2].Kind)
	}
	if got := nc.Blocks[3].Content; got != "\u00e9te" {
		t.Errorf("content = %q, want NFC without CR", got)
	}
	for i, b := range nc.Blocks {
		if b.Source != i {
			t.Errorf("block %d has source %d", i, b.Source)
		}
	}
}

func TestStripEmptyLinesKeepsSource(t *testing.T) {
	nc := NormalizeChapter(sampleChapter(), Options{StripEmptyLines: true})
	if len(nc.Blocks) != 2 {
		t.Fatalf("expected 2 retained blocks, got %+v", nc.Blocks)
	}
	if nc.Blocks[0].Source != 0 || nc.Blocks[1].Source != 3 {
		t.Errorf("sources = %d,%d want 0,3", nc.Blocks[0].Source, nc.Blocks[1].Source)
	}

	tests := []struct {
		source int
		want   int
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, -1},
	}
	for _, tt := range tests {
		if got := nc.Successor(tt.source); got != tt.want {
			t.Errorf("Successor(%d) = %d, want %d", tt.source, got, tt.want)
		}
	}

	if _, ok := nc.Find(1); ok {
		t.Error("Find(1) should miss a stripped block")
	}
	if i, ok := nc.Find(3); !ok || i != 1 {
		t.Errorf("Find(3) = %d,%v", i, ok)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	doc := &book.Document{Chapters: []book.Chapter{*sampleChapter()}}
	doc.Chapters[0].Index = 0
	a := Normalize(doc, Options{StripEmptyLines: true})
	b := Normalize(doc, Options{StripEmptyLines: true})
	if a[0].Text() != b[0].Text() {
		t.Errorf("normalization not deterministic: %q vs %q", a[0].Text(), b[0].Text())
	}
}

func TestVisible(t *testing.T) {
	chapters := []NormalizedChapter{
		{Index: 0, Title: "封面"},
		{Index: 1, Title: "第一章"},
		{Index: 2, Title: "版權頁"},
		{Index: 3, Title: "第二章"},
	}
	filters, err := CompileFilters([]string{"^封面$", "版權", " "})
	if err != nil {
		t.Fatalf("CompileFilters: %v", err)
	}
	got := Visible(chapters, Options{ChapterFilters: filters})
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 3 {
		t.Errorf("Visible = %+v", got)
	}

	if all := Visible(chapters, Options{}); len(all) != 4 {
		t.Errorf("no filters should keep all chapters, got %d", len(all))
	}
}

func TestCompileFiltersInvalid(t *testing.T) {
	if _, err := CompileFilters([]string{"("}); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}
