package reader

import (
	"errors"
	"testing"

	"github.com/metcalfc/shu/internal/book"
)

func TestHaodooBig5(t *testing.T) {
	data := buildHaodoo(t, haodooBig5, "西遊記",
		[]string{"第一回", "第二回"},
		[]string{"　　混沌未分天地亂，\r\n\r\n茫茫渺渺無人見。\r\n", "悟徹菩提真妙理。\x1b"})

	doc, err := Parse(data, "xiyouji.pdb", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Format != book.FormatHaodoo {
		t.Errorf("Format = %v", doc.Format)
	}
	if doc.Title != "西遊記" {
		t.Errorf("Title = %q", doc.Title)
	}
	if len(doc.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(doc.Chapters))
	}
	if doc.Chapters[1].Title != "第二回" {
		t.Errorf("chapter title = %q", doc.Chapters[1].Title)
	}

	blocks := doc.Chapters[0].Blocks
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %+v", blocks)
	}
	if blocks[0].Content != "混沌未分天地亂，" {
		t.Errorf("indent not stripped: %q", blocks[0].Content)
	}
	if blocks[1].Kind != book.Empty {
		t.Errorf("blank line should be Empty, got %v", blocks[1].Kind)
	}
	if got := doc.Chapters[1].Blocks[0].Content; got != "悟徹菩提真妙理。" {
		t.Errorf("trailing escape not stripped: %q", got)
	}
}

func TestHaodooUnicode(t *testing.T) {
	data := buildHaodoo(t, haodooUnicode, "紅樓夢", []string{"第一回"}, []string{"滿紙荒唐言。\r\n一把辛酸淚。"})
	doc, err := Parse(data, "hlm.updb", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "紅樓夢" || doc.Chapters[0].Title != "第一回" {
		t.Errorf("unexpected titles: %q / %q", doc.Title, doc.Chapters[0].Title)
	}
	if n := len(doc.Chapters[0].Blocks); n != 2 {
		t.Errorf("expected 2 paragraphs, got %d", n)
	}
}

func TestHaodooMalformed(t *testing.T) {
	good := buildHaodoo(t, haodooBig5, "書", []string{"一"}, []string{"文"})

	t.Run("truncated record table", func(t *testing.T) {
		_, err := Parse(good[:pdbHeaderSize+4], "bad.pdb", book.FormatUnknown)
		if !book.IsFormatError(err) {
			t.Fatalf("expected FormatError, got %v", err)
		}
	})

	t.Run("header only", func(t *testing.T) {
		data := buildHaodoo(t, haodooBig5, "書", nil, nil)
		_, err := Parse(data, "bad.pdb", book.FormatUnknown)
		if !errors.Is(err, book.ErrEmptyBook) {
			t.Fatalf("expected ErrEmptyBook, got %v", err)
		}
	})

	t.Run("undecodable text", func(t *testing.T) {
		data := buildHaodoo(t, haodooBig5, "書", []string{"一"}, []string{"x"})
		// the last record runs to the end of the file
		bad := append(data[:len(data)-1], 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		_, err := Parse(bad, "bad.pdb", book.FormatUnknown)
		if !book.IsFormatError(err) {
			t.Fatalf("expected FormatError, got %v", err)
		}
	})
}

func TestParseHaodooHeader(t *testing.T) {
	title, titles := parseHaodooHeader("書名\x1b\x1b3\x1b甲\x1b乙\x1b丙\x1b")
	if title != "書名" {
		t.Errorf("title = %q", title)
	}
	if len(titles) != 3 || titles[2] != "丙" {
		t.Errorf("titles = %q", titles)
	}
}
