package reader

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/metcalfc/shu/internal/book"
)

func TestEPUBSpineOrderAndTitles(t *testing.T) {
	data := buildEPUB(t, "測試之書", []epubChapter{
		{file: "cover.xhtml", body: `<div><img src="cover.jpg"/></div>`},
		{file: "ch1.xhtml", title: "第一章", body: `<h1>第一章</h1><p>天地玄黃，</p><p>宇宙洪荒。</p>`},
		{file: "ch2.xhtml", body: `<h2>Second</h2><p>Plain <b>bold</b> text.</p>`},
	})

	doc, err := Parse(data, "book.epub", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "測試之書" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Author != "Test Author" {
		t.Errorf("Author = %q", doc.Author)
	}
	if len(doc.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(doc.Chapters))
	}

	wantTitles := []string{"cover.xhtml", "第一章", "Second"}
	for i, ch := range doc.Chapters {
		if ch.Index != i {
			t.Errorf("chapter %d has index %d", i, ch.Index)
		}
		if ch.Title != wantTitles[i] {
			t.Errorf("chapter %d title = %q, want %q", i, ch.Title, wantTitles[i])
		}
	}

	if got := doc.Chapters[0].Blocks[0].Content; got != string(ImageChar) {
		t.Errorf("cover block = %q, want image placeholder", got)
	}

	ch1 := doc.Chapters[1].Blocks
	if len(ch1) != 3 || ch1[0].Kind != book.Heading || ch1[1].Content != "天地玄黃，" || ch1[2].Content != "宇宙洪荒。" {
		t.Errorf("unexpected chapter 1 blocks: %+v", ch1)
	}

	ch2 := doc.Chapters[2].Blocks
	if ch2[1].Content != "Plain bold text." || !ch2[1].Hints.Bold {
		t.Errorf("unexpected chapter 2 paragraph: %+v", ch2[1])
	}
}

func TestEPUBEmptySpineItemKeepsIndex(t *testing.T) {
	data := buildEPUB(t, "T", []epubChapter{
		{file: "blank.xhtml", body: ``},
		{file: "text.xhtml", body: `<p>text</p>`},
	})
	doc, err := Parse(data, "book.epub", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(doc.Chapters))
	}
	if b := doc.Chapters[0].Blocks; len(b) != 1 || b[0].Kind != book.Empty {
		t.Errorf("blank spine item should be one Empty block, got %+v", b)
	}
}

func TestEPUBDanglingItemrefKeepsIndex(t *testing.T) {
	data := buildEPUB(t, "T", []epubChapter{
		{file: "a.xhtml", body: `<p>甲</p>`},
		{file: "gone.xhtml", dangling: true},
		{file: "c.xhtml", body: `<p>丙</p>`},
	})
	doc, err := Parse(data, "book.epub", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Chapters) != 3 {
		t.Fatalf("expected one chapter per itemref, got %d", len(doc.Chapters))
	}
	ch := doc.Chapters[1]
	if ch.Index != 1 || ch.Title != "Section 2" {
		t.Errorf("dangling chapter = %d %q, want 1 %q", ch.Index, ch.Title, "Section 2")
	}
	if len(ch.Blocks) != 1 || ch.Blocks[0].Kind != book.Empty {
		t.Errorf("dangling chapter should be one Empty block, got %+v", ch.Blocks)
	}
	if got := doc.Chapters[2].Blocks[0].Content; got != "丙" {
		t.Errorf("chapter 2 content = %q, want 丙", got)
	}
}

func TestReadArchiveFile(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct{ name, body string }{
		{"extra/toc.ncx", "decoy"},
		{"OEBPS/toc.ncx", "package"},
		{"OEBPS/text/nav.xhtml", "nav"},
		{"misplaced/notes.xhtml", "notes"},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(f.body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		href string
		want string
	}{
		{"toc.ncx", "package"},
		{"text/nav.xhtml", "nav"},
		{"text/nav.xhtml#toc", "nav"},
		{"extra/toc.ncx", "decoy"},
		{"chapters/notes.xhtml", "notes"},
	}
	for _, tt := range tests {
		got, err := readArchiveFile(zr, "OEBPS/content.opf", tt.href)
		if err != nil {
			t.Errorf("readArchiveFile(%q) error = %v", tt.href, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("readArchiveFile(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
	if _, err := readArchiveFile(zr, "OEBPS/content.opf", "missing.ncx"); err == nil {
		t.Error("expected an error for a missing entry")
	}
}

func TestEPUBMalformed(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		_, err := Parse([]byte("definitely not a zip"), "bad.epub", book.FormatUnknown)
		if !book.IsFormatError(err) {
			t.Fatalf("expected FormatError, got %v", err)
		}
	})

	t.Run("missing container", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, _ := zw.Create("mimetype")
		w.Write([]byte("application/epub+zip"))
		zw.Close()

		_, err := Parse(buf.Bytes(), "bad.epub", book.FormatUnknown)
		if !book.IsFormatError(err) {
			t.Fatalf("expected FormatError, got %v", err)
		}
	})

	t.Run("only empty chapters", func(t *testing.T) {
		data := buildEPUB(t, "T", []epubChapter{{file: "a.xhtml", body: `<p></p>`}})
		_, err := Parse(data, "empty.epub", book.FormatUnknown)
		if !book.IsFormatError(err) {
			t.Fatalf("expected FormatError, got %v", err)
		}
	})
}
