package reader

import (
	"testing"

	"github.com/metcalfc/shu/internal/book"
)

func TestExtractXHTML(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []book.TextBlock
	}{
		{
			name: "cjk line break joins",
			body: "<p>天地\n玄黃</p>",
			want: []book.TextBlock{{Kind: book.Paragraph, Content: "天地玄黃"}},
		},
		{
			name: "latin line break becomes space",
			body: "<p>hello\n  world</p>",
			want: []book.TextBlock{{Kind: book.Paragraph, Content: "hello world"}},
		},
		{
			name: "br starts a block",
			body: "<p>one<br/>two</p>",
			want: []book.TextBlock{
				{Kind: book.Paragraph, Content: "one"},
				{Kind: book.Paragraph, Content: "two"},
			},
		},
		{
			name: "empty paragraph between text",
			body: "<p>a</p><p></p><p>b</p>",
			want: []book.TextBlock{
				{Kind: book.Paragraph, Content: "a"},
				{Kind: book.Empty},
				{Kind: book.Paragraph, Content: "b"},
			},
		},
		{
			name: "leading empty paragraph dropped",
			body: "<p> </p><p>a</p>",
			want: []book.TextBlock{{Kind: book.Paragraph, Content: "a"}},
		},
		{
			name: "script and style dropped",
			body: "<style>p{}</style><script>x()</script><div>text</div>",
			want: []book.TextBlock{{Kind: book.Paragraph, Content: "text"}},
		},
		{
			name: "image placeholder",
			body: `<div>see <img src="a.png"/></div>`,
			want: []book.TextBlock{{Kind: book.Paragraph, Content: "see " + string(ImageChar)}},
		},
		{
			name: "pre keeps lines",
			body: "<pre>a  b\nc</pre>",
			want: []book.TextBlock{
				{Kind: book.Paragraph, Content: "a  b"},
				{Kind: book.Paragraph, Content: "c"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractXHTML([]byte("<html><body>" + tt.body + "</body></html>"))
			if err != nil {
				t.Fatalf("extractXHTML: %v", err)
			}
			if len(got.Blocks) != len(tt.want) {
				t.Fatalf("got %d blocks %+v, want %d", len(got.Blocks), got.Blocks, len(tt.want))
			}
			for i, w := range tt.want {
				g := got.Blocks[i]
				if g.Kind != w.Kind || g.Content != w.Content {
					t.Errorf("block %d = {%v %q}, want {%v %q}", i, g.Kind, g.Content, w.Kind, w.Content)
				}
			}
		})
	}
}

func TestElementHints(t *testing.T) {
	data := []byte(`<html><body>
<p style="color: #c00; font-family: 'Kai'">red</p>
<p><font color="blue" face="Ming">blue</font></p>
<p style="font-weight:700">heavy</p>
<p>plain</p>
</body></html>`)
	got, err := extractXHTML(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []book.StyleHints{
		{Color: "#c00", FontFamily: "Kai"},
		{Color: "blue", FontFamily: "Ming"},
		{Bold: true},
		{},
	}
	if len(got.Blocks) != len(want) {
		t.Fatalf("got %+v", got.Blocks)
	}
	for i, w := range want {
		if got.Blocks[i].Hints != w {
			t.Errorf("block %d hints = %+v, want %+v", i, got.Blocks[i].Hints, w)
		}
	}
}

func TestHTMLSplitsAtHeadings(t *testing.T) {
	data := []byte(`<html><head><title>Book</title></head><body>
<p>intro</p><h2>One</h2><p>first</p><h2>Two</h2><p>second</p></body></html>`)
	doc, err := Parse(data, "book.html", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "Book" {
		t.Errorf("Title = %q", doc.Title)
	}
	titles := []string{"book", "One", "Two"}
	if len(doc.Chapters) != len(titles) {
		t.Fatalf("got %d chapters", len(doc.Chapters))
	}
	for i, want := range titles {
		if doc.Chapters[i].Title != want {
			t.Errorf("chapter %d title = %q, want %q", i, doc.Chapters[i].Title, want)
		}
	}
}

func TestMarkdownChapters(t *testing.T) {
	src := "# 書名\n\n前言。\n\n## 第一章\n\n第一段\n接續。\n\n- 項目\n\n---\n\n## 第二章\n\n![圖](x.png)\n"
	doc, err := Parse([]byte(src), "book.md", book.FormatUnknown)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "書名" {
		t.Errorf("Title = %q", doc.Title)
	}
	// only one level-1 heading, so the whole file is a single chapter
	if len(doc.Chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(doc.Chapters))
	}
	var contents []string
	for _, b := range doc.Chapters[0].Blocks {
		contents = append(contents, b.Content)
	}
	want := []string{"書名", "前言。", "第一章", "第一段接續。", "項目", "", "第二章", string(ImageChar)}
	if len(contents) != len(want) {
		t.Fatalf("blocks = %q, want %q", contents, want)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Errorf("block %d = %q, want %q", i, contents[i], want[i])
		}
	}
}
