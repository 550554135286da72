package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/pagination"
)

type unitMetrics struct{}

func (unitMetrics) Glyph(rune, bool) layout.Size { return layout.Size{Width: 1, Height: 1} }
func (unitMetrics) LinePitch() float64           { return 1 }

func snapshot(o layout.Orientation) pagination.Snapshot {
	return pagination.Snapshot{Layout: layout.Config{
		Viewport:    layout.Viewport{Width: 6, Height: 3},
		Orientation: o,
		Metrics:     unitMetrics{},
	}}
}

const novel = "第一章 開始\n" + "一二三四五六七八九十一二三四五六七八九十\n\n" +
	"第二章 結束\n" + "完。\n"

func writeBook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novel.txt")
	if err := os.WriteFile(path, []byte(novel), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndPage(t *testing.T) {
	lib := NewLibrary(snapshot(layout.Horizontal), nil)
	defer lib.CloseAll()

	h, err := lib.Open(writeBook(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	chapters, err := lib.Chapters(h)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 || chapters[1].Title != "第二章 結束" {
		t.Fatalf("Chapters = %+v", chapters)
	}

	if _, err := lib.Page(h, 0, 0); !errors.Is(err, book.ErrNotReady) {
		t.Fatalf("expected ErrNotReady before layout, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ref, err := lib.RestoreWait(ctx, h, book.LogicalPosition{Chapter: 0, Block: 1, Offset: 13})
	if err != nil {
		t.Fatal(err)
	}
	// heading on line 0, then six characters per line: offset 13 is on line 3
	if ref.Page != 1 || ref.Line != 0 || ref.Offset != 1 {
		t.Errorf("RestoreWait = %+v", ref)
	}

	p, err := lib.Page(h, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.Text(), "三四五六七八") {
		t.Errorf("page 1 = %q", p.Text())
	}
	if _, err := lib.Page(h, 5, 0); !errors.Is(err, book.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestBookmarkSurvivesReconfigure(t *testing.T) {
	lib := NewLibrary(snapshot(layout.Horizontal), nil)
	defer lib.CloseAll()
	h, err := lib.Open(writeBook(t))
	if err != nil {
		t.Fatal(err)
	}
	nav, _ := lib.Navigator(h)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := nav.Await(ctx, 0); err != nil {
		t.Fatal(err)
	}

	mark, err := lib.BookmarkPosition(h, 0, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	lib.Configure(snapshot(layout.Vertical))
	if _, err := lib.Restore(h, mark); !errors.Is(err, book.ErrNotReady) {
		t.Fatalf("expected ErrNotReady right after reconfigure, got %v", err)
	}
	ref, err := lib.RestoreWait(ctx, h, mark)
	if err != nil {
		t.Fatal(err)
	}
	page, err := lib.Page(h, ref.Chapter, ref.Page)
	if err != nil {
		t.Fatal(err)
	}
	if page.Orientation != layout.Vertical {
		t.Error("page laid out with the old orientation")
	}
	line := page.Lines[ref.Line]
	if line.Block != mark.Block || line.Offset+ref.Offset != mark.Offset {
		t.Errorf("bookmark %v restored to line %+v offset %d", mark, line, ref.Offset)
	}
}

func TestUnknownHandle(t *testing.T) {
	lib := NewLibrary(snapshot(layout.Horizontal), nil)
	if _, err := lib.Chapters("nope"); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle, got %v", err)
	}

	h, err := lib.OpenBytes([]byte(novel), "novel.txt")
	if err != nil {
		t.Fatal(err)
	}
	if err := lib.Close(h); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Page(h, 0, 0); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("closed handle should be unknown, got %v", err)
	}
	if err := lib.Close(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("double close = %v", err)
	}
}

func TestOpenFailures(t *testing.T) {
	lib := NewLibrary(snapshot(layout.Horizontal), nil)
	empty := filepath.Join(t.TempDir(), "empty.epub")
	os.WriteFile(empty, nil, 0644)

	if _, err := lib.Open(empty); !book.IsFormatError(err) {
		t.Errorf("zero-byte file: expected FormatError, got %v", err)
	}
	if _, err := lib.Open(filepath.Join(t.TempDir(), "missing.epub")); !book.IsFormatError(err) {
		t.Errorf("missing file: expected FormatError, got %v", err)
	}
}
