//go:build gui

package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/config"
	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/normalize"
	"github.com/metcalfc/shu/internal/pagination"
	"github.com/metcalfc/shu/internal/session"
	"github.com/metcalfc/shu/internal/state"
)

// fyneMetrics measures glyphs with the fyne text renderer. A new value is
// made whenever the font size or orientation changes, so pointer identity
// tells the layout engine when measurements differ.
type fyneMetrics struct {
	size     float32
	vertical bool

	mu    sync.Mutex
	cache map[fyne.TextStyle]map[rune]layout.Size
}

func newFyneMetrics(size float64, o layout.Orientation) *fyneMetrics {
	return &fyneMetrics{
		size:     float32(size),
		vertical: o == layout.Vertical,
		cache:    make(map[fyne.TextStyle]map[rune]layout.Size),
	}
}

func (f *fyneMetrics) Glyph(r rune, bold bool) layout.Size {
	style := fyne.TextStyle{Bold: bold}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.cache[style]
	if !ok {
		m = make(map[rune]layout.Size)
		f.cache[style] = m
	}
	if s, ok := m[r]; ok {
		return s
	}
	sz := fyne.MeasureText(string(r), f.size, style)
	s := layout.Size{Width: float64(sz.Width), Height: float64(sz.Height)}
	m[r] = s
	return s
}

func (f *fyneMetrics) LinePitch() float64 {
	em := f.Glyph('國', false)
	if f.vertical {
		return em.Width * 1.5
	}
	return em.Height * 1.3
}

type viewer struct {
	win      fyne.Window
	lib      *session.Library
	handle   session.Handle
	nav      *pagination.Navigator
	doc      *book.Document
	store    *state.StateStore
	log      *slog.Logger
	settings config.Settings
	metrics  *fyneMetrics

	pageArea *fyne.Container
	status   *widget.Label
	split    *container.Split
	toc      *widget.List
	chapters []normalize.ChapterEntry

	ref    book.PageRef
	page   layout.Page
	shown  bool
	anchor book.LogicalPosition
	seq    int
	notice string

	query   string
	pattern *regexp.Regexp
	hit     *book.LogicalPosition
}

// runRead opens the book in a desktop window.
func runRead(cmd *cobra.Command, opts *rootOptions, path string) error {
	log, done, err := opts.logger(nil)
	if err != nil {
		return err
	}
	defer done()

	mgr, err := config.NewManager(opts.configFile, log)
	if err != nil {
		return err
	}
	settings := mgr.Get()
	o, err := layout.ParseOrientation(settings.Orientation)
	if err != nil {
		return err
	}

	a := app.New()
	metrics := newFyneMetrics(settings.FontSize, o)
	vp := layout.Viewport{Width: settings.Viewport.Width, Height: settings.Viewport.Height}
	lib, h, err := openBook(settings, metrics, vp, path, log)
	if err != nil {
		return err
	}
	defer lib.CloseAll()
	nav, _ := lib.Navigator(h)

	store, err := state.NewStateStore()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	v := &viewer{
		win:      a.NewWindow("shu - " + nav.Document().Title),
		lib:      lib,
		handle:   h,
		nav:      nav,
		doc:      nav.Document(),
		store:    store,
		log:      log,
		settings: settings,
		metrics:  metrics,
		pageArea: container.NewWithoutLayout(),
		status:   widget.NewLabel(""),
		chapters: nav.Chapters(),
	}
	if pos, ok := store.GetPosition(v.doc.ID); ok && !opts.fresh {
		v.anchor = pos
	}
	v.build()

	if mgr.File() != "" {
		mgr.OnChange(func(s config.Settings) {
			fyne.Do(func() {
				v.apply(s)
				v.notice = "settings reloaded"
			})
		})
		mgr.WatchConfig()
	}

	stop := make(chan struct{})
	var closeOnce sync.Once
	v.win.SetOnClosed(func() {
		v.save()
		closeOnce.Do(func() { close(stop) })
	})

	// Re-layout when the page area changes size.
	go func() {
		var last fyne.Size
		for {
			select {
			case <-stop:
				return
			case <-time.After(100 * time.Millisecond):
				size := v.pageArea.Size()
				if size.Width > 0 && size.Height > 0 && size != last {
					last = size
					fyne.Do(v.reconfigure)
				}
			}
		}
	}()

	v.win.Resize(fyne.NewSize(float32(vp.Width), float32(vp.Height)+80))
	v.win.ShowAndRun()
	return nil
}

func (v *viewer) build() {
	v.status.Alignment = fyne.TextAlignCenter
	controls := widget.NewLabel("SPACE/←→: page  [ ]: chapter  T: chapters  V: orientation  E: empty lines  M: bookmark  ': last bookmark  +/-: font  Q: quit")
	controls.Alignment = fyne.TextAlignCenter

	v.toc = widget.NewList(
		func() int { return len(v.chapters) },
		func() fyne.CanvasObject { return widget.NewLabel("Title") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			c := v.chapters[id]
			obj.(*widget.Label).SetText(fmt.Sprintf("%d  %s", c.Index+1, c.Title))
		},
	)
	v.toc.OnSelected = func(id widget.ListItemID) {
		if id < len(v.chapters) {
			v.goTo(v.chapters[id].Index, 0)
			v.split.Leading.Hide()
			v.split.Refresh()
		}
	}

	reading := container.NewBorder(v.status, controls, nil, nil, v.pageArea)
	tocPanel := container.NewBorder(widget.NewLabel("Chapters"), nil, nil, nil, v.toc)
	v.split = container.NewHSplit(tocPanel, reading)
	v.split.Offset = 0.25
	tocPanel.Hide()
	v.win.SetContent(container.NewStack(v.split))

	v.win.Canvas().SetOnTypedKey(func(k *fyne.KeyEvent) {
		switch k.Name {
		case fyne.KeySpace, fyne.KeyPageDown:
			v.step(1)
		case fyne.KeyPageUp, fyne.KeyBackspace:
			v.step(-1)
		case fyne.KeyLeft:
			v.step(arrowStep(v.page.Orientation, "left"))
		case fyne.KeyRight:
			v.step(arrowStep(v.page.Orientation, "right"))
		case fyne.KeyUp:
			v.step(arrowStep(v.page.Orientation, "up"))
		case fyne.KeyDown:
			v.step(arrowStep(v.page.Orientation, "down"))
		case fyne.KeyF:
			v.win.SetFullScreen(!v.win.FullScreen())
		case fyne.KeyQ:
			v.win.Close()
		}
	})

	v.win.Canvas().SetOnTypedRune(func(r rune) {
		switch r {
		case ']':
			if v.ref.Chapter+1 < v.nav.ChapterCount() {
				v.goTo(v.ref.Chapter+1, 0)
			}
		case '[':
			if v.ref.Chapter > 0 {
				v.goTo(v.ref.Chapter-1, 0)
			}
		case 't', 'T':
			if v.split.Leading.Visible() {
				v.split.Leading.Hide()
			} else {
				v.chapters = v.nav.Chapters()
				v.toc.Refresh()
				v.split.Leading.Show()
			}
			v.split.Refresh()
		case 'v', 'V':
			s := v.settings
			if s.Orientation == layout.Vertical.String() {
				s.Orientation = layout.Horizontal.String()
			} else {
				s.Orientation = layout.Vertical.String()
			}
			v.apply(s)
		case 'e', 'E':
			s := v.settings
			s.StripEmptyLines = !s.StripEmptyLines
			v.apply(s)
		case '+', '=':
			s := v.settings
			s.FontSize = min(s.FontSize+2, 96)
			v.apply(s)
		case '-':
			s := v.settings
			s.FontSize = max(s.FontSize-2, 8)
			v.apply(s)
		case 'm', 'M':
			bm, err := v.store.AddBookmark(v.doc, "", v.anchor)
			if err != nil {
				v.notice = err.Error()
			} else {
				v.notice = "bookmarked " + bm.Name
			}
			v.updateStatus()
		case '/':
			v.askPattern()
		case 'n':
			v.search(true)
		case 'N':
			v.search(false)
		case '\'':
			bms := v.store.Bookmarks(v.doc.ID)
			if len(bms) == 0 {
				v.notice = "no bookmarks"
				v.updateStatus()
				return
			}
			v.restore(bms[len(bms)-1].Position)
		}
	})
}

// askPattern prompts for a regular expression and searches forward for it.
func (v *viewer) askPattern() {
	entry := widget.NewEntry()
	entry.SetText(v.query)
	items := []*widget.FormItem{widget.NewFormItem("Pattern", entry)}
	dialog.ShowForm("Search", "Find", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		re, err := compilePattern(entry.Text)
		if err != nil {
			v.notice = err.Error()
			v.updateStatus()
			return
		}
		v.query, v.pattern, v.hit = entry.Text, re, nil
		v.search(true)
	}, v.win)
}

// search moves to the page of the next match of the current pattern.
func (v *viewer) search(forward bool) {
	if v.pattern == nil {
		v.notice = "no search pattern"
		v.updateStatus()
		return
	}
	v.seq++
	seq, nav, re := v.seq, v.nav, v.pattern
	from := searchStart(v.anchor, v.hit, forward)
	go func() {
		hit, _, err := nav.Search(context.Background(), re, from, forward)
		fyne.Do(func() {
			if seq != v.seq {
				return
			}
			if err != nil {
				v.notice = err.Error()
				v.updateStatus()
				return
			}
			v.hit = &hit
			v.notice = "match at " + hit.String()
			v.restore(hit)
		})
	}()
}

// apply switches to new settings, replacing the metrics when the font or
// the orientation changed.
func (v *viewer) apply(s config.Settings) {
	if s.FontSize != v.settings.FontSize || s.Orientation != v.settings.Orientation {
		o, err := layout.ParseOrientation(s.Orientation)
		if err != nil {
			v.notice = err.Error()
			v.updateStatus()
			return
		}
		v.metrics = newFyneMetrics(s.FontSize, o)
	}
	v.settings = s
	v.reconfigure()
}

func (v *viewer) reconfigure() {
	size := v.pageArea.Size()
	vp := layout.Viewport{Width: float64(size.Width), Height: float64(size.Height)}
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = layout.Viewport{Width: v.settings.Viewport.Width, Height: v.settings.Viewport.Height}
	}
	snap, err := v.settings.Snapshot(v.metrics, vp)
	if err != nil {
		v.notice = err.Error()
		v.updateStatus()
		return
	}
	v.lib.Configure(snap)
	v.restore(v.anchor)
}

func (v *viewer) restore(pos book.LogicalPosition) {
	v.seq++
	v.anchor = pos
	seq := v.seq
	go func() {
		ref, err := v.lib.RestoreWait(context.Background(), v.handle, pos)
		fyne.Do(func() { v.settle(seq, ref, err) })
	}()
}

// goTo moves to page p of chapter ch once it is laid out. A negative p
// counts from the end of the chapter.
func (v *viewer) goTo(ch, p int) {
	v.seq++
	v.anchor = book.LogicalPosition{Chapter: ch}
	seq, nav := v.seq, v.nav
	go func() {
		ref := book.PageRef{Chapter: ch}
		err := nav.Await(context.Background(), ch)
		var count int
		if err == nil {
			count, err = nav.PageCount(ch)
		}
		if err == nil {
			if p < 0 {
				p += count
			}
			ref.Page = max(0, min(p, count-1))
		}
		fyne.Do(func() { v.settle(seq, ref, err) })
	}()
}

func (v *viewer) settle(seq int, ref book.PageRef, err error) {
	if seq != v.seq {
		return
	}
	if errors.Is(err, book.ErrNotReady) {
		v.restore(v.anchor)
		return
	}
	if err != nil {
		v.log.Warn("page unavailable", "chapter", ref.Chapter, "error", err)
		v.notice = err.Error()
		v.updateStatus()
		return
	}
	v.show(ref)
}

func (v *viewer) show(ref book.PageRef) {
	page, err := v.nav.Page(ref.Chapter, ref.Page)
	if errors.Is(err, book.ErrNotReady) {
		v.goTo(ref.Chapter, ref.Page)
		return
	}
	if err != nil {
		v.notice = err.Error()
		v.updateStatus()
		return
	}
	v.seq++
	v.ref, v.page, v.shown = ref, page, true
	if pos, ok := page.FirstPosition(); ok {
		v.anchor = pos
	} else {
		v.anchor = book.LogicalPosition{Chapter: ref.Chapter}
	}
	v.draw()
	v.updateStatus()
	for i := 1; i <= v.settings.Prefetch; i++ {
		if v.nav.Request(ref.Chapter+i) != nil {
			break
		}
	}
}

func (v *viewer) step(d int) {
	if !v.shown || d == 0 {
		return
	}
	v.notice = ""
	count, err := v.nav.PageCount(v.ref.Chapter)
	if err != nil {
		v.restore(v.anchor)
		return
	}
	p := v.ref.Page + d
	switch {
	case p >= count:
		if v.ref.Chapter+1 >= v.nav.ChapterCount() {
			v.notice = "end of book"
			v.updateStatus()
			return
		}
		v.goTo(v.ref.Chapter+1, 0)
	case p < 0:
		if v.ref.Chapter == 0 {
			v.notice = "start of book"
			v.updateStatus()
			return
		}
		v.goTo(v.ref.Chapter-1, -1)
	default:
		v.show(book.PageRef{Chapter: v.ref.Chapter, Page: p})
	}
}

// draw places one canvas.Text per run, or per glyph in vertical columns.
// Rotated Latin text is drawn upright.
func (v *viewer) draw() {
	nc, _ := v.nav.Normalized(v.page.Chapter)
	fg := theme.Color(theme.ColorNameForeground)
	pitch := v.metrics.LinePitch()

	var objs []fyne.CanvasObject
	for _, l := range v.page.Lines {
		col := fg
		if v.settings.CustomColor {
			if i, ok := nc.Find(l.Block); ok {
				if c, ok := hexColor(nc.Blocks[i].Hints.Color); ok {
					col = c
				}
			}
		}
		for _, run := range l.Runs {
			if v.page.Orientation == layout.Horizontal {
				objs = append(objs, v.text(run.Text, run.Bold, col, float32(run.Origin.X), float32(run.Origin.Y)))
				continue
			}
			y := run.Origin.Y
			for _, r := range run.Text {
				g := v.metrics.Glyph(r, run.Bold)
				x := run.Origin.X + (pitch-g.Width)/2
				objs = append(objs, v.text(string(r), run.Bold, col, float32(x), float32(y)))
				if run.Rotated {
					y += g.Width
				} else {
					y += g.Height
				}
			}
		}
	}
	v.pageArea.Objects = objs
	v.pageArea.Refresh()
}

func (v *viewer) text(s string, bold bool, col color.Color, x, y float32) *canvas.Text {
	t := canvas.NewText(s, col)
	t.TextSize = v.metrics.size
	t.TextStyle.Bold = bold
	t.Move(fyne.NewPos(x, y))
	t.Resize(t.MinSize())
	return t
}

func (v *viewer) updateStatus() {
	title := v.doc.Title
	if nc, err := v.nav.Normalized(v.ref.Chapter); err == nil && nc.Title != "" {
		title += " · " + nc.Title
	}
	if count, err := v.nav.PageCount(v.ref.Chapter); err == nil && v.shown {
		title += fmt.Sprintf(" | %d/%d", v.ref.Page+1, count)
	}
	if v.notice != "" {
		title += " | " + v.notice
	}
	v.status.SetText(title)
}

func (v *viewer) save() {
	if err := v.store.SetPosition(v.doc, v.anchor); err != nil {
		v.log.Warn("saving position failed", "error", err)
	}
}
