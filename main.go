//go:build !gui

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/config"
	"github.com/metcalfc/shu/internal/glyph"
	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/normalize"
	"github.com/metcalfc/shu/internal/pagination"
	"github.com/metcalfc/shu/internal/session"
	"github.com/metcalfc/shu/internal/state"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	tocStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))
)

// chromeRows is the number of terminal rows not used by the page: the
// status line and the help line.
const chromeRows = 2

type pagerKeys struct {
	Next        key.Binding
	Prev        key.Binding
	NextChapter key.Binding
	PrevChapter key.Binding
	Orientation key.Binding
	StripEmpty  key.Binding
	Bookmark    key.Binding
	Jump        key.Binding
	Chapters    key.Binding
	Search      key.Binding
	SearchNext  key.Binding
	SearchPrev  key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func (k pagerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Chapters, k.Search, k.Orientation, k.Bookmark, k.Help, k.Quit}
}

func (k pagerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.NextChapter, k.PrevChapter},
		{k.Chapters, k.Bookmark, k.Jump},
		{k.Search, k.SearchNext, k.SearchPrev},
		{k.Orientation, k.StripEmpty, k.Help, k.Quit},
	}
}

var defaultKeys = pagerKeys{
	Next:        key.NewBinding(key.WithKeys(" ", "pgdown", "j"), key.WithHelp("space", "next page")),
	Prev:        key.NewBinding(key.WithKeys("pgup", "b", "k"), key.WithHelp("b", "previous page")),
	NextChapter: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next chapter")),
	PrevChapter: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "previous chapter")),
	Orientation: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "vertical/horizontal")),
	StripEmpty:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "empty lines")),
	Bookmark:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "bookmark")),
	Jump:        key.NewBinding(key.WithKeys("'"), key.WithHelp("'", "last bookmark")),
	Chapters:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "chapters")),
	Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	SearchNext:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next match")),
	SearchPrev:  key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "previous match")),
	Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:        key.NewBinding(key.WithKeys("q", "Q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// pageMsg reports the page a wait settled on. seq ties it to the request
// that started the wait; replies to superseded requests are dropped.
type pageMsg struct {
	seq int
	ref book.PageRef
	err error
}

type settingsMsg config.Settings

// searchMsg carries the result of a search started with the same seq.
type searchMsg struct {
	seq int
	hit book.LogicalPosition
	err error
}

type pager struct {
	lib      *session.Library
	handle   session.Handle
	nav      *pagination.Navigator
	doc      *book.Document
	store    *state.StateStore
	log      *slog.Logger
	settings config.Settings
	metrics  *glyph.Terminal

	keys    pagerKeys
	help    help.Model
	spinner spinner.Model

	width, height int

	ref    book.PageRef
	page   layout.Page
	shown  bool
	anchor book.LogicalPosition // kept on screen across re-layouts
	seq    int
	busy   bool

	toc      bool
	chapters []normalize.ChapterEntry
	cursor   int

	typing  bool   // reading a search pattern
	query   string
	pattern *regexp.Regexp
	hit     *book.LogicalPosition

	notice   string
	quitting bool
}

func newPager(lib *session.Library, h session.Handle, store *state.StateStore, settings config.Settings, log *slog.Logger) (pager, error) {
	nav, err := lib.Navigator(h)
	if err != nil {
		return pager{}, err
	}
	o, err := layout.ParseOrientation(settings.Orientation)
	if err != nil {
		return pager{}, err
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return pager{
		lib:      lib,
		handle:   h,
		nav:      nav,
		doc:      nav.Document(),
		store:    store,
		log:      log,
		settings: settings,
		metrics:  glyph.NewTerminal(o),
		keys:     defaultKeys,
		help:     help.New(),
		spinner:  sp,
		width:    80,
		height:   24,
		busy:     true,
	}, nil
}

func (m pager) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m pager) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m.reconfigure()

	case settingsMsg:
		s := config.Settings(msg)
		if s.Orientation != m.settings.Orientation {
			o, _ := layout.ParseOrientation(s.Orientation)
			m.metrics = glyph.NewTerminal(o)
		}
		m.settings = s
		m.notice = "settings reloaded"
		return m.reconfigure()

	case pageMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.busy = false
		if msg.err != nil {
			if errors.Is(msg.err, book.ErrNotReady) {
				return m.restore(m.anchor)
			}
			m.log.Warn("page unavailable", "chapter", msg.ref.Chapter, "error", msg.err)
			m.notice = msg.err.Error()
			return m, nil
		}
		return m.show(msg.ref)

	case searchMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.busy = false
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, nil
		}
		hit := msg.hit
		m.hit = &hit
		m.notice = "match at " + hit.String()
		return m.restore(hit)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.toc {
			return m.updateTOC(msg)
		}
		if m.typing {
			return m.updateQuery(msg)
		}
		m.notice = ""
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.save()
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Next):
			return m.step(1)
		case key.Matches(msg, m.keys.Prev):
			return m.step(-1)
		case key.Matches(msg, m.keys.NextChapter):
			if m.ref.Chapter+1 < m.nav.ChapterCount() {
				return m.goTo(m.ref.Chapter+1, 0)
			}
		case key.Matches(msg, m.keys.PrevChapter):
			if m.ref.Chapter > 0 {
				return m.goTo(m.ref.Chapter-1, 0)
			}
		case key.Matches(msg, m.keys.Orientation):
			o := layout.Vertical
			if m.settings.Orientation == layout.Vertical.String() {
				o = layout.Horizontal
			}
			m.settings.Orientation = o.String()
			m.metrics = glyph.NewTerminal(o)
			return m.reconfigure()
		case key.Matches(msg, m.keys.StripEmpty):
			m.settings.StripEmptyLines = !m.settings.StripEmptyLines
			return m.reconfigure()
		case key.Matches(msg, m.keys.Bookmark):
			bm, err := m.store.AddBookmark(m.doc, "", m.anchor)
			if err != nil {
				m.notice = err.Error()
			} else {
				m.notice = "bookmarked " + bm.Name
			}
		case key.Matches(msg, m.keys.Jump):
			bms := m.store.Bookmarks(m.doc.ID)
			if len(bms) == 0 {
				m.notice = "no bookmarks"
				return m, nil
			}
			return m.restore(bms[len(bms)-1].Position)
		case key.Matches(msg, m.keys.Chapters):
			m.toc = true
			m.chapters = m.nav.Chapters()
			m.cursor = 0
			for i, c := range m.chapters {
				if c.Index <= m.ref.Chapter {
					m.cursor = i
				}
			}
		case key.Matches(msg, m.keys.Search):
			m.typing, m.query = true, ""
		case key.Matches(msg, m.keys.SearchNext):
			return m.search(true)
		case key.Matches(msg, m.keys.SearchPrev):
			return m.search(false)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		default:
			if d := arrowStep(m.page.Orientation, msg.String()); d != 0 {
				return m.step(d)
			}
		}
	}
	return m, nil
}

func (m pager) updateTOC(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.chapters)-1 {
			m.cursor++
		}
	case "enter":
		m.toc = false
		if m.cursor < len(m.chapters) {
			return m.goTo(m.chapters[m.cursor].Index, 0)
		}
	case "esc", "t", "q":
		m.toc = false
	}
	return m, nil
}

// updateQuery edits the search pattern on the status line.
func (m pager) updateQuery(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.typing = false
		re, err := compilePattern(m.query)
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.pattern, m.hit = re, nil
		return m.search(true)
	case tea.KeyEsc, tea.KeyCtrlC:
		m.typing = false
	case tea.KeyBackspace:
		if rs := []rune(m.query); len(rs) > 0 {
			m.query = string(rs[:len(rs)-1])
		}
	case tea.KeySpace:
		m.query += " "
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	}
	return m, nil
}

// search looks for the next match of the pattern and moves to its page.
func (m pager) search(forward bool) (pager, tea.Cmd) {
	if m.pattern == nil {
		m.notice = "no search pattern"
		return m, nil
	}
	m.seq++
	m.busy = true
	seq, nav, re := m.seq, m.nav, m.pattern
	from := searchStart(m.anchor, m.hit, forward)
	return m, func() tea.Msg {
		hit, _, err := nav.Search(context.Background(), re, from, forward)
		return searchMsg{seq: seq, hit: hit, err: err}
	}
}

func (m pager) viewport() layout.Viewport {
	return layout.Viewport{Width: float64(m.width), Height: float64(m.height - chromeRows)}
}

// reconfigure pushes the current settings to the library and waits for the
// anchor to be laid out again. The old page stays on screen meanwhile.
func (m pager) reconfigure() (pager, tea.Cmd) {
	snap, err := m.settings.Snapshot(m.metrics, m.viewport())
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.lib.Configure(snap)
	return m.restore(m.anchor)
}

// restore waits for the chapter holding pos and moves to its page.
func (m pager) restore(pos book.LogicalPosition) (pager, tea.Cmd) {
	m.seq++
	m.busy = true
	m.anchor = pos
	seq, lib, h := m.seq, m.lib, m.handle
	return m, func() tea.Msg {
		ref, err := lib.RestoreWait(context.Background(), h, pos)
		return pageMsg{seq: seq, ref: ref, err: err}
	}
}

// goTo waits for chapter ch and moves to page p. A negative p counts from
// the end of the chapter.
func (m pager) goTo(ch, p int) (pager, tea.Cmd) {
	m.seq++
	m.busy = true
	m.anchor = book.LogicalPosition{Chapter: ch}
	seq, nav := m.seq, m.nav
	return m, func() tea.Msg {
		ref := book.PageRef{Chapter: ch}
		if err := nav.Await(context.Background(), ch); err != nil {
			return pageMsg{seq: seq, ref: ref, err: err}
		}
		count, err := nav.PageCount(ch)
		if err != nil {
			return pageMsg{seq: seq, ref: ref, err: err}
		}
		if p < 0 {
			p += count
		}
		ref.Page = max(0, min(p, count-1))
		return pageMsg{seq: seq, ref: ref}
	}
}

// show puts a laid-out page on screen and schedules its neighbours.
func (m pager) show(ref book.PageRef) (pager, tea.Cmd) {
	page, err := m.nav.Page(ref.Chapter, ref.Page)
	if errors.Is(err, book.ErrNotReady) {
		return m.goTo(ref.Chapter, ref.Page)
	}
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.seq++
	m.busy = false
	m.ref, m.page, m.shown = ref, page, true
	if pos, ok := page.FirstPosition(); ok {
		m.anchor = pos
	} else {
		m.anchor = book.LogicalPosition{Chapter: ref.Chapter}
	}
	for i := 1; i <= m.settings.Prefetch; i++ {
		if m.nav.Request(ref.Chapter+i) != nil {
			break
		}
	}
	return m, nil
}

func (m pager) step(d int) (pager, tea.Cmd) {
	if !m.shown {
		return m, nil
	}
	count, err := m.nav.PageCount(m.ref.Chapter)
	if err != nil {
		return m.restore(m.anchor)
	}
	p := m.ref.Page + d
	switch {
	case p >= count:
		if m.ref.Chapter+1 >= m.nav.ChapterCount() {
			m.notice = "end of book"
			return m, nil
		}
		return m.goTo(m.ref.Chapter+1, 0)
	case p < 0:
		if m.ref.Chapter == 0 {
			m.notice = "start of book"
			return m, nil
		}
		return m.goTo(m.ref.Chapter-1, -1)
	}
	return m.show(book.PageRef{Chapter: m.ref.Chapter, Page: p})
}

func (m pager) save() {
	if err := m.store.SetPosition(m.doc, m.anchor); err != nil {
		m.log.Warn("saving position failed", "error", err)
	}
}

func (m pager) View() string {
	if m.quitting {
		return ""
	}
	body := max(m.height-chromeRows, 1)

	var sb strings.Builder
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")

	var rows []string
	switch {
	case m.help.ShowAll:
		rows = strings.Split(m.help.View(m.keys), "\n")
	case m.toc:
		rows = m.tocRows(body)
	case m.shown:
		rows = renderCells(m.page, m.width, body, m.metrics).rows(m.style)
	default:
		rows = []string{m.spinner.View() + " laying out…"}
	}
	for i := 0; i < body; i++ {
		if i < len(rows) {
			sb.WriteString(rows[i])
		}
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return sb.String()
}

func (m pager) statusLine() string {
	if m.typing {
		return statusStyle.Render("/" + m.query + "█")
	}
	title := m.doc.Title
	if nc, err := m.nav.Normalized(m.ref.Chapter); err == nil && nc.Title != "" && nc.Title != title {
		title += " · " + nc.Title
	}
	pos := ""
	if count, err := m.nav.PageCount(m.ref.Chapter); err == nil && m.shown {
		pos = fmt.Sprintf(" | %d/%d", m.ref.Page+1, count)
		if total, err := m.nav.TotalPages(); err == nil {
			g, _ := m.nav.GlobalPage(m.ref.Chapter, m.ref.Page)
			pos += fmt.Sprintf(" (%d/%d)", g+1, total)
		}
	}
	busy := ""
	if m.busy && m.shown {
		busy = " " + m.spinner.View()
	}
	notice := ""
	if m.notice != "" {
		notice = noticeStyle.Render(" " + m.notice)
	}
	return statusStyle.Render(title+pos+busy) + notice
}

func (m pager) tocRows(n int) []string {
	start := 0
	if m.cursor >= n {
		start = m.cursor - n + 1
	}
	var rows []string
	for i := start; i < len(m.chapters) && len(rows) < n; i++ {
		c := m.chapters[i]
		line := fmt.Sprintf("%4d  %s", c.Index+1, c.Title)
		if i == m.cursor {
			rows = append(rows, cursorStyle.Render("> "+line))
		} else {
			rows = append(rows, tocStyle.Render("  "+line))
		}
	}
	return rows
}

// style renders a span of the page with its block's weight and colour.
func (m pager) style(s string, bold bool, block int) string {
	st := lipgloss.NewStyle().Bold(bold)
	if m.settings.CustomColor && block >= 0 {
		if nc, err := m.nav.Normalized(m.page.Chapter); err == nil {
			if i, ok := nc.Find(block); ok {
				if c, ok := hexColor(nc.Blocks[i].Hints.Color); ok {
					st = st.Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)))
				}
			}
		}
	}
	return st.Render(s)
}

// runRead opens the book in the terminal pager.
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
	lib, h, err := openBook(settings, glyph.NewTerminal(o), layout.Viewport{Width: 80, Height: 24 - chromeRows}, path, log)
	if err != nil {
		return err
	}
	defer lib.CloseAll()

	store, err := state.NewStateStore()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	m, err := newPager(lib, h, store, settings, log)
	if err != nil {
		return err
	}
	if pos, ok := store.GetPosition(m.doc.ID); ok && !opts.fresh {
		m.anchor = pos
	}

	popts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(cmd.Context())}
	if path == "-" {
		popts = append(popts, tea.WithInputTTY())
	}
	p := tea.NewProgram(m, popts...)
	if mgr.File() != "" {
		mgr.OnChange(func(s config.Settings) { p.Send(settingsMsg(s)) })
		mgr.WatchConfig()
	}

	_, err = p.Run()
	return err
}
