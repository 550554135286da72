package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metcalfc/shu/internal/book"
	"github.com/metcalfc/shu/internal/config"
	"github.com/metcalfc/shu/internal/glyph"
	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/reader"
	"github.com/metcalfc/shu/internal/session"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// stdinName names books piped in on stdin. Containers with a signature are
// still sniffed; anything else is read as plain text.
const stdinName = "stdin.txt"

type rootOptions struct {
	configFile string
	logFile    string
	debug      bool
	fresh      bool
}

// logger returns a logger writing to --log-file, or to fallback when no
// file was given. A nil fallback discards. The returned func closes the file.
func (o *rootOptions) logger(fallback io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	if o.debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, hopts)), func() { f.Close() }, nil
	}
	if fallback == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	return slog.New(slog.NewTextHandler(fallback, hopts)), func() {}, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "shu [book]",
		Short: "Read EPUB, Haodoo, text, HTML and Markdown books with vertical CJK layout",
		Long: `shu - CJK e-book reader

Books are laid out vertically (columns right to left) or horizontally.
Supported formats: ` + strings.Join(reader.SupportedFormats(), ", "),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runRead(cmd, opts, args[0])
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write logs to this file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log debug messages")

	root.AddCommand(
		newReadCmd(opts),
		newTOCCmd(opts),
		newDumpCmd(opts),
		newFindCmd(opts),
		newVersionCmd(),
		newConfigCmd(opts),
	)
	return root
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <book>",
		Short: "Open a book in the reader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "ignore the saved reading position")
	return cmd
}

func newTOCCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "toc <book>",
		Short: "List the chapters of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, done, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()
			mgr, err := config.NewManager(opts.configFile, log)
			if err != nil {
				return err
			}
			settings := mgr.Get()
			if all {
				settings.ChapterFilters = nil
			}

			lib, h, err := openBook(settings, glyph.NewTerminal(layout.Horizontal), layout.Viewport{Width: 80, Height: 24}, args[0], log)
			if err != nil {
				return err
			}
			defer lib.CloseAll()

			doc, _ := lib.Document(h)
			chapters, err := lib.Chapters(h)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s", doc.Title)
			if doc.Author != "" {
				fmt.Fprintf(out, " / %s", doc.Author)
			}
			fmt.Fprintf(out, " [%s]\n", doc.Format)
			for _, c := range chapters {
				fmt.Fprintf(out, "%4d  %s\n", c.Index+1, c.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include chapters hidden by chapter_filters")
	return cmd
}

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var (
		width, height int
		orientation   string
		chapter       int
		stripEmpty    bool
	)
	cmd := &cobra.Command{
		Use:   "dump <book>",
		Short: "Print a book as laid-out pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, done, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()
			mgr, err := config.NewManager(opts.configFile, log)
			if err != nil {
				return err
			}
			settings := mgr.Get()
			if cmd.Flags().Changed("orientation") {
				settings.Orientation = orientation
			}
			if cmd.Flags().Changed("strip-empty") {
				settings.StripEmptyLines = stripEmpty
			}
			o, err := layout.ParseOrientation(settings.Orientation)
			if err != nil {
				return err
			}

			metrics := glyph.NewTerminal(o)
			lib, h, err := openBook(settings, metrics, layout.Viewport{Width: float64(width), Height: float64(height)}, args[0], log)
			if err != nil {
				return err
			}
			defer lib.CloseAll()
			nav, _ := lib.Navigator(h)

			if err := nav.LayoutAll(cmd.Context(), settings.Prefetch); err != nil {
				return err
			}
			total, err := nav.TotalPages()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for ch := 0; ch < nav.ChapterCount(); ch++ {
				if chapter >= 0 && ch != chapter {
					continue
				}
				nc, _ := nav.Normalized(ch)
				count, _ := nav.PageCount(ch)
				for p := 0; p < count; p++ {
					page, err := nav.Page(ch, p)
					if err != nil {
						return err
					}
					global, _ := nav.GlobalPage(ch, p)
					fmt.Fprintf(out, "── %s · %d/%d · %d/%d ──\n", nc.Title, p+1, count, global+1, total)
					for _, row := range renderCells(page, width, height, metrics).rows(plainStyle) {
						fmt.Fprintln(out, strings.TrimRight(row, " "))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 40, "page width in terminal cells")
	cmd.Flags().IntVar(&height, "height", 20, "page height in terminal rows")
	cmd.Flags().StringVar(&orientation, "orientation", "", "vertical or horizontal (default from config)")
	cmd.Flags().IntVar(&chapter, "chapter", -1, "only dump this chapter (0-based)")
	cmd.Flags().BoolVar(&stripEmpty, "strip-empty", false, "drop empty lines")
	return cmd
}

func newFindCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find <book> <pattern>",
		Short: "List the matches of a regular expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, done, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()
			re, err := compilePattern(args[1])
			if err != nil {
				return err
			}
			mgr, err := config.NewManager(opts.configFile, log)
			if err != nil {
				return err
			}
			lib, h, err := openBook(mgr.Get(), glyph.NewTerminal(layout.Horizontal), layout.Viewport{Width: 80, Height: 24}, args[0], log)
			if err != nil {
				return err
			}
			defer lib.CloseAll()
			nav, _ := lib.Navigator(h)

			out := cmd.OutOrStdout()
			var last *book.LogicalPosition
			for n := 0; limit <= 0 || n < limit; n++ {
				from := searchStart(book.LogicalPosition{}, last, true)
				hit, to, err := nav.Search(cmd.Context(), re, from, true)
				if err != nil {
					return err
				}
				if last != nil && !last.Before(hit) {
					break
				}
				nc, _ := nav.Normalized(hit.Chapter)
				fmt.Fprintf(out, "%s  %s  %s\n", hit, nc.Title, nav.Text(hit, to))
				last = &hit
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many matches (0 for all)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shu %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configFile
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

// openBook opens path in a fresh library configured from settings. A path
// of "-" reads the book from stdin.
func openBook(settings config.Settings, m layout.Metrics, vp layout.Viewport, path string, log *slog.Logger) (*session.Library, session.Handle, error) {
	snap, err := settings.Snapshot(m, vp)
	if err != nil {
		return nil, "", err
	}
	lib := session.NewLibrary(snap, log)
	var h session.Handle
	if path == "-" {
		data, rerr := io.ReadAll(os.Stdin)
		if rerr != nil {
			return nil, "", fmt.Errorf("read stdin: %w", rerr)
		}
		h, err = lib.OpenBytes(data, stdinName)
	} else {
		h, err = lib.Open(path)
	}
	if err != nil {
		return nil, "", err
	}
	return lib, h, nil
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		msg := err.Error()
		if errors.Is(err, book.ErrUnsupported) {
			msg += "\nsupported: " + strings.Join(reader.SupportedFormats(), ", ")
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		os.Exit(1)
	}
}
