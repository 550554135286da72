// Package config loads reader settings from defaults, a YAML file and SHU_*
// environment variables, and turns them into layout snapshots.
package config

import (
	"fmt"
	"slices"

	"github.com/metcalfc/shu/internal/layout"
	"github.com/metcalfc/shu/internal/normalize"
	"github.com/metcalfc/shu/internal/pagination"
)

// Viewport is the page size used by the desktop viewer, in pixels.
type Viewport struct {
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

// Settings is one immutable snapshot of the reader settings.
type Settings struct {
	Orientation      string   `mapstructure:"orientation" yaml:"orientation"`
	StripEmptyLines  bool     `mapstructure:"strip_empty_lines" yaml:"strip_empty_lines"`
	ChapterFilters   []string `mapstructure:"chapter_filters" yaml:"chapter_filters"`
	IgnoreFontWeight bool     `mapstructure:"ignore_font_weight" yaml:"ignore_font_weight"`
	FontSize         float64  `mapstructure:"font_size" yaml:"font_size"`
	Indent           float64  `mapstructure:"indent" yaml:"indent"`
	CustomColor      bool     `mapstructure:"custom_color" yaml:"custom_color"`
	Viewport         Viewport `mapstructure:"viewport" yaml:"viewport"`
	Prefetch         int      `mapstructure:"prefetch" yaml:"prefetch"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Orientation:    layout.Vertical.String(),
		ChapterFilters: []string{},
		FontSize:       20,
		Indent:         2,
		CustomColor:    true,
		Viewport:       Viewport{Width: 800, Height: 600},
		Prefetch:       4,
	}
}

// Validate rejects settings that cannot drive a layout.
func (s Settings) Validate() error {
	if _, err := layout.ParseOrientation(s.Orientation); err != nil {
		return err
	}
	if _, err := normalize.CompileFilters(s.ChapterFilters); err != nil {
		return err
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("font_size must be positive, got %g", s.FontSize)
	}
	if s.Indent < 0 {
		return fmt.Errorf("indent must not be negative, got %g", s.Indent)
	}
	if s.Viewport.Width <= 0 || s.Viewport.Height <= 0 {
		return fmt.Errorf("viewport %gx%g is empty", s.Viewport.Width, s.Viewport.Height)
	}
	return nil
}

// LayoutEqual reports whether s and o produce the same pages.
func (s Settings) LayoutEqual(o Settings) bool {
	return s.Orientation == o.Orientation &&
		s.IgnoreFontWeight == o.IgnoreFontWeight &&
		s.FontSize == o.FontSize &&
		s.Indent == o.Indent &&
		s.Viewport == o.Viewport
}

// NormalizeEqual reports whether s and o normalize chapters the same way.
func (s Settings) NormalizeEqual(o Settings) bool {
	return s.StripEmptyLines == o.StripEmptyLines && slices.Equal(s.ChapterFilters, o.ChapterFilters)
}

// Snapshot builds the layout snapshot for a viewport measured by m.
func (s Settings) Snapshot(m layout.Metrics, vp layout.Viewport) (pagination.Snapshot, error) {
	o, err := layout.ParseOrientation(s.Orientation)
	if err != nil {
		return pagination.Snapshot{}, err
	}
	filters, err := normalize.CompileFilters(s.ChapterFilters)
	if err != nil {
		return pagination.Snapshot{}, err
	}
	return pagination.Snapshot{
		Layout: layout.Config{
			Viewport:         vp,
			Orientation:      o,
			Metrics:          m,
			IgnoreFontWeight: s.IgnoreFontWeight,
			Indent:           s.Indent,
		},
		Normalize: normalize.Options{
			StripEmptyLines: s.StripEmptyLines,
			ChapterFilters:  filters,
		},
	}, nil
}
