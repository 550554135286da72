package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v   *viper.Viper
	log *slog.Logger

	mu        sync.RWMutex
	settings  Settings
	callbacks []func(Settings)
}

// Dir returns XDG_CONFIG_HOME/shu or ~/.config/shu.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "shu")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "shu")
}

// DefaultPath is where WriteDefault puts the config file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// NewManager loads settings from cfgFile, or from config.yaml in Dir when
// cfgFile is empty. A missing default file is not an error.
func NewManager(cfgFile string, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cm := &Manager{v: viper.New(), log: log}
	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}
	s, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.settings = s
	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	d := DefaultSettings()
	cm.v.SetDefault("orientation", d.Orientation)
	cm.v.SetDefault("strip_empty_lines", d.StripEmptyLines)
	cm.v.SetDefault("chapter_filters", d.ChapterFilters)
	cm.v.SetDefault("ignore_font_weight", d.IgnoreFontWeight)
	cm.v.SetDefault("font_size", d.FontSize)
	cm.v.SetDefault("indent", d.Indent)
	cm.v.SetDefault("custom_color", d.CustomColor)
	cm.v.SetDefault("viewport.width", d.Viewport.Width)
	cm.v.SetDefault("viewport.height", d.Viewport.Height)
	cm.v.SetDefault("prefetch", d.Prefetch)

	// Environment variables with SHU_ prefix, SHU_VIEWPORT_WIDTH for nested keys
	cm.v.SetEnvPrefix("SHU")
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(Dir())
	}

	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func (cm *Manager) load() (Settings, error) {
	var s Settings
	if err := cm.v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current settings.
func (cm *Manager) Get() Settings {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.settings
}

// OnChange registers a callback for settings changes.
func (cm *Manager) OnChange(fn func(Settings)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig reloads the settings whenever the config file changes. An
// invalid edit is logged and the previous settings stay in effect.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		s, err := cm.load()
		if err != nil {
			cm.log.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		cm.log.Info("config reloaded", "file", e.Name)

		cm.mu.Lock()
		cm.settings = s
		callbacks := make([]func(Settings), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(s)
		}
	})
	cm.v.WatchConfig()
}

// WriteDefault writes the default configuration to path, creating its
// directory.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	header := []byte(`# shu configuration
# orientation: vertical or horizontal
# chapter_filters: regular expressions; matching chapter titles are hidden from the chapter list
# indent: first-line paragraph indent in em
# Every key can be overridden by an environment variable, e.g. SHU_ORIENTATION=horizontal

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
