package config

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"chatpick/internal/search"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const appName = "chatpick"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type SearchConfig struct {
	Delay             string  `yaml:"delay"`
	PeopleLimit       int     `yaml:"people_limit"`
	TopicsPerPage     int     `yaml:"topics_per_page"`
	Timeout           string  `yaml:"timeout"`
	CacheSize         int     `yaml:"cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type SyncConfig struct {
	Forums      []string `yaml:"forums"`
	MaxMessages int      `yaml:"max_messages"`
}

type Config struct {
	Search  SearchConfig `yaml:"search"`
	Sync    SyncConfig   `yaml:"sync"`
	Offline bool         `yaml:"offline"`
}

func (c *Config) DelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Search.Delay)
	if err != nil || d <= 0 {
		return search.DefaultDelay
	}
	return d
}

func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil || d <= 0 {
		return search.DefaultTimeout
	}
	return d
}

// PeopleOptions configures the global people search.
func (c *Config) PeopleOptions(log *slog.Logger) search.Options {
	return search.Options{
		Delay:     c.DelayDuration(),
		Limit:     c.Search.PeopleLimit,
		Timeout:   c.TimeoutDuration(),
		CacheSize: c.Search.CacheSize,
		Logger:    log,
	}
}

// TopicOptions configures topic search inside a forum.
func (c *Config) TopicOptions(log *slog.Logger) search.Options {
	return search.Options{
		Delay:   c.DelayDuration(),
		Limit:   c.Search.TopicsPerPage,
		Timeout: c.TimeoutDuration(),
		Logger:  log,
	}
}

// ConfigDir holds config.yaml and the OAuth client secret and token.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func DBPath() string {
	return filepath.Join(xdg.DataHome, appName, appName+".db")
}

func LogPath() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path, or the default location when path is empty.
// A missing file is created from the embedded defaults. Keys absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: the embedded defaults still apply
			_ = writeDefaults(path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	s := c.Search
	if s.Delay != "" {
		d, err := time.ParseDuration(s.Delay)
		if err != nil {
			return fmt.Errorf("%w: search.delay: %v", ErrInvalid, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: search.delay must be positive, got %s", ErrInvalid, s.Delay)
		}
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return fmt.Errorf("%w: search.timeout: %v", ErrInvalid, err)
		}
	}
	if s.PeopleLimit <= 0 {
		return fmt.Errorf("%w: search.people_limit must be positive, got %d", ErrInvalid, s.PeopleLimit)
	}
	if s.TopicsPerPage <= 0 {
		return fmt.Errorf("%w: search.topics_per_page must be positive, got %d", ErrInvalid, s.TopicsPerPage)
	}
	if s.CacheSize < 0 {
		return fmt.Errorf("%w: search.cache_size must not be negative, got %d", ErrInvalid, s.CacheSize)
	}
	if s.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: search.requests_per_second must be positive, got %g", ErrInvalid, s.RequestsPerSecond)
	}
	if len(c.Sync.Forums) == 0 {
		return fmt.Errorf("%w: sync.forums is empty", ErrInvalid)
	}
	if c.Sync.MaxMessages <= 0 {
		return fmt.Errorf("%w: sync.max_messages must be positive, got %d", ErrInvalid, c.Sync.MaxMessages)
	}
	return nil
}
