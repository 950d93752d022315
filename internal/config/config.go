package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pmsync/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// Blog API endpoint and credentials. Token handling lives outside pmsync;
	// the value is forwarded verbatim as a bearer token.
	BaseURL string `toml:"base_url"`
	UserID  int64  `toml:"user_id"`
	Token   string `toml:"token"`

	Cache   CacheConfig   `toml:"cache"`
	History HistoryConfig `toml:"history"`
	Push    PushConfig    `toml:"push"`
	Recall  RecallConfig  `toml:"recall"`
}

type CacheConfig struct {
	CapPerConversation int `toml:"cap_per_conversation"`
	PreloadLimit       int `toml:"preload_limit"`
}

type HistoryConfig struct {
	PageSize int `toml:"page_size"`
}

type PushConfig struct {
	PollInterval Duration `toml:"poll_interval"`
}

type RecallConfig struct {
	Window Duration `toml:"window"`
}

// Duration is a time.Duration written as a TOML string ("5s", "2m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

const (
	DefaultCap          = 1000
	DefaultPreloadLimit = 1000
	DefaultPageSize     = 20
	DefaultPollInterval = 5 * time.Second
	DefaultRecallWindow = 2 * time.Minute
)

// Default returns a config with every tunable set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Cache.CapPerConversation <= 0 {
		c.Cache.CapPerConversation = DefaultCap
	}
	if c.Cache.PreloadLimit <= 0 {
		c.Cache.PreloadLimit = DefaultPreloadLimit
	}
	if c.History.PageSize <= 0 {
		c.History.PageSize = DefaultPageSize
	}
	if c.Push.PollInterval.Duration <= 0 {
		c.Push.PollInterval.Duration = DefaultPollInterval
	}
	if c.Recall.Window.Duration <= 0 {
		c.Recall.Window.Duration = DefaultRecallWindow
	}
}

// Load reads config from the given path and fills unset fields with defaults.
// Returns nil config and error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
