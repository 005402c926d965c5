package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/tally/internal/engine"
)

// Config is the resolved tally configuration.
type Config struct {
	StoreURL   string
	LogPath    string
	LogLevel   string
	Poll       PollConfig
	Activity   ActivityConfig
	Collection CollectionConfig
	Server     ServerConfig
}

// PollConfig bounds the adaptive polling interval.
type PollConfig struct {
	DefaultInterval time.Duration
	MaxInterval     time.Duration
}

// ActivityConfig sets the idle and slow-response thresholds.
type ActivityConfig struct {
	IdleTimeout  time.Duration
	SlowResponse time.Duration
}

// CollectionConfig sets the admin auto-disable window.
type CollectionConfig struct {
	Window  time.Duration
	Warning time.Duration
}

// ServerConfig configures `tally serve`.
type ServerConfig struct {
	Listen     string
	Database   string
	CacheTTL   time.Duration
	SessionTTL time.Duration
}

const (
	defaultConfigPath = "~/.config/tally/config.toml"
	defaultLogPath    = "~/.local/share/tally/tally.log"
	defaultLogLevel   = "info"
	defaultStoreURL   = "127.0.0.1:8750"
	defaultListen     = "127.0.0.1:8750"
	defaultDatabase   = "~/.local/share/tally/tally.db"
	defaultCacheTTL   = 2 * time.Second
	defaultSessionTTL = 24 * time.Hour
)

type rawConfig struct {
	StoreURL string `toml:"store_url"`
	LogPath  string `toml:"log_path"`
	LogLevel string `toml:"log_level"`
	Poll     struct {
		DefaultIntervalMS int64 `toml:"default_interval_ms"`
		MaxIntervalMS     int64 `toml:"max_interval_ms"`
	} `toml:"poll"`
	Activity struct {
		IdleTimeoutMS  int64 `toml:"idle_timeout_ms"`
		SlowResponseMS int64 `toml:"slow_response_ms"`
	} `toml:"activity"`
	Collection struct {
		WindowMS  int64 `toml:"window_ms"`
		WarningMS int64 `toml:"warning_ms"`
	} `toml:"collection"`
	Server struct {
		Listen          string `toml:"listen"`
		Database        string `toml:"database"`
		CacheTTLMS      int64  `toml:"cache_ttl_ms"`
		SessionTTLHours int64  `toml:"session_ttl_hours"`
	} `toml:"server"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		StoreURL: defaultStoreURL,
		LogPath:  mustExpand(defaultLogPath),
		LogLevel: defaultLogLevel,
		Poll: PollConfig{
			DefaultInterval: engine.DefaultPollInterval,
			MaxInterval:     engine.DefaultMaxPollInterval,
		},
		Activity: ActivityConfig{
			IdleTimeout:  engine.DefaultIdleTimeout,
			SlowResponse: engine.DefaultSlowResponse,
		},
		Collection: CollectionConfig{
			Window:  engine.DefaultCollectionWindow,
			Warning: engine.DefaultCollectionWarning,
		},
		Server: ServerConfig{
			Listen:     defaultListen,
			Database:   mustExpand(defaultDatabase),
			CacheTTL:   defaultCacheTTL,
			SessionTTL: defaultSessionTTL,
		},
	}
}

// Load locates and parses the tally config, falling back to defaults when
// the file is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.StoreURL = stringOr(raw.StoreURL, defaultStoreURL)
	cfg.LogPath = mustExpand(stringOr(raw.LogPath, defaultLogPath))
	cfg.LogLevel = strings.ToLower(stringOr(raw.LogLevel, defaultLogLevel))

	cfg.Poll.DefaultInterval = millisOr(raw.Poll.DefaultIntervalMS, cfg.Poll.DefaultInterval)
	cfg.Poll.MaxInterval = millisOr(raw.Poll.MaxIntervalMS, cfg.Poll.MaxInterval)
	cfg.Activity.IdleTimeout = millisOr(raw.Activity.IdleTimeoutMS, cfg.Activity.IdleTimeout)
	cfg.Activity.SlowResponse = millisOr(raw.Activity.SlowResponseMS, cfg.Activity.SlowResponse)
	cfg.Collection.Window = millisOr(raw.Collection.WindowMS, cfg.Collection.Window)
	cfg.Collection.Warning = millisOr(raw.Collection.WarningMS, cfg.Collection.Warning)

	cfg.Server.Listen = stringOr(raw.Server.Listen, defaultListen)
	cfg.Server.Database = mustExpand(stringOr(raw.Server.Database, defaultDatabase))
	cfg.Server.CacheTTL = millisOr(raw.Server.CacheTTLMS, defaultCacheTTL)
	if raw.Server.SessionTTLHours > 0 {
		cfg.Server.SessionTTL = time.Duration(raw.Server.SessionTTLHours) * time.Hour
	}

	cfg.clamp()
	return cfg, nil
}

// clamp repairs combinations the engine cannot honour.
func (c *Config) clamp() {
	if c.Poll.MaxInterval < c.Poll.DefaultInterval {
		c.Poll.MaxInterval = c.Poll.DefaultInterval
	}
	if c.Collection.Warning >= c.Collection.Window {
		c.Collection.Warning = c.Collection.Window / 15
	}
}

// EngineConfig returns the timing parameters for engine sessions.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		DefaultInterval:   c.Poll.DefaultInterval,
		MaxInterval:       c.Poll.MaxInterval,
		IdleTimeout:       c.Activity.IdleTimeout,
		SlowResponse:      c.Activity.SlowResponse,
		CollectionWindow:  c.Collection.Window,
		CollectionWarning: c.Collection.Warning,
	}
}

func stringOr(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

func millisOr(ms int64, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
