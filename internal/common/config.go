package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the desk service configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Store       StoreConfig     `toml:"store"`
	Sync        SyncConfig      `toml:"sync"`
	Desk        DeskConfig      `toml:"desk"`
	Lifecycle   LifecycleConfig `toml:"lifecycle"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Report      ReportConfig    `toml:"report"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StoreConfig describes the remote spreadsheet-backed endpoint
type StoreConfig struct {
	URL            string `toml:"url"`             // Deployed script URL; every action is a query/form parameter on it
	RequestTimeout string `toml:"request_timeout"` // Per-request timeout, e.g. "15s"
	UserAgent      string `toml:"user_agent"`
	MinInterval    string `toml:"min_interval"` // Minimum spacing between outbound calls
	Burst          int    `toml:"burst"`
}

type SyncConfig struct {
	Interval               string `toml:"interval"`                 // Data sync period (default "5s")
	NotificationInterval   string `toml:"notification_interval"`    // Notification poll period (default "10s")
	RankingInterval        string `toml:"ranking_interval"`         // Ranking refresh period (default "5m")
	NotificationsFromStart bool   `toml:"notifications_from_start"` // Start the notification cursor at 0 and replay everything
}

type DeskConfig struct {
	Timezone       string `toml:"timezone"`         // IANA zone used for "today" and exit clock times
	MaxTimeWarning int    `toml:"max_time_warning"` // Minutes after which an active record counts as overdue
	HistoryLimit   int    `toml:"history_limit"`    // Max historical records in the desk view
	TimelineOrder  string `toml:"timeline_order"`   // "desc" (newest first) or "asc"
}

// Successor policies for an already notified record
const (
	NotifiedAdvanceWrap   = "wrap"
	NotifiedAdvanceNoop   = "noop"
	NotifiedAdvanceReject = "reject"
)

type LifecycleConfig struct {
	NotifiedAdvance string `toml:"notified_advance"` // wrap | noop | reject
}

type StorageConfig struct {
	Type   string       `toml:"type"` // only "badger" is supported
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
	Dir        string   `toml:"dir"`         // log file directory; empty means logs/ beside the executable
}

type WebSocketConfig struct {
	StateThrottle string `toml:"state_throttle"` // Minimum spacing between desk_state broadcasts
}

type ReportConfig struct {
	Title       string `toml:"title"`
	Institution string `toml:"institution"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Store: StoreConfig{
			RequestTimeout: "15s",
			UserAgent:      "portico/" + Version,
			MinInterval:    "100ms",
			Burst:          5,
		},
		Sync: SyncConfig{
			Interval:             "5s",
			NotificationInterval: "10s",
			RankingInterval:      "5m",
		},
		Desk: DeskConfig{
			Timezone:       "America/Santiago",
			MaxTimeWarning: 30,
			HistoryLimit:   50,
			TimelineOrder:  "desc",
		},
		Lifecycle: LifecycleConfig{
			NotifiedAdvance: NotifiedAdvanceWrap,
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			StateThrottle: "250ms",
		},
		Report: ReportConfig{
			Title:       "Reporte de Retiros",
			Institution: "Liceo",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies PORTICO_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PORTICO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PORTICO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PORTICO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if url := os.Getenv("PORTICO_STORE_URL"); url != "" {
		config.Store.URL = url
	}
	if timeout := os.Getenv("PORTICO_STORE_REQUEST_TIMEOUT"); timeout != "" {
		config.Store.RequestTimeout = timeout
	}

	if interval := os.Getenv("PORTICO_SYNC_INTERVAL"); interval != "" {
		config.Sync.Interval = interval
	}
	if interval := os.Getenv("PORTICO_NOTIFICATION_INTERVAL"); interval != "" {
		config.Sync.NotificationInterval = interval
	}

	if tz := os.Getenv("PORTICO_DESK_TIMEZONE"); tz != "" {
		config.Desk.Timezone = tz
	}
	if warn := os.Getenv("PORTICO_MAX_TIME_WARNING"); warn != "" {
		if w, err := strconv.Atoi(warn); err == nil {
			config.Desk.MaxTimeWarning = w
		}
	}

	if dir := os.Getenv("PORTICO_DATA_DIR"); dir != "" {
		config.Storage.Badger.Path = dir
	}

	if level := os.Getenv("PORTICO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, storeURL string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if storeURL != "" {
		config.Store.URL = storeURL
	}
}

// Validate checks every value that is parsed lazily by the accessors below
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.URL) == "" {
		return fmt.Errorf("store.url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	durations := map[string]string{
		"store.request_timeout":      c.Store.RequestTimeout,
		"store.min_interval":         c.Store.MinInterval,
		"sync.interval":              c.Sync.Interval,
		"sync.notification_interval": c.Sync.NotificationInterval,
		"sync.ranking_interval":      c.Sync.RankingInterval,
		"websocket.state_throttle":   c.WebSocket.StateThrottle,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: negative duration", name, value)
		}
	}
	for name, value := range map[string]string{
		"sync.interval":              c.Sync.Interval,
		"sync.notification_interval": c.Sync.NotificationInterval,
		"sync.ranking_interval":      c.Sync.RankingInterval,
	} {
		if d, _ := time.ParseDuration(value); d < time.Second {
			return fmt.Errorf("%s must be at least 1s, got %s", name, value)
		}
	}

	if _, err := time.LoadLocation(c.Desk.Timezone); err != nil {
		return fmt.Errorf("invalid desk.timezone %q: %w", c.Desk.Timezone, err)
	}
	if c.Desk.MaxTimeWarning <= 0 {
		return fmt.Errorf("desk.max_time_warning must be positive, got %d", c.Desk.MaxTimeWarning)
	}
	if c.Desk.HistoryLimit <= 0 {
		return fmt.Errorf("desk.history_limit must be positive, got %d", c.Desk.HistoryLimit)
	}
	switch strings.ToLower(c.Desk.TimelineOrder) {
	case "asc", "desc":
	default:
		return fmt.Errorf("desk.timeline_order must be asc or desc, got %q", c.Desk.TimelineOrder)
	}

	switch c.Lifecycle.NotifiedAdvance {
	case NotifiedAdvanceWrap, NotifiedAdvanceNoop, NotifiedAdvanceReject:
	default:
		return fmt.Errorf("lifecycle.notified_advance must be wrap, noop or reject, got %q", c.Lifecycle.NotifiedAdvance)
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// RequestTimeoutDuration returns the per-request timeout for store calls
func (s StoreConfig) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(s.RequestTimeout, 15*time.Second)
}

// MinIntervalDuration returns the outbound pacing interval; zero disables pacing
func (s StoreConfig) MinIntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.MinInterval)
	if err != nil || d < 0 {
		return 100 * time.Millisecond
	}
	return d
}

func (s SyncConfig) IntervalDuration() time.Duration {
	return parseDurationOr(s.Interval, 5*time.Second)
}

func (s SyncConfig) NotificationIntervalDuration() time.Duration {
	return parseDurationOr(s.NotificationInterval, 10*time.Second)
}

func (s SyncConfig) RankingIntervalDuration() time.Duration {
	return parseDurationOr(s.RankingInterval, 5*time.Minute)
}

func (w WebSocketConfig) StateThrottleDuration() time.Duration {
	return parseDurationOr(w.StateThrottle, 250*time.Millisecond)
}

// Location resolves the desk time zone, falling back to the local zone
func (d DeskConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MaxTimeWarningDuration is the overdue threshold
func (d DeskConfig) MaxTimeWarningDuration() time.Duration {
	return time.Duration(d.MaxTimeWarning) * time.Minute
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
