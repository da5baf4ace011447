package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General   GeneralSettings   `json:"general"`
	Network   NetworkSettings   `json:"network"`
	Scheduler SchedulerSettings `json:"scheduler"`
	Grid      GridSettings      `json:"grid"`
}

// GeneralSettings contains logging behavior.
type GeneralSettings struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // "json" or "text"
	LogFile   string `json:"log_file"`   // optional extra sink
}

// NetworkSettings contains fetcher parameters.
type NetworkSettings struct {
	BaseURL             string            `json:"base_url"`
	UserAgent           string            `json:"user_agent"`
	ProxyURL            string            `json:"proxy_url"`
	SkipTLSVerification bool              `json:"skip_tls_verification"`
	RequestTimeout      time.Duration     `json:"request_timeout"`
	RequestsPerSecond   float64           `json:"requests_per_second"`
	FetchRetries        int               `json:"fetch_retries"`
	Headers             map[string]string `json:"headers,omitempty"`
}

// SchedulerSettings contains dispatch parameters.
type SchedulerSettings struct {
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	BandwidthSampleSize    int    `json:"bandwidth_sample_size"`
	WindowSize             int    `json:"window_size"`
	Strategy               string `json:"strategy"`
}

// GridSettings describes the published dataset.
type GridSettings struct {
	Layers        []string `json:"layers"` // "name" or "name:dual"
	Cycles        []int    `json:"cycles"`
	ExpectedBytes int64    `json:"expected_bytes"`
}

const (
	LogFormatJSON = "json"
	LogFormatText = "text"

	StrategyOnDemand   = "on-demand"
	StrategyAggressive = "aggressive"

	// FieldBytes is the size of one 1441x721 float16 grid.
	FieldBytes = 1441 * 721 * 2

	MaxConcurrentDownloadsLimit = 64
)

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "int64", "bool", "duration", "float64", "list", "map"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "log_level", Label: "Log Level", Description: "One of trace, debug, info, warn, error.", Type: "string"},
			{Key: "log_format", Label: "Log Format", Description: "json or text (colored console output).", Type: "string"},
			{Key: "log_file", Label: "Log File", Description: "Also append logs to this file. Leave empty to disable.", Type: "string"},
		},
		"Network": {
			{Key: "base_url", Label: "Base URL", Description: "Root of the dataset. Files are fetched from <base_url>/<layer>/<file>.", Type: "string"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP or SOCKS5 proxy URL (e.g. socks5://127.0.0.1:1080). Leave empty to use system default.", Type: "string"},
			{Key: "skip_tls_verification", Label: "Skip TLS Verification", Description: "Accept any server certificate. Only for testing.", Type: "bool"},
			{Key: "request_timeout", Label: "Request Timeout", Description: "Upper bound for one HTTP request (e.g., 60s).", Type: "duration"},
			{Key: "requests_per_second", Label: "Requests/Second", Description: "Limit outgoing requests. 0 disables the limit.", Type: "float64"},
			{Key: "fetch_retries", Label: "Fetch Retries", Description: "Retries for transient HTTP failures inside one fetch. 0 disables.", Type: "int"},
			{Key: "headers", Label: "Headers", Description: "Extra request headers.", Type: "map"},
		},
		"Scheduler": {
			{Key: "max_concurrent_downloads", Label: "Max Concurrent Downloads", Description: "Global bound on in-flight fetches across all layers (1-64).", Type: "int"},
			{Key: "bandwidth_sample_size", Label: "Bandwidth Samples", Description: "Number of recent downloads used for the moving average.", Type: "int"},
			{Key: "window_size", Label: "Window Size", Description: "Timesteps on each side of the current time treated as adjacent.", Type: "int"},
			{Key: "strategy", Label: "Strategy", Description: "on-demand loads adjacent timesteps only, aggressive loads everything.", Type: "string"},
		},
		"Grid": {
			{Key: "layers", Label: "Layers", Description: "Layer names; append :dual for U/V layers (e.g. wind10m:dual).", Type: "list"},
			{Key: "cycles", Label: "Cycles", Description: "Model run hours per day (e.g. 0,6,12,18).", Type: "list"},
			{Key: "expected_bytes", Label: "Expected Bytes", Description: "Size of one grid file. 0 disables the size check.", Type: "int64"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "Network", "Scheduler", "Grid"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			LogLevel:  "info",
			LogFormat: LogFormatText,
		},
		Network: NetworkSettings{
			BaseURL:           "http://127.0.0.1:8080/data",
			UserAgent:         "", // Empty means use default UA
			RequestTimeout:    60 * time.Second,
			RequestsPerSecond: 0,
			FetchRetries:      0,
		},
		Scheduler: SchedulerSettings{
			MaxConcurrentDownloads: 4,
			BandwidthSampleSize:    10,
			WindowSize:             1,
			Strategy:               StrategyOnDemand,
		},
		Grid: GridSettings{
			Layers:        []string{"temp2m", "wind10m:dual"},
			Cycles:        []int{0, 6, 12, 18},
			ExpectedBytes: FieldBytes,
		},
	}
}

// GetConfigDir returns the directory holding settings.json.
// GRIDSYNC_CONFIG_DIR overrides the platform default.
func GetConfigDir() string {
	if dir := os.Getenv("GRIDSYNC_CONFIG_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gridsync")
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetConfigDir(), "settings.json")
}

// LoadSettings loads settings from path, or from GetSettingsPath when path
// is empty. Returns defaults if the file doesn't exist.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = GetSettingsPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(path string, s *Settings) error {
	if path == "" {
		path = GetSettingsPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Load reads the settings file, applies GRIDSYNC_* overrides and validates
// the result.
func Load(path string) (*Settings, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports the first invalid setting.
func (s *Settings) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(s.General.LogLevel)); err != nil {
		return fmt.Errorf("general.log_level: %w", err)
	}
	switch strings.ToLower(s.General.LogFormat) {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("general.log_format: want %q or %q, got %q", LogFormatJSON, LogFormatText, s.General.LogFormat)
	}

	u, err := url.Parse(s.Network.BaseURL)
	if err != nil {
		return fmt.Errorf("network.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("network.base_url: unsupported scheme %q", u.Scheme)
	}
	if s.Network.ProxyURL != "" {
		if _, err := url.Parse(s.Network.ProxyURL); err != nil {
			return fmt.Errorf("network.proxy_url: %w", err)
		}
	}
	if s.Network.RequestTimeout < 0 {
		return fmt.Errorf("network.request_timeout must not be negative")
	}
	if s.Network.RequestsPerSecond < 0 {
		return fmt.Errorf("network.requests_per_second must not be negative")
	}
	if s.Network.FetchRetries < 0 {
		return fmt.Errorf("network.fetch_retries must not be negative")
	}

	if n := s.Scheduler.MaxConcurrentDownloads; n < 1 || n > MaxConcurrentDownloadsLimit {
		return fmt.Errorf("scheduler.max_concurrent_downloads: want 1-%d, got %d", MaxConcurrentDownloadsLimit, n)
	}
	if s.Scheduler.BandwidthSampleSize < 1 {
		return fmt.Errorf("scheduler.bandwidth_sample_size must be positive")
	}
	if s.Scheduler.WindowSize < 1 {
		return fmt.Errorf("scheduler.window_size must be positive")
	}
	switch s.Scheduler.Strategy {
	case StrategyOnDemand, StrategyAggressive:
	default:
		return fmt.Errorf("scheduler.strategy: want %q or %q, got %q", StrategyOnDemand, StrategyAggressive, s.Scheduler.Strategy)
	}

	if _, err := ParseLayers(s.Grid.Layers); err != nil {
		return fmt.Errorf("grid.layers: %w", err)
	}
	for _, h := range s.Grid.Cycles {
		if h < 0 || h > 23 {
			return fmt.Errorf("grid.cycles: invalid hour %d", h)
		}
	}
	if s.Grid.ExpectedBytes < 0 {
		return fmt.Errorf("grid.expected_bytes must not be negative")
	}
	return nil
}

// LayerSpec is one parsed entry of GridSettings.Layers.
type LayerSpec struct {
	Name string
	Dual bool
}

// ParseLayers parses "name" and "name:dual" entries.
func ParseLayers(list []string) ([]LayerSpec, error) {
	out := make([]LayerSpec, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, kind, hasKind := strings.Cut(raw, ":")
		spec := LayerSpec{Name: name}
		if hasKind {
			if kind != "dual" {
				return nil, fmt.Errorf("layer %q: unknown kind %q", name, kind)
			}
			spec.Dual = true
		}
		if name == "" || strings.ContainsAny(name, "/ ") {
			return nil, fmt.Errorf("invalid layer name %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate layer %q", name)
		}
		seen[name] = true
		out = append(out, spec)
	}
	return out, nil
}

// RuntimeConfig carries the settings the engine needs.
type RuntimeConfig struct {
	MaxConcurrentDownloads int
	BandwidthSampleSize    int
	WindowSize             int
	UserAgent              string
	ProxyURL               string
	SkipTLSVerification    bool
	RequestTimeout         time.Duration
	RequestsPerSecond      float64
	FetchRetries           int
	ExpectedBytes          int64
	Headers                map[string]string
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MaxConcurrentDownloads: s.Scheduler.MaxConcurrentDownloads,
		BandwidthSampleSize:    s.Scheduler.BandwidthSampleSize,
		WindowSize:             s.Scheduler.WindowSize,
		UserAgent:              s.Network.UserAgent,
		ProxyURL:               s.Network.ProxyURL,
		SkipTLSVerification:    s.Network.SkipTLSVerification,
		RequestTimeout:         s.Network.RequestTimeout,
		RequestsPerSecond:      s.Network.RequestsPerSecond,
		FetchRetries:           s.Network.FetchRetries,
		ExpectedBytes:          s.Grid.ExpectedBytes,
		Headers:                s.Network.Headers,
	}
}

// Level returns the normalized log level name.
func (g GeneralSettings) Level() string {
	return strings.ToLower(strings.TrimSpace(g.LogLevel))
}
