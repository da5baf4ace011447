package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the settings that can be set from the environment.
// Nil fields were not set and leave the file value untouched.
type envOverrides struct {
	LogLevel  *string `envconfig:"GRIDSYNC_LOG_LEVEL"`
	LogFormat *string `envconfig:"GRIDSYNC_LOG_FORMAT"`
	LogFile   *string `envconfig:"GRIDSYNC_LOG_FILE"`

	BaseURL             *string           `envconfig:"GRIDSYNC_BASE_URL"`
	UserAgent           *string           `envconfig:"GRIDSYNC_USER_AGENT"`
	ProxyURL            *string           `envconfig:"GRIDSYNC_PROXY_URL"`
	SkipTLSVerification *bool             `envconfig:"GRIDSYNC_SKIP_TLS_VERIFICATION"`
	RequestTimeout      *time.Duration    `envconfig:"GRIDSYNC_REQUEST_TIMEOUT"`
	RequestsPerSecond   *float64          `envconfig:"GRIDSYNC_REQUESTS_PER_SECOND"`
	FetchRetries        *int              `envconfig:"GRIDSYNC_FETCH_RETRIES"`
	Headers             map[string]string `envconfig:"GRIDSYNC_HEADERS"`

	MaxConcurrentDownloads *int    `envconfig:"GRIDSYNC_MAX_CONCURRENT_DOWNLOADS"`
	BandwidthSampleSize    *int    `envconfig:"GRIDSYNC_BANDWIDTH_SAMPLE_SIZE"`
	WindowSize             *int    `envconfig:"GRIDSYNC_WINDOW_SIZE"`
	Strategy               *string `envconfig:"GRIDSYNC_STRATEGY"`

	Layers        []string `envconfig:"GRIDSYNC_LAYERS"`
	Cycles        []int    `envconfig:"GRIDSYNC_CYCLES"`
	ExpectedBytes *int64   `envconfig:"GRIDSYNC_EXPECTED_BYTES"`
}

// ApplyEnv overrides settings from GRIDSYNC_* environment variables.
func (s *Settings) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	setString(&s.General.LogLevel, env.LogLevel)
	setString(&s.General.LogFormat, env.LogFormat)
	setString(&s.General.LogFile, env.LogFile)

	setString(&s.Network.BaseURL, env.BaseURL)
	setString(&s.Network.UserAgent, env.UserAgent)
	setString(&s.Network.ProxyURL, env.ProxyURL)
	if env.SkipTLSVerification != nil {
		s.Network.SkipTLSVerification = *env.SkipTLSVerification
	}
	if env.RequestTimeout != nil {
		s.Network.RequestTimeout = *env.RequestTimeout
	}
	if env.RequestsPerSecond != nil {
		s.Network.RequestsPerSecond = *env.RequestsPerSecond
	}
	setInt(&s.Network.FetchRetries, env.FetchRetries)
	if len(env.Headers) > 0 {
		if s.Network.Headers == nil {
			s.Network.Headers = make(map[string]string, len(env.Headers))
		}
		for k, v := range env.Headers {
			s.Network.Headers[k] = v
		}
	}

	setInt(&s.Scheduler.MaxConcurrentDownloads, env.MaxConcurrentDownloads)
	setInt(&s.Scheduler.BandwidthSampleSize, env.BandwidthSampleSize)
	setInt(&s.Scheduler.WindowSize, env.WindowSize)
	setString(&s.Scheduler.Strategy, env.Strategy)

	if len(env.Layers) > 0 {
		s.Grid.Layers = env.Layers
	}
	if len(env.Cycles) > 0 {
		s.Grid.Cycles = env.Cycles
	}
	if env.ExpectedBytes != nil {
		s.Grid.ExpectedBytes = *env.ExpectedBytes
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
