package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB

	// Megabyte as float for display calculations
	Megabyte = 1024.0 * 1024.0
)

// Grid geometry of the published fields: 0.25 degree global grid with a
// wrapping column, stored as little-endian float16.
const (
	GridWidth     = 1441
	GridHeight    = 721
	BytesPerValue = 2

	FieldBytes = GridWidth * GridHeight * BytesPerValue
)

// Scheduler defaults
const (
	DefaultMaxConcurrentDownloads = 4
	DefaultBandwidthSampleSize    = 10
	DefaultWindowSize             = 1
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultRequestTimeout        = 60 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second

	RetryBaseDelay = 200 * time.Millisecond
	RetryMaxDelay  = 5 * time.Second
)

// Channel buffer sizes
const (
	EventChannelBuffer = 256
)

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	MaxConcurrentDownloads int
	BandwidthSampleSize    int
	WindowSize             int

	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	RequestTimeout      time.Duration
	RequestsPerSecond   float64
	FetchRetries        int
	ExpectedBytes       int64 // expected size of one component file, 0 disables the check
	Headers             map[string]string
}

// GetMaxConcurrentDownloads returns configured value or default
func (r *RuntimeConfig) GetMaxConcurrentDownloads() int {
	if r == nil || r.MaxConcurrentDownloads <= 0 {
		return DefaultMaxConcurrentDownloads
	}
	return r.MaxConcurrentDownloads
}

// GetBandwidthSampleSize returns configured value or default
func (r *RuntimeConfig) GetBandwidthSampleSize() int {
	if r == nil || r.BandwidthSampleSize <= 0 {
		return DefaultBandwidthSampleSize
	}
	return r.BandwidthSampleSize
}

// GetWindowSize returns configured value or default
func (r *RuntimeConfig) GetWindowSize() int {
	if r == nil || r.WindowSize <= 0 {
		return DefaultWindowSize
	}
	return r.WindowSize
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return "gridsync/1.0 (+https://github.com/surge-downloader/gridsync)"
	}
	return r.UserAgent
}

// GetRequestTimeout returns configured value or default
func (r *RuntimeConfig) GetRequestTimeout() time.Duration {
	if r == nil || r.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return r.RequestTimeout
}

// GetFetchRetries returns configured value. Zero means a single attempt.
func (r *RuntimeConfig) GetFetchRetries() int {
	if r == nil || r.FetchRetries < 0 {
		return 0
	}
	return r.FetchRetries
}

// GetExpectedBytes returns the expected component size, 0 if unchecked.
func (r *RuntimeConfig) GetExpectedBytes() int64 {
	if r == nil || r.ExpectedBytes < 0 {
		return 0
	}
	return r.ExpectedBytes
}
