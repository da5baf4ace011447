package types

import "github.com/surge-downloader/gridsync/internal/config"

// ConvertRuntimeConfig converts the app-level RuntimeConfig to the engine-level RuntimeConfig.
func ConvertRuntimeConfig(rc *config.RuntimeConfig) *RuntimeConfig {
	if rc == nil {
		return nil
	}
	var headers map[string]string
	if len(rc.Headers) > 0 {
		headers = make(map[string]string, len(rc.Headers))
		for k, v := range rc.Headers {
			headers[k] = v
		}
	}
	return &RuntimeConfig{
		MaxConcurrentDownloads: rc.MaxConcurrentDownloads,
		BandwidthSampleSize:    rc.BandwidthSampleSize,
		WindowSize:             rc.WindowSize,
		UserAgent:              rc.UserAgent,
		ProxyURL:               rc.ProxyURL,
		SkipTLSVerification:    rc.SkipTLSVerification,
		RequestTimeout:         rc.RequestTimeout,
		RequestsPerSecond:      rc.RequestsPerSecond,
		FetchRetries:           rc.FetchRetries,
		ExpectedBytes:          rc.ExpectedBytes,
		Headers:                headers,
	}
}
