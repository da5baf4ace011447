package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/vfaronov/httpheader"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/surge-downloader/gridsync/internal/engine/types"
	"github.com/surge-downloader/gridsync/internal/utils"
)

// Fetcher returns the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// sniffLen is the header size filetype inspects.
const sniffLen = 262

// wrapperFormats are the containers a misconfigured server hands out in
// place of a raw field. Only magics of three or more bytes are listed: a
// float16 field can start with any two bytes, so BMP ("BM"), MZ or Z
// headers would reject valid data.
var wrapperFormats = matchers.Map{
	matchers.TypeZip:  matchers.Zip,
	matchers.TypeGz:   matchers.Archive[matchers.TypeGz],
	matchers.TypePdf:  matchers.Archive[matchers.TypePdf],
	matchers.Type7z:   matchers.Archive[matchers.Type7z],
	matchers.TypeXz:   matchers.Archive[matchers.TypeXz],
	matchers.TypeZstd: matchers.Zst,
	matchers.TypePng:  matchers.Png,
}

// HTTPFetcher downloads one grid file per request and rejects anything that
// is not a raw field.
type HTTPFetcher struct {
	Client  *http.Client
	Runtime *types.RuntimeConfig

	limiter *rate.Limiter
}

// NewHTTPFetcher builds a fetcher with proxy, TLS and rate limit settings
// taken from runtime.
func NewHTTPFetcher(runtime *types.RuntimeConfig) *HTTPFetcher {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   runtime.GetMaxConcurrentDownloads(),
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	if runtime != nil && runtime.ProxyURL != "" {
		parsedURL, err := url.Parse(runtime.ProxyURL)
		if err != nil {
			utils.Debug("Fetcher: Invalid proxy URL %s: %v", runtime.ProxyURL, err)
			transport.Proxy = http.ProxyFromEnvironment
		} else if strings.HasPrefix(parsedURL.Scheme, "socks5") {
			utils.Debug("Fetcher: Using SOCKS5 proxy: %s", parsedURL.Host)
			var auth *proxy.Auth
			if parsedURL.User != nil {
				pass, _ := parsedURL.User.Password()
				auth = &proxy.Auth{User: parsedURL.User.Username(), Password: pass}
			}
			socks, dialErr := proxy.SOCKS5("tcp", parsedURL.Host, auth, dialer)
			if dialErr != nil {
				utils.Debug("Fetcher: Failed to create SOCKS5 dialer: %v", dialErr)
				transport.Proxy = http.ProxyFromEnvironment
			} else if cd, ok := socks.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					return socks.Dial(network, addr)
				}
			}
		} else {
			transport.Proxy = http.ProxyURL(parsedURL)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if runtime != nil && runtime.SkipTLSVerification {
		utils.Debug("Fetcher: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	f := &HTTPFetcher{
		Client:  &http.Client{Transport: transport},
		Runtime: runtime,
	}
	if runtime != nil && runtime.RequestsPerSecond > 0 {
		burst := int(runtime.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(runtime.RequestsPerSecond), burst)
	}
	return f
}

// Fetch downloads rawurl, retrying transient failures up to FetchRetries
// times with exponential backoff.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawurl string) ([]byte, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = types.RetryBaseDelay
	exp.MaxInterval = types.RetryMaxDelay
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(f.Runtime.GetFetchRetries())),
		ctx,
	)

	attempt := 0
	return backoff.RetryWithData[[]byte](func() ([]byte, error) {
		attempt++
		data, err := f.fetchOnce(ctx, rawurl)
		if err == nil {
			return data, nil
		}
		var ne *types.NetworkError
		if ctx.Err() == nil && errors.As(err, &ne) && ne.Temporary() {
			utils.Debug("Fetcher: attempt %d for %s failed: %v", attempt, rawurl, err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, policy)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawurl string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.Runtime.GetRequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	if f.Runtime != nil {
		for key, val := range f.Runtime.Headers {
			req.Header.Set(key, val)
		}
	}
	req.Header.Set("User-Agent", f.Runtime.GetUserAgent())
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.NetworkError{URL: rawurl, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &types.NetworkError{URL: rawurl, StatusCode: resp.StatusCode}
	}

	if mtype, _ := httpheader.ContentType(resp.Header); mtype != "" && !isBinaryType(mtype) {
		return nil, &types.FormatError{URL: rawurl, Reason: fmt.Sprintf("unexpected content type %q", mtype)}
	}

	expected := f.Runtime.GetExpectedBytes()
	var body io.Reader = resp.Body
	if expected > 0 {
		// One extra byte detects oversized payloads without reading them fully.
		body = io.LimitReader(resp.Body, expected+1)
	}
	var buf bytes.Buffer
	if resp.ContentLength > 0 && (expected == 0 || resp.ContentLength <= expected+1) {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := buf.ReadFrom(body); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.NetworkError{URL: rawurl, Err: fmt.Errorf("read error: %w", err)}
	}

	data := buf.Bytes()
	if err := validatePayload(rawurl, data, expected); err != nil {
		return nil, err
	}
	return data, nil
}

func isBinaryType(mtype string) bool {
	switch mtype {
	case "application/octet-stream", "binary/octet-stream":
		return true
	}
	return false
}

// validatePayload checks that data looks like a raw float16 field.
func validatePayload(rawurl string, data []byte, expected int64) error {
	if len(data) == 0 {
		return &types.FormatError{URL: rawurl, Reason: "empty payload"}
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if looksLikeMarkup(head) {
		return &types.FormatError{URL: rawurl, Reason: "payload looks like markup"}
	}
	if kind := filetype.MatchMap(head, wrapperFormats); kind != filetype.Unknown {
		return &types.FormatError{URL: rawurl, Reason: fmt.Sprintf("payload looks like %s", kind.MIME.Value)}
	}

	if len(data)%types.BytesPerValue != 0 {
		return &types.FormatError{URL: rawurl, Reason: fmt.Sprintf("odd-sized payload (%d bytes)", len(data))}
	}
	if expected > 0 && int64(len(data)) != expected {
		return &types.FormatError{URL: rawurl, Reason: fmt.Sprintf("payload is %d bytes, want %d", len(data), expected)}
	}
	return nil
}

func looksLikeMarkup(head []byte) bool {
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) < 2 || trimmed[0] != '<' {
		return false
	}
	lower := bytes.ToLower(trimmed)
	for _, prefix := range []string{"<!doctype", "<html", "<?xml", "<head", "<body", "<error"} {
		if bytes.HasPrefix(lower, []byte(prefix)) {
			return true
		}
	}
	return false
}
