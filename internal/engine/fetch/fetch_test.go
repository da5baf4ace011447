package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/gridsync/internal/engine/types"
	"github.com/surge-downloader/gridsync/internal/testutil"
)

func TestTemplateResolver(t *testing.T) {
	r := TemplateResolver{BaseURL: "https://example.com/data/"}

	urls, err := r.Resolve("wind10m", types.TimeStep{
		Date: "20251028", Cycle: "06z",
		Sources: []string{"20251028_06z_u.bin", "20251028_06z_v.bin"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/data/wind10m/20251028_06z_u.bin",
		"https://example.com/data/wind10m/20251028_06z_v.bin",
	}, urls)

	_, err = r.Resolve("temp2m", types.TimeStep{})
	assert.Error(t, err)

	_, err = TemplateResolver{BaseURL: "relative"}.Resolve("temp2m", types.TimeStep{Sources: []string{"x.bin"}})
	assert.Error(t, err)
}

func TestHTTPFetcher_Success(t *testing.T) {
	server := testutil.NewGridServerT(t, testutil.WithFileSize(2048))
	f := NewHTTPFetcher(&types.RuntimeConfig{
		UserAgent: "gridsync-test",
		Headers:   map[string]string{"X-Token": "abc"},
	})

	data, err := f.Fetch(context.Background(), server.URL()+"/temp2m/20251028_06z.bin")
	require.NoError(t, err)
	assert.Equal(t, testutil.FieldData("/temp2m/20251028_06z.bin", 2048), data)

	h := server.LastHeaders()
	assert.Equal(t, "gridsync-test", h.Get("User-Agent"))
	assert.Equal(t, "abc", h.Get("X-Token"))
}

func TestHTTPFetcher_DefaultUserAgent(t *testing.T) {
	server := testutil.NewGridServerT(t)
	f := NewHTTPFetcher(nil)

	_, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
	require.NoError(t, err)
	assert.Contains(t, server.LastHeaders().Get("User-Agent"), "gridsync/")
}

func TestHTTPFetcher_ExpectedSize(t *testing.T) {
	server := testutil.NewGridServerT(t, testutil.WithFileSize(4096))

	ok := NewHTTPFetcher(&types.RuntimeConfig{ExpectedBytes: 4096})
	data, err := ok.Fetch(context.Background(), server.URL()+"/x.bin")
	require.NoError(t, err)
	assert.Len(t, data, 4096)

	for _, expected := range []int64{2048, 8192} {
		f := NewHTTPFetcher(&types.RuntimeConfig{ExpectedBytes: expected})
		_, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
		assert.True(t, types.IsFormatError(err), "expected %d: got %v", expected, err)
	}
}

func TestHTTPFetcher_StatusErrors(t *testing.T) {
	server := testutil.NewGridServerT(t,
		testutil.WithFailPath("/missing.bin", http.StatusNotFound),
		testutil.WithFailPath("/broken.bin", http.StatusBadGateway),
	)
	f := NewHTTPFetcher(&types.RuntimeConfig{FetchRetries: 0})

	_, err := f.Fetch(context.Background(), server.URL()+"/missing.bin")
	var ne *types.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusNotFound, ne.StatusCode)
	assert.False(t, ne.Temporary())

	_, err = f.Fetch(context.Background(), server.URL()+"/broken.bin")
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusBadGateway, ne.StatusCode)

	assert.EqualValues(t, 2, server.Stats().TotalRequests, "no retries by default")
}

func TestHTTPFetcher_RetriesTransientFailure(t *testing.T) {
	server := testutil.NewGridServerT(t, testutil.WithFailOnNthRequest(1))
	f := NewHTTPFetcher(&types.RuntimeConfig{FetchRetries: 2})

	data, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
	require.NoError(t, err)
	assert.Len(t, data, testutil.DefaultFileSize)
	assert.EqualValues(t, 2, server.Stats().TotalRequests)
}

func TestHTTPFetcher_DoesNotRetryPermanentFailure(t *testing.T) {
	server := testutil.NewGridServerT(t, testutil.WithFailPath("/x.bin", http.StatusForbidden))
	f := NewHTTPFetcher(&types.RuntimeConfig{FetchRetries: 3})

	_, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
	assert.True(t, types.IsNetworkError(err))
	assert.EqualValues(t, 1, server.Stats().TotalRequests)
}

func TestHTTPFetcher_FormatErrors(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 56)...)
	gz := append([]byte{0x1f, 0x8b, 0x08}, make([]byte, 61)...)
	zip := append([]byte{'P', 'K', 0x03, 0x04}, make([]byte, 60)...)
	pdf := append([]byte("%PDF-1.7\n"), make([]byte, 55)...)

	tests := []struct {
		name string
		opts []testutil.GridServerOption
	}{
		{"content type", []testutil.GridServerOption{testutil.WithContentType("text/html; charset=utf-8")}},
		{"html body", []testutil.GridServerOption{testutil.WithBody("/x.bin", []byte("\n<!DOCTYPE html><html><body>Not Found</body></html>"))}},
		{"png body", []testutil.GridServerOption{testutil.WithBody("/x.bin", png)}},
		{"gzip body", []testutil.GridServerOption{testutil.WithBody("/x.bin", gz)}},
		{"zip body", []testutil.GridServerOption{testutil.WithBody("/x.bin", zip)}},
		{"pdf body", []testutil.GridServerOption{testutil.WithBody("/x.bin", pdf)}},
		{"odd size", []testutil.GridServerOption{testutil.WithFileSize(1025)}},
		{"empty", []testutil.GridServerOption{testutil.WithFileSize(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewGridServerT(t, tt.opts...)
			f := NewHTTPFetcher(&types.RuntimeConfig{FetchRetries: 2})

			_, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
			var fe *types.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Contains(t, fe.URL, "/x.bin")
			assert.EqualValues(t, 1, server.Stats().TotalRequests, "format errors are not retried")
		})
	}
}

func TestHTTPFetcher_FieldsWithShortMagics(t *testing.T) {
	// Two-byte file signatures are ordinary float16 values.
	tests := []struct {
		name string
		head []byte
	}{
		{"bmp", []byte{0x42, 0x4D}},
		{"exe", []byte{0x4D, 0x5A}},
		{"compress", []byte{0x1F, 0x9D}},
		{"aac", []byte{0xFF, 0xF1}},
		{"postscript", []byte{0x25, 0x21}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := append(append([]byte{}, tt.head...), testutil.FieldData("/x.bin", 62)...)
			server := testutil.NewGridServerT(t, testutil.WithBody("/x.bin", body))
			f := NewHTTPFetcher(&types.RuntimeConfig{ExpectedBytes: 64})

			data, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
			require.NoError(t, err)
			assert.Equal(t, body, data)
		})
	}
}

func TestHTTPFetcher_Cancel(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	server := testutil.NewGridServerT(t, testutil.WithGate(gate))
	f := NewHTTPFetcher(&types.RuntimeConfig{FetchRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, server.URL()+"/x.bin")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return after cancel")
	}
}

func TestHTTPFetcher_RateLimit(t *testing.T) {
	server := testutil.NewGridServerT(t)
	f := NewHTTPFetcher(&types.RuntimeConfig{RequestsPerSecond: 5})

	start := time.Now()
	for i := 0; i < 7; i++ {
		_, err := f.Fetch(context.Background(), server.URL()+"/x.bin")
		require.NoError(t, err)
	}
	// burst of 5, then two more tokens at 200ms each
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestNewHTTPFetcher_Transport(t *testing.T) {
	socks := NewHTTPFetcher(&types.RuntimeConfig{ProxyURL: "socks5://user:pw@127.0.0.1:1080"})
	tr := socks.Client.Transport.(*http.Transport)
	assert.Nil(t, tr.Proxy, "SOCKS5 proxies dial directly")
	assert.NotNil(t, tr.DialContext)

	httpProxy := NewHTTPFetcher(&types.RuntimeConfig{ProxyURL: "http://127.0.0.1:3128"})
	tr = httpProxy.Client.Transport.(*http.Transport)
	require.NotNil(t, tr.Proxy)
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/x.bin", nil)
	u, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3128", u.Host)

	insecure := NewHTTPFetcher(&types.RuntimeConfig{SkipTLSVerification: true})
	tr = insecure.Client.Transport.(*http.Transport)
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	assert.Nil(t, NewHTTPFetcher(nil).limiter)
	assert.NotNil(t, NewHTTPFetcher(&types.RuntimeConfig{RequestsPerSecond: 0.5}).limiter)
}

func TestLoader_Single(t *testing.T) {
	server := testutil.NewGridServerT(t)
	l := NewLoader(server.URL()+"/data", nil)

	p, err := l.Load(context.Background(), "temp2m", types.TimeStep{Sources: []string{"20251028_06z.bin"}})
	require.NoError(t, err)
	assert.Equal(t, types.PayloadSingle, p.Kind)
	assert.Equal(t, testutil.FieldData("/data/temp2m/20251028_06z.bin", testutil.DefaultFileSize), p.Data)
	assert.EqualValues(t, testutil.DefaultFileSize, p.Size())
}

func TestLoader_Dual(t *testing.T) {
	gate := make(chan struct{})
	server := testutil.NewGridServerT(t, testutil.WithGate(gate))
	l := NewLoader(server.URL(), nil)

	// Both components must be in flight at once for the gate to open.
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for server.ActiveRequests.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		close(gate)
	}()

	p, err := l.Load(context.Background(), "wind10m", types.TimeStep{
		Sources: []string{"20251028_06z_u.bin", "20251028_06z_v.bin"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.PayloadPair, p.Kind)
	assert.Equal(t, testutil.FieldData("/wind10m/20251028_06z_u.bin", testutil.DefaultFileSize), p.U)
	assert.Equal(t, testutil.FieldData("/wind10m/20251028_06z_v.bin", testutil.DefaultFileSize), p.V)
	assert.EqualValues(t, 2*testutil.DefaultFileSize, p.Size())
	assert.EqualValues(t, 2, server.Stats().MaxActive)
}

func TestLoader_DualFailure(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	l := &Loader{
		Resolver: TemplateResolver{BaseURL: "http://example.com"},
		Fetcher: FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
			calls.Add(1)
			if url == "http://example.com/wind/v.bin" {
				return nil, boom
			}
			return []byte{0, 0}, nil
		}),
	}

	_, err := l.Load(context.Background(), "wind", types.TimeStep{Sources: []string{"u.bin", "v.bin"}})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 2, calls.Load())
}

func TestLoader_DualSizeMismatch(t *testing.T) {
	l := &Loader{
		Resolver: TemplateResolver{BaseURL: "http://example.com"},
		Fetcher: FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
			if url == "http://example.com/wind/u.bin" {
				return make([]byte, 4), nil
			}
			return make([]byte, 2), nil
		}),
	}

	_, err := l.Load(context.Background(), "wind", types.TimeStep{Sources: []string{"u.bin", "v.bin"}})
	assert.True(t, types.IsFormatError(err))
}
