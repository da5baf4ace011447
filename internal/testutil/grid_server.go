// Package testutil provides testing utilities for gridsync.
package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// DefaultFileSize is a small even payload; real fields are 1441*721*2 bytes.
const DefaultFileSize = 4096

// GridServer is a configurable HTTP test server that serves raw grid files
// for any path.
type GridServer struct {
	Server *httptest.Server

	// Configuration
	FileSize         int64             // Size of every served file
	ContentType      string            // Content-Type header value
	Latency          time.Duration     // Artificial latency per request
	FailPaths        map[string]int    // Path -> status code to return
	Bodies           map[string][]byte // Path -> body served instead of grid data
	FailOnNthRequest int               // Fail on Nth request with 500 (0 = don't fail)
	Gate             <-chan struct{}   // Requests block until Gate is closed or receives

	// Tracking
	RequestCount   atomic.Int64
	BytesServed    atomic.Int64
	ActiveRequests atomic.Int64
	MaxActive      atomic.Int64
	FailedRequests atomic.Int64

	mu             sync.Mutex
	internalReqNum int
	paths          []string
	lastHeaders    http.Header

	CustomHandler http.HandlerFunc
}

// GridServerOption is a function that configures a GridServer.
type GridServerOption func(*GridServer)

// WithHandler sets a custom request handler.
func WithHandler(h http.HandlerFunc) GridServerOption {
	return func(g *GridServer) {
		g.CustomHandler = h
	}
}

// WithFileSize sets the size of every served file.
func WithFileSize(size int64) GridServerOption {
	return func(g *GridServer) {
		g.FileSize = size
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) GridServerOption {
	return func(g *GridServer) {
		g.ContentType = ct
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) GridServerOption {
	return func(g *GridServer) {
		g.Latency = d
	}
}

// WithFailPath makes requests for path fail with status.
func WithFailPath(path string, status int) GridServerOption {
	return func(g *GridServer) {
		if g.FailPaths == nil {
			g.FailPaths = make(map[string]int)
		}
		g.FailPaths[path] = status
	}
}

// WithBody serves body for path instead of generated grid data.
func WithBody(path string, body []byte) GridServerOption {
	return func(g *GridServer) {
		if g.Bodies == nil {
			g.Bodies = make(map[string][]byte)
		}
		g.Bodies[path] = body
	}
}

// WithFailOnNthRequest causes the Nth request to fail.
func WithFailOnNthRequest(n int) GridServerOption {
	return func(g *GridServer) {
		g.FailOnNthRequest = n
	}
}

// WithGate holds every request until gate yields.
func WithGate(gate <-chan struct{}) GridServerOption {
	return func(g *GridServer) {
		g.Gate = gate
	}
}

func newGridServer(opts []GridServerOption) *GridServer {
	g := &GridServer{
		FileSize:    DefaultFileSize,
		ContentType: "application/octet-stream",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGridServerT creates a new grid server and skips the test if binding fails.
func NewGridServerT(t *testing.T, opts ...GridServerOption) *GridServer {
	t.Helper()
	g := newGridServer(opts)
	g.Server = ServeLoopbackT(t, http.HandlerFunc(g.handleRequest))
	t.Cleanup(g.Close)
	return g
}

// ServeLoopbackT serves handler on an IPv4 loopback port until the test
// ends. Sandboxes without a usable tcp4 listener skip the test.
func ServeLoopbackT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
	}
	srv := &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// URL returns the server's URL.
func (g *GridServer) URL() string {
	return g.Server.URL
}

// Close shuts down the server.
func (g *GridServer) Close() {
	if g.Server != nil {
		g.Server.Close()
	}
}

// Paths returns the request paths in arrival order.
func (g *GridServer) Paths() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

// LastHeaders returns the headers of the most recent request.
func (g *GridServer) LastHeaders() http.Header {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastHeaders.Clone()
}

// Reset clears all tracking counters.
func (g *GridServer) Reset() {
	g.RequestCount.Store(0)
	g.BytesServed.Store(0)
	g.ActiveRequests.Store(0)
	g.MaxActive.Store(0)
	g.FailedRequests.Store(0)
	g.mu.Lock()
	g.internalReqNum = 0
	g.paths = nil
	g.lastHeaders = nil
	g.mu.Unlock()
}

// GridServerStats contains server statistics.
type GridServerStats struct {
	TotalRequests  int64
	BytesServed    int64
	MaxActive      int64
	FailedRequests int64
}

// Stats returns a summary of server statistics.
func (g *GridServer) Stats() GridServerStats {
	return GridServerStats{
		TotalRequests:  g.RequestCount.Load(),
		BytesServed:    g.BytesServed.Load(),
		MaxActive:      g.MaxActive.Load(),
		FailedRequests: g.FailedRequests.Load(),
	}
}

// FieldData returns the bytes served for path. Each path gets a distinct
// deterministic pattern.
func FieldData(path string, size int64) []byte {
	var seed byte
	for i := 0; i < len(path); i++ {
		seed = seed*31 + path[i]
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}

func (g *GridServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if g.CustomHandler != nil {
		g.CustomHandler(w, r)
		return
	}

	g.RequestCount.Add(1)
	active := g.ActiveRequests.Add(1)
	defer g.ActiveRequests.Add(-1)
	for {
		peak := g.MaxActive.Load()
		if active <= peak || g.MaxActive.CompareAndSwap(peak, active) {
			break
		}
	}

	g.mu.Lock()
	g.internalReqNum++
	reqNum := g.internalReqNum
	g.paths = append(g.paths, r.URL.Path)
	g.lastHeaders = r.Header.Clone()
	g.mu.Unlock()

	if g.Gate != nil {
		select {
		case <-g.Gate:
		case <-r.Context().Done():
			return
		}
	}

	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if g.FailOnNthRequest > 0 && reqNum == g.FailOnNthRequest {
		g.FailedRequests.Add(1)
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}

	if status, ok := g.FailPaths[r.URL.Path]; ok {
		g.FailedRequests.Add(1)
		http.Error(w, http.StatusText(status), status)
		return
	}

	body, ok := g.Bodies[r.URL.Path]
	if !ok {
		body = FieldData(r.URL.Path, g.FileSize)
	}

	w.Header().Set("Content-Type", g.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	n, _ := w.Write(body)
	g.BytesServed.Add(int64(n))
}
