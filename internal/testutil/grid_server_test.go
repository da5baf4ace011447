package testutil

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	return resp, data
}

func TestGridServer_BasicDownload(t *testing.T) {
	server := NewGridServerT(t, WithFileSize(2048))

	resp, data := get(t, server.URL()+"/temp2m/20251028_06z.bin")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(data) != 2048 {
		t.Errorf("Expected 2048 bytes, got %d", len(data))
	}
	if !bytes.Equal(data, FieldData("/temp2m/20251028_06z.bin", 2048)) {
		t.Error("Served data should match FieldData")
	}

	stats := server.Stats()
	if stats.TotalRequests != 1 || stats.BytesServed != 2048 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if paths := server.Paths(); len(paths) != 1 || paths[0] != "/temp2m/20251028_06z.bin" {
		t.Errorf("Unexpected paths: %v", paths)
	}
}

func TestGridServer_DistinctData(t *testing.T) {
	a := FieldData("/a/1.bin", 64)
	b := FieldData("/a/2.bin", 64)
	if bytes.Equal(a, b) {
		t.Error("Different paths should produce different data")
	}
}

func TestGridServer_FailPath(t *testing.T) {
	server := NewGridServerT(t, WithFailPath("/temp2m/bad.bin", http.StatusNotFound))

	resp, _ := get(t, server.URL()+"/temp2m/bad.bin")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	resp, _ = get(t, server.URL()+"/temp2m/good.bin")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if server.Stats().FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", server.Stats().FailedRequests)
	}
}

func TestGridServer_FailOnNthRequest(t *testing.T) {
	server := NewGridServerT(t, WithFailOnNthRequest(2))

	for i, want := range []int{200, 500, 200} {
		resp, _ := get(t, server.URL()+"/x.bin")
		if resp.StatusCode != want {
			t.Errorf("Request %d: expected %d, got %d", i+1, want, resp.StatusCode)
		}
	}
}

func TestGridServer_Body(t *testing.T) {
	html := []byte("<!DOCTYPE html><html></html>")
	server := NewGridServerT(t, WithBody("/index.bin", html), WithContentType("text/html"))

	resp, data := get(t, server.URL()+"/index.bin")
	if !bytes.Equal(data, html) {
		t.Errorf("Expected custom body, got %q", data)
	}
	if resp.Header.Get("Content-Type") != "text/html" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestGridServer_GateAndMaxActive(t *testing.T) {
	gate := make(chan struct{})
	server := NewGridServerT(t, WithGate(gate))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(server.URL() + "/x.bin")
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.ActiveRequests.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(gate)
	wg.Wait()

	if got := server.Stats().MaxActive; got != 3 {
		t.Errorf("MaxActive = %d, want 3", got)
	}
}

func TestGridServer_Latency(t *testing.T) {
	server := NewGridServerT(t, WithLatency(50*time.Millisecond))

	start := time.Now()
	get(t, server.URL()+"/x.bin")
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected at least 50ms latency, got %v", elapsed)
	}
}

func TestGridServer_Reset(t *testing.T) {
	server := NewGridServerT(t)
	get(t, server.URL()+"/x.bin")
	server.Reset()

	if server.Stats().TotalRequests != 0 || len(server.Paths()) != 0 {
		t.Error("Reset should clear counters and paths")
	}
}

func TestGridServer_RecordsHeaders(t *testing.T) {
	server := NewGridServerT(t)

	req, _ := http.NewRequest(http.MethodGet, server.URL()+"/x.bin", nil)
	req.Header.Set("User-Agent", "gridsync-test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if ua := server.LastHeaders().Get("User-Agent"); ua != "gridsync-test" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestTempDir(t *testing.T) {
	dir, cleanup, err := TempDir("gridsync-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer cleanup()

	if !FileExists(dir) {
		t.Error("TempDir directory doesn't exist")
	}

	cleanup()
	if FileExists(dir) {
		t.Error("TempDir should be removed after cleanup")
	}
}

func TestVerifyFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	if err := os.WriteFile(path, make([]byte, 2048), 0644); err != nil {
		t.Fatal(err)
	}

	if err := VerifyFileSize(path, 2048); err != nil {
		t.Errorf("Should match: %v", err)
	}
	if err := VerifyFileSize(path, 1024); err == nil {
		t.Error("Should fail for wrong size")
	}
}
