package utils

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// JoinURL appends path segments to base, escaping each segment.
// Example: JoinURL("https://example.com/data", "wind10m", "20251028_06z_u.bin")
// -> https://example.com/data/wind10m/20251028_06z_u.bin
func JoinURL(base string, segments ...string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", base)
	}

	parts := []string{parsed.Path}
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	parsed.Path = path.Join(parts...)
	if !strings.HasPrefix(parsed.Path, "/") {
		parsed.Path = "/" + parsed.Path
	}
	parsed.RawPath = ""
	return parsed.String(), nil
}

// ExtractURLPath extracts the host and directory part of a URL.
// Example: https://example.com/a/b/file.bin -> example.com/a/b
func ExtractURLPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	urlPath := strings.TrimPrefix(parsed.Path, "/")
	dir := filepath.Dir(urlPath)
	if dir == "." {
		return parsed.Host, nil
	}
	return filepath.Join(parsed.Host, dir), nil
}

// FileName returns the last path segment of a URL.
// Example: https://example.com/a/20251028_06z.bin -> 20251028_06z.bin
func FileName(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(parsed.Path)
	if name == "/" || name == "." {
		return "", fmt.Errorf("url %q has no file name", rawURL)
	}
	return name, nil
}
