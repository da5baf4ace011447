package testutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// VerifyFileSize checks that the file at path has the expected size.
func VerifyFileSize(path string, expected int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != expected {
		return fmt.Errorf("%s: expected %d bytes, got %d", filepath.Base(path), expected, info.Size())
	}
	return nil
}
