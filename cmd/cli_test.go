package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/gridsync/internal/config"
	"github.com/surge-downloader/gridsync/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSettings(t *testing.T, mutate func(*config.Settings)) string {
	t.Helper()
	s := config.DefaultSettings()
	s.General.LogLevel = "error"
	mutate(s)
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, config.SaveSettings(path, s))
	return path
}

func TestConfigPath(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom.json")
	out, err := runCLI(t, "config", "path", "--config", custom)
	require.NoError(t, err)
	assert.Equal(t, custom+"\n", out)

	out, err = runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetSettingsPath()+"\n", out)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	out, err := runCLI(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.True(t, testutil.FileExists(path))

	_, err = runCLI(t, "config", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = runCLI(t, "config", "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestConfigShow_AppliesEnvironment(t *testing.T) {
	path := writeSettings(t, func(s *config.Settings) {
		s.Network.BaseURL = "http://from-file/data"
	})
	t.Setenv("GRIDSYNC_WINDOW_SIZE", "3")

	out, err := runCLI(t, "config", "show", "--config", path, "--env-file", "")
	require.NoError(t, err)

	var got config.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "http://from-file/data", got.Network.BaseURL)
	assert.Equal(t, 3, got.Scheduler.WindowSize)
}

func TestConfigShow_LoadsDotenv(t *testing.T) {
	// Registers a restore of the original value; godotenv only sets
	// variables that are not present.
	t.Setenv("GRIDSYNC_BASE_URL", "")
	require.NoError(t, os.Unsetenv("GRIDSYNC_BASE_URL"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GRIDSYNC_BASE_URL=http://from-dotenv/data\n"), 0644))

	out, err := runCLI(t, "config", "show", "--config", writeSettings(t, func(*config.Settings) {}), "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "http://from-dotenv/data")
}

func TestInvalidSettingsFail(t *testing.T) {
	path := writeSettings(t, func(s *config.Settings) {
		s.Scheduler.Strategy = "greedy"
	})
	_, err := runCLI(t, "config", "show", "--config", path)
	assert.Error(t, err)
}

func TestFetch_HeadlessWritesOutput(t *testing.T) {
	srv := testutil.NewGridServerT(t)

	path := writeSettings(t, func(s *config.Settings) {
		s.Network.BaseURL = srv.URL()
		s.Grid.ExpectedBytes = testutil.DefaultFileSize
	})
	output := filepath.Join(t.TempDir(), "grids")

	out, err := runCLI(t, "fetch",
		"--config", path,
		"--env-file", "",
		"--layers", "temp2m,wind10m:dual",
		"--from", "20251028",
		"--to", "20251028",
		"--at", "2025-10-28T09:00:00Z",
		"--output", output,
	)
	require.NoError(t, err)

	assert.Contains(t, out, "temp2m     2/4 loaded, 0 failed (50%)")
	assert.Contains(t, out, "wind10m    2/4 loaded, 0 failed (50%)")
	assert.Contains(t, out, "Wrote 6 files")

	for _, rel := range []string{
		"temp2m/20251028_06z.bin",
		"temp2m/20251028_12z.bin",
		"wind10m/20251028_06z_u.bin",
		"wind10m/20251028_06z_v.bin",
		"wind10m/20251028_12z_u.bin",
		"wind10m/20251028_12z_v.bin",
	} {
		if err := testutil.VerifyFileSize(filepath.Join(output, rel), testutil.DefaultFileSize); err != nil {
			t.Errorf("%s: %v", rel, err)
		}
	}
	assert.False(t, testutil.FileExists(filepath.Join(output, "temp2m", "20251028_00z.bin")))
	assert.False(t, testutil.FileExists(filepath.Join(output, lockFileName)), "lock file should be removed")
	assert.Equal(t, int64(6), srv.RequestCount.Load())
}

func TestFetch_FailedTimestepIsReported(t *testing.T) {
	srv := testutil.NewGridServerT(t, testutil.WithFailPath("/temp2m/20251028_12z.bin", 404))

	path := writeSettings(t, func(s *config.Settings) {
		s.Network.BaseURL = srv.URL()
		s.Grid.ExpectedBytes = testutil.DefaultFileSize
	})

	out, err := runCLI(t, "fetch",
		"--config", path,
		"--env-file", "",
		"--layers", "temp2m",
		"--from", "20251028",
		"--to", "20251028",
		"--at", "2025-10-28T09:00:00Z",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "failed:")
	assert.Contains(t, out, "temp2m     1/4 loaded, 1 failed (25%)")
}

func TestFetch_Aggressive(t *testing.T) {
	srv := testutil.NewGridServerT(t)

	path := writeSettings(t, func(s *config.Settings) {
		s.Network.BaseURL = srv.URL()
		s.Grid.ExpectedBytes = testutil.DefaultFileSize
	})

	out, err := runCLI(t, "fetch",
		"--config", path,
		"--env-file", "",
		"--layers", "temp2m",
		"--from", "20251028",
		"--to", "20251029",
		"--at", "2025-10-28T09:00:00Z",
		"--strategy", "aggressive",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "temp2m     8/8 loaded, 0 failed (100%)")
	assert.Equal(t, 8, strings.Count(out, "\n  temp2m "), "one line per loaded timestep")
}

func TestLockOutput(t *testing.T) {
	dir := t.TempDir()

	unlock, err := lockOutput(dir)
	require.NoError(t, err)

	_, err = lockOutput(dir)
	assert.ErrorContains(t, err, "in use")

	unlock()
	unlock2, err := lockOutput(dir)
	require.NoError(t, err)
	unlock2()
}
