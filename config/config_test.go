package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ftdb-labs/ftdb/core/format"
)

// writeConfig drops yaml into a temp file and returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ftdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

// TestDefaultIsWritable verifies the default configuration names a
// format version the codec can actually write.
func TestDefaultIsWritable(t *testing.T) {
	cfg := Default()
	require.True(t, format.SupportedVersion(cfg.Format.Version))
	require.Equal(t, format.VersionAligned, cfg.Format.Version)
	require.False(t, cfg.Telemetry.Enabled)
}

// TestLoadMergesOverDefaults verifies a partial file overrides only the
// keys it names.
func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  format: console
format:
  version: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, "console", cfg.Logger.Format)
	require.Equal(t, format.VersionPacked, cfg.Format.Version)

	// Untouched sections keep their defaults.
	require.Equal(t, Default().Telemetry, cfg.Telemetry)
	require.Equal(t, "stdout", cfg.Logger.OutputFile)
}

// TestLoadRejectsUnknownFormatVersion verifies a config naming a version
// the writer cannot produce fails loudly instead of producing images
// nothing can read back.
func TestLoadRejectsUnknownFormatVersion(t *testing.T) {
	path := writeConfig(t, "format:\n  version: 9\n")
	_, err := Load(path)
	require.ErrorIs(t, err, format.ErrUnsupportedVersion)
}

// TestLoadMissingFile verifies the read error carries the path.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.ErrorContains(t, err, "absent.yaml")
}

// TestLoadRejectsMalformedYaml verifies parse failures surface.
func TestLoadRejectsMalformedYaml(t *testing.T) {
	path := writeConfig(t, "logger: [not, a, mapping\n")
	_, err := Load(path)
	require.Error(t, err)
}

// TestBuildLoggerWritesConfiguredFile verifies the logger section wires
// through to a working zap logger: entries land in the configured output
// file and carry the constant service field.
func TestBuildLoggerWritesConfiguredFile(t *testing.T) {
	cfg := Default()
	cfg.Logger.Level = "debug"
	cfg.Logger.Format = "console"
	cfg.Logger.OutputFile = filepath.Join(t.TempDir(), "ftdb.log")

	log, err := cfg.BuildLogger()
	require.NoError(t, err)
	log.Info("build cycle finished")
	require.NoError(t, log.Sync())

	raw, err := os.ReadFile(cfg.Logger.OutputFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "build cycle finished")
	require.Contains(t, string(raw), "ftdb")
}

// TestBuildLoggerLevelFallback verifies an unparseable level falls back
// to info instead of failing the build: debug entries are dropped, warn
// entries land.
func TestBuildLoggerLevelFallback(t *testing.T) {
	cfg := Default()
	cfg.Logger.Level = "chatty"
	cfg.Logger.OutputFile = filepath.Join(t.TempDir(), "ftdb.log")

	log, err := cfg.BuildLogger()
	require.NoError(t, err)
	log.Debug("below the fallback level")
	log.Warn("above the fallback level")
	require.NoError(t, log.Sync())

	raw, err := os.ReadFile(cfg.Logger.OutputFile)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "below the fallback level")
	require.Contains(t, string(raw), "above the fallback level")
}
