// Package config ties the tooling-facing knobs together: logging,
// telemetry, and the format version stamped on new container images.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ftdb-labs/ftdb/core/format"
	"github.com/ftdb-labs/ftdb/pkg/logger"
	"github.com/ftdb-labs/ftdb/pkg/telemetry"
)

// FormatConfig selects how new container images are written.
type FormatConfig struct {
	// Version is the layout version stamped on new images. Readers
	// accept every supported version regardless of this setting.
	Version uint32 `yaml:"version"`
}

// Config is the root configuration for FTDB tooling.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Format    FormatConfig     `yaml:"format"`
}

// Default returns the configuration used when no file is given: info
// level JSON logs on stdout, telemetry off, the aligned layout version.
func Default() Config {
	return Config{
		Logger: logger.Config{
			Level:      "info",
			Format:     "json",
			OutputFile: "stdout",
		},
		Telemetry: telemetry.Config{
			Enabled:          false,
			ServiceName:      "ftdb",
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
		Format: FormatConfig{Version: format.VersionAligned},
	}
}

// BuildLogger constructs the zap logger the Logger section describes.
// Tooling builds its logger here and hands it to the components it opens
// through their WithLogger options.
func (c Config) BuildLogger() (*zap.Logger, error) {
	return logger.New(c.Logger)
}

// Load reads a yaml configuration file on top of the defaults; keys the
// file omits keep their default values. The named format version must be
// one the codec can write.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if !format.SupportedVersion(cfg.Format.Version) {
		return Config{}, fmt.Errorf("%w: config names format version %d", format.ErrUnsupportedVersion, cfg.Format.Version)
	}
	return cfg, nil
}
