package doclite

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/doclite/internal/dlog"
	"github.com/cuemby/doclite/internal/kv"
)

// Config controls Open. The zero value is usable: unbounded store size,
// warn-level console logging.
type Config struct {
	// MaxBytes bounds the on-disk store size; zero means unbounded.
	MaxBytes int64 `yaml:"maxBytes"`

	// LogLevel selects dlog's global severity: "debug", "info", "warn", or
	// "error". Empty defaults to "warn".
	LogLevel string `yaml:"logLevel"`

	// LogJSON switches the logger to structured JSON output instead of the
	// human-readable console writer.
	LogJSON bool `yaml:"logJSON"`
}

// LoadConfigFile reads a YAML config file of the same shape as Config.
// Used by the CLI; library callers typically construct Config directly.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errStorage(err, "read config file %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errInvalidArgument("parse config file %s: %v", path, err)
	}
	return cfg, nil
}

func (c Config) kvOptions() kv.Options {
	return kv.Options{MaxBytes: c.MaxBytes}
}

func (c Config) applyLogging() {
	level := dlog.WarnLevel
	switch c.LogLevel {
	case "debug":
		level = dlog.DebugLevel
	case "info":
		level = dlog.InfoLevel
	case "error":
		level = dlog.ErrorLevel
	case "warn", "":
		level = dlog.WarnLevel
	}
	dlog.Init(dlog.Config{Level: level, JSONOutput: c.LogJSON})
}
