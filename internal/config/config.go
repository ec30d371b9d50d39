// ABOUTME: Player configuration loaded from a TOML file
// ABOUTME: File values fill in anything the command line left at its default
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the player settings a config file may provide.
type Config struct {
	Output      string `toml:"output"`
	RemoteAddr  string `toml:"remote_addr"`
	BufferBytes int    `toml:"buffer_bytes"`
	PeriodBytes int    `toml:"period_bytes"`
	Periods     int    `toml:"periods"`
	MetricsAddr string `toml:"metrics_addr"`
	LogFile     string `toml:"log_file"`
	NoTUI       bool   `toml:"no_tui"`
}

// Default returns the built-in settings used when no file or flag
// says otherwise.
func Default() Config {
	return Config{
		Output:      "oto",
		BufferBytes: 16384,
		PeriodBytes: 4096,
		Periods:     4,
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Output {
	case "oto", "loopback", "remote":
	default:
		return fmt.Errorf("unknown output %q", c.Output)
	}
	if c.Output == "remote" && c.RemoteAddr == "" {
		return fmt.Errorf("remote output requires remote_addr")
	}
	if c.BufferBytes <= 0 || c.PeriodBytes <= 0 || c.Periods <= 0 {
		return fmt.Errorf("buffer geometry must be positive")
	}
	return nil
}
