// ABOUTME: Tests for config file loading
// ABOUTME: Defaults, TOML overrides and validation failures
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmastream.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("expected missing file to fall back to defaults, got %v", err)
	}

	if cfg.Output != "oto" {
		t.Errorf("expected default output, got %q", cfg.Output)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
output = "remote"
remote_addr = "sink:9000"
buffer_bytes = 32768
no_tui = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Output != "remote" || cfg.RemoteAddr != "sink:9000" {
		t.Errorf("expected remote output settings, got %+v", cfg)
	}

	if cfg.BufferBytes != 32768 {
		t.Errorf("expected buffer_bytes override, got %d", cfg.BufferBytes)
	}

	// Untouched keys keep their defaults.
	if cfg.PeriodBytes != 4096 || cfg.Periods != 4 {
		t.Errorf("expected default period geometry, got %+v", cfg)
	}

	if !cfg.NoTUI {
		t.Error("expected no_tui override")
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := writeConfig(t, `output = [broken`)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown output", `output = "pulse"`},
		{"remote without addr", `output = "remote"`},
		{"zero periods", `periods = 0`},
		{"negative buffer", `buffer_bytes = -1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
