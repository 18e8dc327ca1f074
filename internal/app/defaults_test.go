package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("ANNOTATRIX_CONFIG_PATH", "/srv/annotatrix.toml")
		t.Setenv("ANNOTATRIX_HOME", "/srv/annotatrix")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/srv/annotatrix.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/srv/annotatrix.toml")
		}
		if defaults["base_dir"] != "/srv/annotatrix" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/srv/annotatrix")
		}
		if defaults["log_dir"] != "/srv/annotatrix/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/srv/annotatrix/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("ANNOTATRIX_CONFIG_PATH", "")
		t.Setenv("ANNOTATRIX_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "annotatrix.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "annotatrix")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})
}
