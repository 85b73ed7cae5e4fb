package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil {
		t.Fatalf("Load with missing default file failed: %v", err)
	}
	if cfg.Backend != "chroot" || cfg.User != "root" {
		t.Errorf("defaults = %q/%q, want chroot/root", cfg.Backend, cfg.User)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true); err == nil {
		t.Error("Load with explicit missing file succeeded")
	}
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantError bool
		check     func(*testing.T, *Config)
	}{
		{
			name: "full file",
			yaml: `backend: nspawn
user: guest
arch: x86
binds:
  - source: /srv/cache
    dest: /var/cache
env:
  LANG: C.UTF-8
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend != "nspawn" || cfg.User != "guest" || cfg.Arch != "x86" {
					t.Errorf("cfg = %+v", cfg)
				}
				if len(cfg.Binds) != 1 || cfg.Binds[0].Source != "/srv/cache" {
					t.Errorf("binds = %+v", cfg.Binds)
				}
				if cfg.Env["LANG"] != "C.UTF-8" {
					t.Errorf("env = %+v", cfg.Env)
				}
			},
		},
		{
			name: "partial file keeps defaults",
			yaml: "user: guest\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend != "chroot" {
					t.Errorf("Backend = %q, want chroot default", cfg.Backend)
				}
			},
		},
		{
			name:      "unknown backend",
			yaml:      "backend: vm\n",
			wantError: true,
		},
		{
			name:      "relative bind path",
			yaml:      "binds:\n  - source: cache\n    dest: /var/cache\n",
			wantError: true,
		},
		{
			name:      "not yaml",
			yaml:      "{{{",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "burrow.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			cfg, err := Load(path, true)
			if tt.wantError {
				if err == nil {
					t.Fatal("Load succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}
