package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLoadMissingFileIsZero(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LorasDir != "" || cfg.Alpha != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
	if cfg, err := Load(""); err != nil || cfg.ServerAddress != "" {
		t.Fatalf("expected zero config for empty path, got %+v %v", cfg, err)
	}
}

func TestLoadParsesFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := strings.Join([]string{
		"loras_dir: /srv/loras",
		"alpha: 0",
		"strength_model: 0.8",
		"dtype: F16",
		"log_format: json",
		"server_address: 0.0.0.0:9000",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LorasDir != "/srv/loras" || cfg.DType != "F16" || cfg.LogFormat != "json" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Alpha == nil || *cfg.Alpha != 0 {
		t.Fatalf("expected explicit zero alpha, got %v", cfg.Alpha)
	}
	if cfg.StrengthModel == nil || *cfg.StrengthModel != 0.8 {
		t.Fatalf("expected strength_model 0.8, got %v", cfg.StrengthModel)
	}
	if cfg.StrengthClip != nil {
		t.Fatalf("expected unset strength_clip, got %v", *cfg.StrengthClip)
	}
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("alpha: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveLorasDir(t *testing.T) {
	cfg := Config{LorasDir: "/from/config"}

	t.Setenv(EnvLorasDir, "")
	if got := cfg.ResolveLorasDir(""); got != "/from/config" {
		t.Fatalf("expected config dir, got %q", got)
	}

	t.Setenv(EnvLorasDir, " /from/env ")
	if got := cfg.ResolveLorasDir(""); got != "/from/env" {
		t.Fatalf("expected env dir, got %q", got)
	}
	if got := cfg.ResolveLorasDir("/from/flag"); got != "/from/flag" {
		t.Fatalf("expected flag dir, got %q", got)
	}
}

func TestPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only honoured on linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	want := filepath.Join("/tmp/xdg", "lorakit", "config.yaml")
	if got := Path(); got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}
