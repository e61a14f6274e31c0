package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8787 || cfg.GRPCPort != 8788 || cfg.Host != "0.0.0.0" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Addr() != "0.0.0.0:8787" || cfg.GRPCAddr() != "0.0.0.0:8788" {
		t.Fatalf("unexpected addresses %s %s", cfg.Addr(), cfg.GRPCAddr())
	}
	if cfg.DBPath != "" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHEETROLL_PORT", "9000")
	t.Setenv("SHEETROLL_HOST", "127.0.0.1")
	t.Setenv("SHEETROLL_SHEETS_DIR", "/tmp/sheets")
	t.Setenv("SHEETROLL_LOG_PRETTY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9000" || cfg.SheetsDir != "/tmp/sheets" || !cfg.LogPretty {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("SHEETROLL_PORT", "not-an-int")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}

	t.Setenv("SHEETROLL_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid port error")
	}
}
