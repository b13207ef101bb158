package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Addr     string        `env:"DUET_TEST_ADDR" envDefault:"127.0.0.1:8080"`
	Interval time.Duration `env:"DUET_TEST_INTERVAL" envDefault:"2s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, "127.0.0.1:8080")
	}
	if cfg.Interval != 2*time.Second {
		t.Fatalf("interval = %s, want 2s", cfg.Interval)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DUET_TEST_INTERVAL", "750ms")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Interval != 750*time.Millisecond {
		t.Fatalf("interval = %s, want 750ms", cfg.Interval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DUET_TEST_INTERVAL", "soon")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
