package config

import (
	"os"
	"testing"
)

func TestLoaderDefaults(t *testing.T) {
	l := NewLoader("")
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Fatalf("Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Fatalf("Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoaderEnvOverridesDefault(t *testing.T) {
	os.Setenv("REDISGO_SERVER_PORT", "7000")
	defer os.Unsetenv("REDISGO_SERVER_PORT")

	l := NewLoader("")
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("Port = %d, want 7000", cfg.Server.Port)
	}
}

func TestLoaderFileOverridesDefault(t *testing.T) {
	f, err := os.CreateTemp("", "redisgo-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("server:\n  port: 7001\n  dir: /tmp/data\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	l := NewLoader(f.Name())
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7001 {
		t.Fatalf("Port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.Server.Dir != "/tmp/data" {
		t.Fatalf("Dir = %q, want /tmp/data", cfg.Server.Dir)
	}
}

func TestLoaderEnvOverridesFile(t *testing.T) {
	f, err := os.CreateTemp("", "redisgo-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("server:\n  port: 7001\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	os.Setenv("REDISGO_SERVER_PORT", "7002")
	defer os.Unsetenv("REDISGO_SERVER_PORT")

	l := NewLoader(f.Name())
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7002 {
		t.Fatalf("Port = %d, want 7002 (env should win over file)", cfg.Server.Port)
	}
}
