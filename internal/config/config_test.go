package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "fisiotech-runtime" {
		t.Fatalf("unexpected runtime name %q", cfg.RuntimeName)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.STT.Mode != "mock" || cfg.STT.Language != "pt" {
		t.Fatalf("unexpected stt defaults: %+v", cfg.STT)
	}
	if cfg.STT.WindowMS != 5000 {
		t.Fatalf("expected 5s window default, got %d", cfg.STT.WindowMS)
	}
	if !cfg.Dictation.Enabled || cfg.Dictation.BufferWhilePaused {
		t.Fatalf("unexpected dictation defaults: %+v", cfg.Dictation)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fisiotech.yaml")
	content := `
runtime_name: clinica-sala-2
stt:
  mode: whisper
  endpoint: http://localhost:8081
dictation:
  buffer_while_paused: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "clinica-sala-2" {
		t.Fatalf("expected file override, got %q", cfg.RuntimeName)
	}
	if cfg.STT.Mode != "whisper" || cfg.STT.Endpoint != "http://localhost:8081" {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
	if !cfg.Dictation.BufferWhilePaused {
		t.Fatal("expected buffer_while_paused enabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FISIOTECH_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("FISIOTECH_BUS_USERNAME", "alice")
	t.Setenv("FISIOTECH_BUS_PASSWORD", "secret")
	t.Setenv("FISIOTECH_BUS_TLS_INSECURE", "true")
	t.Setenv("FISIOTECH_DEVICE_ID", "sala-3")
	t.Setenv("FISIOTECH_DEVICE_HEARTBEAT_INTERVAL_MS", "1500")
	t.Setenv("FISIOTECH_DEVICE_HEARTBEAT_TIMEOUT_MS", "5000")
	t.Setenv("FISIOTECH_RECORD_STORE_PATH", "./tmp.db")
	t.Setenv("FISIOTECH_RECORD_STORE_RETENTION_DAYS", "7")
	t.Setenv("FISIOTECH_STT_MODE", "exec")
	t.Setenv("FISIOTECH_STT_COMMAND", "transcrever --rapido")
	t.Setenv("FISIOTECH_DICTATION_BUFFER_WHILE_PAUSED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatal("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Device.ID != "sala-3" {
		t.Fatalf("expected device id override, got %q", cfg.Device.ID)
	}
	if cfg.Device.HeartbeatInterval != 1500 || cfg.Device.HeartbeatTimeout != 5000 {
		t.Fatalf("expected heartbeat overrides, got %+v", cfg.Device)
	}
	if cfg.RecordStore.Path != "./tmp.db" || cfg.RecordStore.RetentionDays != 7 {
		t.Fatalf("expected record store overrides, got %+v", cfg.RecordStore)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "transcrever --rapido" {
		t.Fatalf("expected stt overrides, got %+v", cfg.STT)
	}
	if !cfg.Dictation.BufferWhilePaused {
		t.Fatal("expected dictation override")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty runtime name", func(c *Config) { c.RuntimeName = "" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"no servers external", func(c *Config) { c.Bus.Embedded = false; c.Bus.Servers = nil }},
		{"empty device id", func(c *Config) { c.Device.ID = "" }},
		{"timeout below interval", func(c *Config) { c.Device.HeartbeatTimeout = c.Device.HeartbeatInterval }},
		{"empty store path", func(c *Config) { c.RecordStore.Path = "" }},
		{"unknown stt mode", func(c *Config) { c.STT.Mode = "telepatia" }},
		{"exec without command", func(c *Config) { c.STT.Mode = "exec" }},
		{"whisper without endpoint", func(c *Config) { c.STT.Mode = "whisper" }},
		{"bad window", func(c *Config) { c.STT.WindowMS = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
