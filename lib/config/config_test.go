// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "ingestd.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Storage.WebRoot != "/var/lib/ingestd/www" {
		t.Errorf("expected web_root=/var/lib/ingestd/www, got %s", cfg.Storage.WebRoot)
	}
	if cfg.Storage.WriteChunk != 4096 {
		t.Errorf("expected write_chunk=4096, got %d", cfg.Storage.WriteChunk)
	}
	if cfg.Ring.Capacity != 512*1024 {
		t.Errorf("expected capacity=512KiB, got %s", cfg.Ring.Capacity)
	}
	if cfg.Listen.PrivateAddress != "127.0.0.1:8081" {
		t.Errorf("expected private_address=127.0.0.1:8081, got %s", cfg.Listen.PrivateAddress)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_RequiresIngestdConfig(t *testing.T) {
	t.Setenv("INGESTD_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when INGESTD_CONFIG not set, got nil")
	}

	expectedMsg := "INGESTD_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithIngestdConfig(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
storage:
  web_root: /srv/www
listen:
  private_address: 127.0.0.1:9000
`)
	t.Setenv("INGESTD_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Storage.WebRoot != "/srv/www" {
		t.Errorf("expected web_root=/srv/www, got %s", cfg.Storage.WebRoot)
	}
	if cfg.Listen.PrivateAddress != "127.0.0.1:9000" {
		t.Errorf("expected private_address=127.0.0.1:9000, got %s", cfg.Listen.PrivateAddress)
	}
	// Unset keys keep their defaults.
	if cfg.Listen.PublicSocket != "/run/ingestd/public.sock" {
		t.Errorf("expected default public_socket, got %s", cfg.Listen.PublicSocket)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
storage:
  web_root: /srv/www
  write_chunk: 8 KiB
  read_chunk: 128KiB
ring:
  capacity: 1 MiB
  read_chunk: 16384
http:
  shutdown_timeout: 30s
  upload_idle_timeout: 1m30s
log:
  level: warn
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Storage.WriteChunk != 8*1024 {
		t.Errorf("expected write_chunk=8192, got %d", cfg.Storage.WriteChunk)
	}
	if cfg.Storage.ReadChunk != 128*1024 {
		t.Errorf("expected read_chunk=131072, got %d", cfg.Storage.ReadChunk)
	}
	if cfg.Ring.Capacity != 1<<20 {
		t.Errorf("expected capacity=1MiB, got %s", cfg.Ring.Capacity)
	}
	if cfg.Ring.ReadChunk != 16384 {
		t.Errorf("expected ring read_chunk=16384, got %d", cfg.Ring.ReadChunk)
	}
	if cfg.HTTP.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected shutdown_timeout=30s, got %s", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.HTTP.UploadIdleTimeout != 90*time.Second {
		t.Errorf("expected upload_idle_timeout=1m30s, got %s", cfg.HTTP.UploadIdleTimeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected level=warn, got %s", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown key",
			content: "storage:\n  webroot: /srv/www\n",
			want:    "webroot",
		},
		{
			name:    "bad size",
			content: "ring:\n  capacity: lots\n",
			want:    "invalid size",
		},
		{
			name:    "size not scalar",
			content: "ring:\n  capacity: [1, 2]\n",
			want:    "must be a scalar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file: expected not-exist error, got %v", err)
	}
}

func TestLoadFile_Empty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile() on empty file failed: %v", err)
	}
	if cfg.Storage.WebRoot != Default().Storage.WebRoot {
		t.Errorf("empty file should keep defaults, got web_root=%s", cfg.Storage.WebRoot)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
environment: production
storage:
  web_root: /srv/www
ring:
  capacity: 256 KiB
production:
  ring:
    capacity: 4 MiB
  listen:
    inherit_fds: true
  log:
    level: error
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Ring.Capacity != 4<<20 {
		t.Errorf("expected production capacity=4MiB, got %s", cfg.Ring.Capacity)
	}
	if !cfg.Listen.InheritFDs {
		t.Error("expected production inherit_fds=true")
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected production level=error, got %s", cfg.Log.Level)
	}
	// Not overridden.
	if cfg.Storage.WebRoot != "/srv/www" {
		t.Errorf("expected web_root=/srv/www, got %s", cfg.Storage.WebRoot)
	}
	// An explicit production block replaces the built-in production
	// defaults entirely.
	if cfg.HTTP.UploadIdleTimeout != 0 {
		t.Errorf("expected upload_idle_timeout=0, got %s", cfg.HTTP.UploadIdleTimeout)
	}
}

func TestEnvironmentOverrides_BuiltIn(t *testing.T) {
	tests := []struct {
		environment string
		level       string
		idle        time.Duration
	}{
		{"development", "debug", 0},
		{"staging", "info", 0},
		{"production", "info", 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, "environment: "+tt.environment+"\n"))
			if err != nil {
				t.Fatalf("LoadFile() failed: %v", err)
			}
			if cfg.Log.Level != tt.level {
				t.Errorf("level = %s, want %s", cfg.Log.Level, tt.level)
			}
			if cfg.HTTP.UploadIdleTimeout != tt.idle {
				t.Errorf("upload_idle_timeout = %s, want %s", cfg.HTTP.UploadIdleTimeout, tt.idle)
			}
		})
	}
}

func TestEnvironmentOverrides_OtherEnvironmentIgnored(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
staging:
  storage:
    web_root: /srv/staging
production:
  storage:
    web_root: /srv/production
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Storage.WebRoot != "/srv/staging" {
		t.Errorf("expected staging web_root, got %s", cfg.Storage.WebRoot)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("INGESTD_TEST_VAR", "from-env")

	vars := map[string]string{
		"HOME":         "/home/test",
		"INGESTD_ROOT": "/srv/www",
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"${HOME}/www", "/home/test/www"},
		{"${INGESTD_ROOT}/.sockets/public.sock", "/srv/www/.sockets/public.sock"},
		{"${INGESTD_TEST_VAR}", "from-env"},
		{"${UNDEFINED:-default}", "default"},
		{"${UNDEFINED}", ""},
		{"no vars here", "no vars here"},
		{"${HOME}:${INGESTD_ROOT}", "/home/test:/srv/www"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := expandVars(tt.input, vars)
			if result != tt.expected {
				t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoadFile_ExpandsPaths(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	configPath := writeConfig(t, `
storage:
  web_root: ${HOME}/www
listen:
  public_socket: ${INGESTD_ROOT}/../public.sock
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Storage.WebRoot != "/home/tester/www" {
		t.Errorf("web_root = %s, want /home/tester/www", cfg.Storage.WebRoot)
	}
	if cfg.Listen.PublicSocket != "/home/tester/www/../public.sock" {
		t.Errorf("public_socket = %s", cfg.Listen.PublicSocket)
	}
}

func TestValidate(t *testing.T) {
	pageSize := Size(os.Getpagesize())

	tests := []struct {
		name    string
		modify  func(*Config)
		want    string
		wantErr bool
	}{
		{
			name:    "valid default",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			want:    "invalid environment",
			wantErr: true,
		},
		{
			name:    "missing web root",
			modify:  func(c *Config) { c.Storage.WebRoot = "" },
			want:    "storage.web_root",
			wantErr: true,
		},
		{
			name:    "missing public socket",
			modify:  func(c *Config) { c.Listen.PublicSocket = "" },
			want:    "listen.public_socket",
			wantErr: true,
		},
		{
			name: "inherited listeners need no addresses",
			modify: func(c *Config) {
				c.Listen.InheritFDs = true
				c.Listen.PublicSocket = ""
				c.Listen.PrivateAddress = ""
			},
			wantErr: false,
		},
		{
			name:    "capacity not page multiple",
			modify:  func(c *Config) { c.Ring.Capacity = pageSize + 1 },
			want:    "ring.capacity",
			wantErr: true,
		},
		{
			name: "read chunk beyond capacity",
			modify: func(c *Config) {
				c.Ring.Capacity = pageSize
				c.Ring.ReadChunk = pageSize * 2
			},
			want:    "ring.read_chunk",
			wantErr: true,
		},
		{
			name:    "zero write chunk",
			modify:  func(c *Config) { c.Storage.WriteChunk = 0 },
			want:    "storage.write_chunk",
			wantErr: true,
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.HTTP.UploadIdleTimeout = -time.Second },
			want:    "http timeouts",
			wantErr: true,
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "loud" },
			want:    "log.level",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Storage.WebRoot = ""
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"storage.web_root", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		input string
		want  Size
	}{
		{"4096", 4096},
		{"4 KiB", 4096},
		{"64kB", 64000},
		{"512KiB", 512 * 1024},
		{"1 MiB", 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var holder struct {
				Value Size `yaml:"value"`
			}
			if err := yaml.Unmarshal([]byte("value: "+tt.input), &holder); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if holder.Value != tt.want {
				t.Errorf("parsed %q as %d, want %d", tt.input, holder.Value, tt.want)
			}
		})
	}

	if got := Size(512 * 1024).String(); got != "512 KiB" {
		t.Errorf("String() = %q, want \"512 KiB\"", got)
	}

	encoded, err := yaml.Marshal(struct {
		Value Size `yaml:"value"`
	}{Value: 1 << 20})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.TrimSpace(string(encoded)) != "value: 1.0 MiB" {
		t.Errorf("Marshal = %q", encoded)
	}
}
