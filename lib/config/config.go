// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/ingestd/lib/filestore"
	"github.com/bureau-foundation/ingestd/lib/ring"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the complete ingestd configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Storage configures where uploads are written and how files are
	// read back.
	Storage StorageConfig `yaml:"storage"`

	// Listen configures the public and private listeners.
	Listen ListenConfig `yaml:"listen"`

	// Ring configures the per-upload live buffer.
	Ring RingConfig `yaml:"ring"`

	// HTTP configures server timeouts.
	HTTP HTTPConfig `yaml:"http"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
// Zero values mean "not overridden".
type ConfigOverrides struct {
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Listen  *ListenConfig  `yaml:"listen,omitempty"`
	Ring    *RingConfig    `yaml:"ring,omitempty"`
	HTTP    *HTTPConfig    `yaml:"http,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// StorageConfig configures durable storage.
type StorageConfig struct {
	// WebRoot is the directory request paths resolve under.
	// Default: /var/lib/ingestd/www
	WebRoot string `yaml:"web_root"`

	// WriteChunk caps each positional write of an upload.
	// Default: 4 KiB
	WriteChunk Size `yaml:"write_chunk"`

	// ReadChunk is the buffer size for streaming a file to a reader.
	// Default: 64 KiB
	ReadChunk Size `yaml:"read_chunk"`
}

// ListenConfig configures the listeners.
type ListenConfig struct {
	// PublicSocket is the Unix socket path for GET and HEAD, normally
	// reverse-proxied by the web frontend.
	// Default: /run/ingestd/public.sock
	PublicSocket string `yaml:"public_socket"`

	// PrivateAddress is the TCP address for PUT, DELETE and status.
	// Default: 127.0.0.1:8081
	PrivateAddress string `yaml:"private_address"`

	// InheritFDs serves listeners passed in by the service manager
	// instead of binding: the public Unix socket on fd 0 and the
	// private TCP socket on fd 3. PublicSocket and PrivateAddress are
	// ignored.
	InheritFDs bool `yaml:"inherit_fds"`
}

// RingConfig configures the live buffer each upload runs through.
type RingConfig struct {
	// Capacity is the buffer size, a multiple of the page size. A
	// reader lagging further than this behind the upload falls back
	// to the file.
	// Default: 512 KiB
	Capacity Size `yaml:"capacity"`

	// ReadChunk caps each read from the upload body.
	// Default: 64 KiB
	ReadChunk Size `yaml:"read_chunk"`
}

// HTTPConfig configures server behavior.
type HTTPConfig struct {
	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ReadHeaderTimeout bounds how long a client may take to send the
	// request header.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// UploadIdleTimeout aborts an upload whose body delivers nothing
	// for this long. Zero disables the check.
	// Default: 0 (development), 2m (production)
	UploadIdleTimeout time.Duration `yaml:"upload_idle_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: debug (development), info (otherwise)
	Level string `yaml:"level"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Storage: StorageConfig{
			WebRoot:    "/var/lib/ingestd/www",
			WriteChunk: Size(filestore.DefaultWriteChunkSize),
			ReadChunk:  64 * 1024,
		},
		Listen: ListenConfig{
			PublicSocket:   "/run/ingestd/public.sock",
			PrivateAddress: "127.0.0.1:8081",
		},
		Ring: RingConfig{
			Capacity:  Size(ring.DefaultCapacity),
			ReadChunk: Size(ring.DefaultReadChunkSize),
		},
		HTTP: HTTPConfig{
			ShutdownTimeout:   10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by INGESTD_CONFIG.
// There are no fallbacks: if INGESTD_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("INGESTD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("INGESTD_CONFIG environment variable not set; " +
			"set it to the path of your ingestd.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The result
// is not validated; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()

	cfg.expandVariables()

	return cfg, nil
}

// loadFile decodes a configuration file over the current values.
// Unknown keys are errors, so a misspelled option is not silently
// ignored.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Level: "debug"}}
		}
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// A stalled uploader must not hold its path forever.
		if overrides == nil {
			overrides = &ConfigOverrides{HTTP: &HTTPConfig{UploadIdleTimeout: 2 * time.Minute}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Storage != nil {
		override(&c.Storage.WebRoot, overrides.Storage.WebRoot)
		override(&c.Storage.WriteChunk, overrides.Storage.WriteChunk)
		override(&c.Storage.ReadChunk, overrides.Storage.ReadChunk)
	}

	if overrides.Listen != nil {
		override(&c.Listen.PublicSocket, overrides.Listen.PublicSocket)
		override(&c.Listen.PrivateAddress, overrides.Listen.PrivateAddress)
		// InheritFDs is a bool, so we always apply it from overrides.
		c.Listen.InheritFDs = overrides.Listen.InheritFDs
	}

	if overrides.Ring != nil {
		override(&c.Ring.Capacity, overrides.Ring.Capacity)
		override(&c.Ring.ReadChunk, overrides.Ring.ReadChunk)
	}

	if overrides.HTTP != nil {
		override(&c.HTTP.ShutdownTimeout, overrides.HTTP.ShutdownTimeout)
		override(&c.HTTP.ReadHeaderTimeout, overrides.HTTP.ReadHeaderTimeout)
		override(&c.HTTP.UploadIdleTimeout, overrides.HTTP.UploadIdleTimeout)
	}

	if overrides.Log != nil {
		override(&c.Log.Level, overrides.Log.Level)
	}
}

// override replaces *field with value unless value is the zero value.
func override[T comparable](field *T, value T) {
	var zero T
	if value != zero {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Storage.WebRoot = expandVars(c.Storage.WebRoot, vars)
	vars["INGESTD_ROOT"] = c.Storage.WebRoot

	c.Listen.PublicSocket = expandVars(c.Listen.PublicSocket, vars)
	c.Listen.PrivateAddress = expandVars(c.Listen.PrivateAddress, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Storage.WebRoot == "" {
		errs = append(errs, errors.New("storage.web_root is required"))
	}
	if c.Storage.WriteChunk == 0 {
		errs = append(errs, errors.New("storage.write_chunk must be positive"))
	}
	if c.Storage.ReadChunk == 0 {
		errs = append(errs, errors.New("storage.read_chunk must be positive"))
	}

	if !c.Listen.InheritFDs {
		if c.Listen.PublicSocket == "" {
			errs = append(errs, errors.New("listen.public_socket is required unless listen.inherit_fds is set"))
		}
		if c.Listen.PrivateAddress == "" {
			errs = append(errs, errors.New("listen.private_address is required unless listen.inherit_fds is set"))
		}
	}

	pageSize := Size(os.Getpagesize())
	if c.Ring.Capacity == 0 || c.Ring.Capacity%pageSize != 0 {
		errs = append(errs, fmt.Errorf("ring.capacity %s must be a positive multiple of the page size (%s)",
			c.Ring.Capacity, pageSize))
	}
	if c.Ring.ReadChunk == 0 || c.Ring.ReadChunk > c.Ring.Capacity {
		errs = append(errs, fmt.Errorf("ring.read_chunk %s must be positive and at most ring.capacity",
			c.Ring.ReadChunk))
	}

	if c.HTTP.ShutdownTimeout < 0 || c.HTTP.ReadHeaderTimeout < 0 || c.HTTP.UploadIdleTimeout < 0 {
		errs = append(errs, errors.New("http timeouts must not be negative"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
