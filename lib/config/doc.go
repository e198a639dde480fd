// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for ingestd.
//
// Configuration is loaded from a single file specified by either the
// INGESTD_CONFIG environment variable (via [Load]) or the --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${INGESTD_ROOT} (the web root) and ${VAR:-default} patterns
// are expanded. No other environment variables override config values.
//
// Byte sizes are written in human form ("512 KiB", "64kB", "4096") and
// parsed with go-humanize; durations use Go syntax ("10s", "1m30s").
//
// Key exports:
//
//   - [Config]: Storage, Listen, Ring, HTTP and Log sections
//   - [Default]: returns a Config with development defaults
//   - [Load] and [LoadFile]: the two entry points for loading
//   - [Config.Validate]: checks a loaded configuration
package config
