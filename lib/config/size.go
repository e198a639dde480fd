// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count written in human form in YAML: "512 KiB",
// "64kB", "1 MiB" or a plain integer.
type Size uint64

// Int returns the size as an int.
func (size Size) Int() int {
	return int(size)
}

// String formats the size with IEC units, e.g. "512 KiB".
func (size Size) String() string {
	return humanize.IBytes(uint64(size))
}

// UnmarshalYAML parses a scalar size.
func (size *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar, like \"512 KiB\"", node.Line)
	}
	parsed, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", node.Line, node.Value, err)
	}
	*size = Size(parsed)
	return nil
}

// MarshalYAML writes the size in IEC units.
func (size Size) MarshalYAML() (any, error) {
	return size.String(), nil
}
