// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the daemon's CBOR encoding configuration.
//
// Operational endpoints answer in JSON by default and in CBOR when the
// client asks for application/cbor. This package holds the one CBOR
// encoder and decoder configuration so every caller encodes
// identically. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Timestamps encode as RFC 3339 text.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(writer)
//
// # Struct Tag Rules
//
// Types served in both formats carry only `json` tags: fxamacker/cbor
// v2 reads `json` tags as a fallback when `cbor` tags are absent, so a
// single tag controls field naming and omitempty for both. Types that
// are only ever CBOR use `cbor` tags. Never put both on one field.
package codec
