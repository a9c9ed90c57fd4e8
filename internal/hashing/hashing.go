// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package hashing derives stable, collision-resistant addresses from semantic
// keys. A study or trial is identified by a mapping of named fields; the
// canonical serialization sorts the field names and quotes both names and
// values, so semantically equal keys hash identically regardless of insertion
// order and no field value can forge a separator.
//
// Hashes are SHA-256 (64 hex chars). Folder names use the short token form,
// the first 8 hex chars by default. All functions are pure: no I/O, no clock,
// no global state.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// FullHashLen is the length of a full hex-encoded key hash.
	FullHashLen = 64

	// ShortTokenLen is the default folder-name token length.
	ShortTokenLen = 8
)

// ErrInvalidKey reports a malformed semantic key: missing fields, empty
// names or values, or values of an unsupported type. This is a caller bug
// and is always fatal.
var ErrInvalidKey = errors.New("invalid semantic key")

// Fields is a semantic key: named fields with canonical string values.
// Use FieldsFromParams to build one from typed hyperparameter values.
type Fields map[string]string

// Hash is a full 64-hex-char key hash.
type Hash string

// String returns the full hex form.
func (h Hash) String() string { return string(h) }

// Short returns the first n hex chars of the hash, the folder-name token.
// n <= 0 selects the default token length.
func (h Hash) Short(n int) string {
	if n <= 0 || n > len(h) {
		n = ShortTokenLen
		if n > len(h) {
			n = len(h)
		}
	}
	return string(h[:n])
}

// Valid reports whether h is a well-formed full hash.
func (h Hash) Valid() bool {
	if len(h) != FullHashLen {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ParseHash validates a hex string as a full key hash.
func ParseHash(s string) (Hash, error) {
	h := Hash(strings.ToLower(s))
	if !h.Valid() {
		return "", fmt.Errorf("%w: %q is not a %d-char hex hash", ErrInvalidKey, s, FullHashLen)
	}
	return h, nil
}

// HashKey hashes a semantic key into its full address.
//
// Canonical serialization: field names sorted, each field rendered as
// quoted-name=quoted-value, fields joined by "|". Quoting prevents a value
// containing the separator from colliding with a differently-split key.
func HashKey(fields Fields) (Hash, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no fields", ErrInvalidKey)
	}

	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if name == "" {
			return "", fmt.Errorf("%w: empty field name", ErrInvalidKey)
		}
		if value == "" {
			return "", fmt.Errorf("%w: field %q has empty value", ErrInvalidKey, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = strconv.Quote(name) + "=" + strconv.Quote(fields[name])
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return Hash(hex.EncodeToString(sum[:])), nil
}

// ShortToken returns the first length hex chars of a full hash.
// length <= 0 selects the default. The input must be a valid full hash.
func ShortToken(full string, length int) (string, error) {
	h, err := ParseHash(full)
	if err != nil {
		return "", err
	}
	return h.Short(length), nil
}

// FieldValue converts a typed value to its canonical string form.
// Supported types: string, bool, signed/unsigned integers, float64.
// Anything else is a caller bug.
func FieldValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case float64:
		// 'g' with -1 precision round-trips exactly, so equal floats
		// always serialize identically.
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: unsupported field type %T", ErrInvalidKey, v)
	}
}

// FieldsFromParams converts a typed parameter assignment into canonical
// Fields. Fails on empty names or unsupported value types.
func FieldsFromParams(params map[string]interface{}) (Fields, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no parameters", ErrInvalidKey)
	}

	fields := make(Fields, len(params))
	for name, value := range params {
		if name == "" {
			return nil, fmt.Errorf("%w: empty parameter name", ErrInvalidKey)
		}
		s, err := FieldValue(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		fields[name] = s
	}
	return fields, nil
}
