// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// emit renders v to stdout in the requested format. JSON output prints
// the value indented; human output calls the command's own renderer,
// whose string must end with a newline.
func emit(format string, v interface{}, human func() string) error {
	switch OutputFormat(format) {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Println(string(data))
	case FormatHuman:
		fmt.Print(human())
	default:
		return fmt.Errorf("unsupported format %q (want json or human)", format)
	}
	return nil
}
