// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for values that end
// up inside Flux queries or InfluxDB tags.
//
// Identifiers (device names, sensor ids, sensor types, measurement names)
// are checked at the ingestion boundary. Anything interpolated into a Flux
// string literal is additionally escaped with EscapeFluxString, so a value
// that slipped past validation still cannot break out of the literal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches device, sensor and measurement identifiers.
// Allows: letters, digits, dots, underscores, colons, hyphens.
// Must start with a letter or digit. Max length: 128 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

// ValidateIdentifier validates a telemetry identifier.
//
// Valid identifiers:
//   - 1-128 characters
//   - Letters and digits, either case ("esp32-01", "DHT11")
//   - Dots, underscores, colons and hyphens after the first character
//
// Example:
//
//	if err := validation.ValidateIdentifier(device); err != nil {
//	    return fmt.Errorf("invalid device: %w", err)
//	}
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-128 alphanumeric chars, dots, underscores, colons or hyphens)", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %q", invalid)
	}
	return nil
}

// SanitizeIdentifier trims surrounding whitespace and validates the result.
// Case is preserved: tag values are case-sensitive in InfluxDB.
func SanitizeIdentifier(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateIdentifier(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// fluxEscaper escapes the characters that are special inside a Flux string
// literal: backslash, double quote, the interpolation opener and line breaks.
var fluxEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`${`, `\${`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeFluxString escapes s for use between double quotes in a Flux query.
//
//	q := fmt.Sprintf(`r.device == "%s"`, validation.EscapeFluxString(device))
func EscapeFluxString(s string) string {
	return fluxEscaper.Replace(s)
}
