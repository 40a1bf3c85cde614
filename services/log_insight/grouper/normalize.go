// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grouper

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// Normalization rewrites variable tokens to fixed placeholders so that
// messages differing only in timestamps, IDs, or addresses collapse to
// one signature. Order matters: timestamps and UUIDs are replaced
// before the broader hex and number rules would tear them apart.
var (
	tsPattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	uuidPattern  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	ipPattern    = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b`)
	hex0xPattern = regexp.MustCompile(`\b0x[0-9a-fA-F]{4,}\b`)
	hexPattern   = regexp.MustCompile(`\b[0-9a-f]{8,}\b`)
	numPattern   = regexp.MustCompile(`\b\d{2,}\b`)
	wsPattern    = regexp.MustCompile(`\s+`)
)

// Normalize reduces a raw log message to its stable signature text.
//
// # Description
//
// Only the first line is considered; stack trace frames vary between
// processes and would split otherwise identical failures into separate
// groups. Variable tokens are replaced in a fixed order:
//
//	RFC3339-ish timestamps -> <ts>
//	UUIDs                  -> <uuid>
//	IPv4 (with opt. port)  -> <ip>
//	hex runs (>= 8 chars)  -> <hex>
//	integer runs (>= 2)    -> <num>
//
// The result is lowercased with whitespace collapsed, so normalization
// is idempotent: Normalize(Normalize(m)) == Normalize(m).
func Normalize(message string) string {
	line := message
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	line = tsPattern.ReplaceAllString(line, "<ts>")
	line = uuidPattern.ReplaceAllString(line, "<uuid>")
	line = ipPattern.ReplaceAllString(line, "<ip>")
	line = hex0xPattern.ReplaceAllString(line, "<hex>")
	line = strings.ToLower(line)

	// Bare hex runs need at least one digit, otherwise ordinary words
	// spelled from a-f ("deadbeef" aside) would be swallowed.
	line = hexPattern.ReplaceAllStringFunc(line, func(m string) string {
		if strings.ContainsAny(m, "0123456789") {
			return "<hex>"
		}
		return m
	})

	line = numPattern.ReplaceAllString(line, "<num>")
	line = wsPattern.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// SignatureHash returns the FNV-64a digest of a normalized message as
// a fixed-width hex string. The hash feeds the group key; the readable
// normalized text is kept on the summary itself.
func SignatureHash(normalized string) string {
	h := fnv.New64a()
	h.Write([]byte(normalized))
	return fmt.Sprintf("%016x", h.Sum64())
}
