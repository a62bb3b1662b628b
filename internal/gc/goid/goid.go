// Copyright 2025 The rcgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goid extracts the current goroutine ID.
//
// A heap is confined to the goroutine that first used it. When confinement
// checking is enabled the collector records the owner's ID on first use and
// compares it on every entry point that mutates the registry.
//
// The ID is parsed from the first line of runtime.Stack output:
//
//	goroutine 123 [running]:
//
// Performance: ~1500ns per call. Confinement checking is therefore opt-in
// (Config.CheckConfinement) and intended for tests and debug builds.
package goid

import "runtime"

// Current returns the ID of the calling goroutine.
//
// Returns:
//   - int64: Goroutine ID (always positive), or 0 if parsing fails
func Current() int64 {
	// We only need the first line, so 64 bytes is sufficient.
	var buf [64]byte

	// Stack trace for the current goroutine only (all=false).
	n := runtime.Stack(buf[:], false)

	return parse(buf[:n])
}

// parse extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:..."
// Returns the numeric ID (123 in this example) or 0 if the format is invalid.
func parse(buf []byte) int64 {
	const prefix = "goroutine "
	const prefixLen = 10 // len("goroutine ")

	if len(buf) < prefixLen {
		return 0
	}
	if string(buf[:prefixLen]) != prefix {
		return 0
	}

	var gid int64
	for i := prefixLen; i < len(buf); i++ {
		//nolint:gosec // G602: i is always < len(buf) due to loop condition
		c := buf[i]
		if c < '0' || c > '9' {
			// Usually the space before "[running]".
			break
		}
		gid = gid*10 + int64(c-'0')
	}

	return gid
}
