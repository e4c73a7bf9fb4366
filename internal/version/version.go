/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the current version of EOS.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/eos/internal/version.Version=X.Y.Z
var Version = "0.9.0"

// Commit is the abbreviated commit hash, hex encoded. Set via ldflags.
var Commit = ""

// String is the dotted version with the commit appended, "0.9.0.1a2b3c4d".
func String() string {
	c := Commit
	if c == "" {
		c = "0"
	}
	return fmt.Sprintf("%s.%s", strings.TrimPrefix(Version, "v"), c)
}

// Packed encodes the version into one integer: major, minor and
// revision occupy the upper 32 bits (8, 8 and 16 bits), the commit the
// lower 32.
func Packed() uint64 {
	p := parseVersion(Version)
	hi := uint64(p[0]&0xff)<<24 | uint64(p[1]&0xff)<<16 | uint64(p[2]&0xffff)
	var commit uint64
	if Commit != "" {
		c := Commit
		if len(c) > 8 {
			c = c[:8]
		}
		commit, _ = strconv.ParseUint(c, 16, 32)
	}
	return hi<<32 | commit
}

// Compare compares two semver versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b
func Compare(a, b string) int {
	aParts := parseVersion(a)
	bParts := parseVersion(b)

	for i := 0; i < 3; i++ {
		if aParts[i] < bParts[i] {
			return -1
		}
		if aParts[i] > bParts[i] {
			return 1
		}
	}
	return 0
}

// parseVersion parses a semver string into major, minor, patch.
func parseVersion(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	parts := strings.Split(v, ".")

	var result [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		result[i], _ = strconv.Atoi(parts[i])
	}
	return result
}
