// Package util provides common utility functions and constants used across the
// tunman application. No other package in this module imports it at present.
// This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "time"

const (
	// MaxIncludeDepth is the maximum nesting level for SSH config Include directives.
	// This limit prevents infinite recursion when config files form an include cycle
	// that escapes the cycle-detection logic (e.g., via symlinks that resolve to
	// different absolute paths). The value of 16 is generous enough for any
	// reasonable config hierarchy while still providing a safety bound.
	MaxIncludeDepth = 16

	// TunnelProbeTimeout is the maximum time allowed for a single TCP health-check
	// probe against a tunnel's local endpoint. If the connection is not established
	// within this duration, the probe is considered failed.
	//
	// The 500ms value balances responsiveness (the UI shouldn't freeze) with
	// reliability (local TCP connections should complete well under 500ms unless
	// the tunnel is genuinely unhealthy).
	TunnelProbeTimeout = 500 * time.Millisecond

	// DefaultRefreshSeconds is the fallback interval (in seconds) for the TUI
	// dashboard's periodic tunnel status refresh. internal/ui declares its own
	// defaultRefreshSeconds with the same value and does not read this one.
	//
	// A 3-second interval provides near-real-time tunnel status updates without
	// generating excessive CPU load from health-check probes.
	DefaultRefreshSeconds = 3
)
