// Package model defines the core data types for hosts, forwardings and the
// errors that flow between the supervision engine's components.
package model

import "errors"

// ConfigurationError reports malformed input produced by the configuration
// loader. It is fatal at startup.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path != "" {
		return "configuration error in " + e.Path + ": " + e.Err.Error()
	}
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RemoteExecError reports that a remote shell call exhausted its retry
// budget. Callers that depend on the result should fall back to an empty or
// partial value rather than treating this as fatal.
type RemoteExecError struct {
	Command string
	Err     error
}

func (e *RemoteExecError) Error() string {
	return "remote exec failed after retries (" + e.Command + "): " + e.Err.Error()
}

func (e *RemoteExecError) Unwrap() error { return e.Err }

// SpawnFailure reports that a child process exited during warm-up, or could
// not be spawned at all.
type SpawnFailure struct {
	Signature string
	Output    string
	Err       error
}

func (e *SpawnFailure) Error() string {
	if e.Err != nil {
		return "spawn failed: " + e.Err.Error()
	}
	return "spawn failed, process exited during warm-up"
}

func (e *SpawnFailure) Unwrap() error { return e.Err }

// HealthCheckFailure reports a non-fatal health-check failure; it drives a
// respawn after the grace window, never a hard stop.
type HealthCheckFailure struct {
	Reason string
}

func (e *HealthCheckFailure) Error() string { return "health check failed: " + e.Reason }

// ParseError reports that the local or remote routing-table text did not
// match the expected shape. Fatal for the affected lookup only.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error on line " + quoteLine(e.Line) + ": " + e.Reason
}

func quoteLine(s string) string {
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return "\"" + s + "\""
}

// ErrUnknownInterface is returned when a routing-table lookup is performed
// for an interface name that was never observed.
var ErrUnknownInterface = errors.New("unknown interface")

// ErrBudgetExhausted marks the moment a supervisor's retry budget reaches
// zero and it is about to enter the long cooldown. It never causes
// termination; the budget is always reset afterward.
var ErrBudgetExhausted = errors.New("retry budget exhausted, entering long cooldown")
