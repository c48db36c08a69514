package model

// ValidationMethodKind tags which shape a ValidationSpec's method takes: a
// recognized built-in name, or an arbitrary user-supplied callback.
type ValidationMethodKind int

const (
	MethodBuiltIn ValidationMethodKind = iota
	MethodCallback
)

// HealthCallback is invoked with the forwarding and its owning host; a
// non-nil error is treated as unhealthy.
type HealthCallback func(fw *Forwarding, host *Host) error

// Built-in validation method names.
const (
	MethodNone            = "none"
	MethodLocalPortPing    = "local_port_ping"
	MethodRemotePortPing   = "remote_port_ping"
)

// ValidationSpec controls how a Forwarding's liveness is probed and what
// happens around a failed probe.
type ValidationSpec struct {
	Kind                  ValidationMethodKind
	Method                string // one of the MethodXxx constants when Kind == MethodBuiltIn
	Callback              HealthCallback
	IntervalSeconds       int
	WaitBeforeRestartSecs int
	KillExistingOnFailure bool
	NotifyURL             string
}
