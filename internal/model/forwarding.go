package model

import (
	"fmt"
	"sync"
	"time"
)

// Mode selects which direction a Forwarding exposes traffic.
type Mode string

const (
	// ModeLocal pulls a remote service to the local side (ssh -L).
	ModeLocal Mode = "local"
	// ModeRemote exposes a local service to the remote side (ssh -R).
	ModeRemote Mode = "remote"
)

// Forwarding is one tunnel: a local/remote endpoint pair, a direction, a
// health-validation policy and the retry/timing knobs that the supervisor
// (C7) uses to drive its state machine.
type Forwarding struct {
	Local  PortDefinition
	Remote PortDefinition
	Validate ValidationSpec
	Mode   Mode

	Retries                         int
	UseAutossh                      bool
	HealthCheckConnectTimeout       time.Duration
	WarmUpTime                      time.Duration
	TimeBeforeRestartAtInit         time.Duration
	WaitTimeAfterAllRetriesFailed   time.Duration

	Host *Host

	mu            sync.Mutex
	startsHistory []time.Time
	signature     string
	signatureSet  bool
}

// IsLocalToRemote reports whether this forwarding exposes a local service on
// the remote side (-R).
func (f *Forwarding) IsLocalToRemote() bool { return f.Mode == ModeRemote }

// IsRemoteToLocal reports whether this forwarding pulls a remote service to
// the local side (-L).
func (f *Forwarding) IsRemoteToLocal() bool { return f.Mode == ModeLocal }

// Ident is the stable identity of this Forwarding, used in stats and logs.
func (f *Forwarding) Ident() string {
	return fmt.Sprintf("Forward[%s][%s]_at_%s", f.localIdent(), f.remoteIdent(), f.Host.Ident())
}

func (f *Forwarding) localIdent() string {
	return fmt.Sprintf("%s:%s", f.Local.HostOrDefault(), f.Local.Port)
}

func (f *Forwarding) remoteIdent() string {
	return fmt.Sprintf("%s:%s", f.Remote.HostOrDefault(), f.Remote.Port)
}

// CreateSSHForwardingSignature produces the canonical SSH forwarding clause
// used both as the process command-line argument and as the substring
// signature that re-identifies the owned OS process. The result is memoized
// on first computation (write-once: readers either see the sentinel "unset"
// state or the final value).
func (f *Forwarding) CreateSSHForwardingSignature(resolve func(string) string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.signatureSet {
		return f.signature
	}

	cStr := " -o ServerAliveInterval=15 -o ServerAliveCountMax=4 -o ExitOnForwardFailure=yes "

	if f.Remote.Gateway || f.Local.Gateway {
		cStr += " -g "
	}

	if f.IsLocalToRemote() {
		cStr += "-R "
		if !f.Remote.Gateway {
			cStr += f.Remote.HostOrDefault() + ":"
		}
		cStr += fmt.Sprintf("%s:%s:%s", f.Remote.Port, f.Local.HostOrDefault(), f.Local.Port)
	}

	if f.IsRemoteToLocal() {
		cStr += "-L "
		if !f.Local.Gateway {
			cStr += f.Local.HostOrDefault() + ":"
		}
		cStr += fmt.Sprintf("%s:%s:%s", f.Local.Port, f.Remote.HostOrDefault(), f.Remote.Port)
	}

	result := resolve(cStr)
	f.signature = result
	f.signatureSet = true

	return result
}

// CreateSSHArguments returns the full SSH argument string, optionally
// including the forwarding clause.
func (f *Forwarding) CreateSSHArguments(withForwarding bool, resolve func(string) string) string {
	append := ""
	if withForwarding {
		append = f.CreateSSHForwardingSignature(resolve)
	}
	return f.Host.CreateSSHConnectionString(true, true, append, "")
}

// OnTunnelStarted records a new start in the history. current_restart_count
// derives from its length and is monotonically non-decreasing.
func (f *Forwarding) OnTunnelStarted(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startsHistory = append(f.startsHistory, now)
}

// StartsHistory returns a copy of the recorded start timestamps.
func (f *Forwarding) StartsHistory() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.startsHistory))
	copy(out, f.startsHistory)
	return out
}

// CurrentRestartCount is max(0, len(starts_history)-1).
func (f *Forwarding) CurrentRestartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.startsHistory) == 0 {
		return 0
	}
	return len(f.startsHistory) - 1
}

func (f *Forwarding) String() string {
	return fmt.Sprintf("<Forwarding mode=%s> from %s", f.Mode, f.Host)
}
