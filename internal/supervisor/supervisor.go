// Package supervisor implements the Tunnel Supervisor (C7): one goroutine
// per Forwarding that spawns its ssh/autossh process, watches it, and
// restarts it under a bounded retry budget that resets (rather than ever
// permanently giving up) after a long cooldown.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riotkit-org/tunman-go/internal/health"
	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/registry"
	"github.com/riotkit-org/tunman-go/internal/template"
)

type signal int

const (
	signalRestart signal = iota
	signalTerminate
)

// remoteOps is the subset of *sshclient.Client the supervisor needs: a
// probe command runner plus the remote-side recovery action.
type remoteOps interface {
	health.RemoteExec
	KillAllSessions(ctx context.Context) error
}

// Notifier is told about tunnel lifecycle events; satisfied by
// *notify.Notifier. A nil Notifier is a valid, silent no-op.
type Notifier interface {
	NotifyTunnelRestarted(fw *model.Forwarding)
}

// EventRecorder persists a lifecycle event for later inspection via the
// "events" CLI command; satisfied by *events.Store. A nil EventRecorder is
// a valid, silent no-op.
type EventRecorder interface {
	Record(ident, hostIdent, eventType, message string, pid int)
}

// ForwardingStatus is one Forwarding's entry in Stats.
type ForwardingStatus struct {
	PID           int
	IsAlive       bool
	StartsHistory []time.Time
	RestartsCount int
	Ident         string
}

// Stats mirrors the aggregate status payload the HTTP status surface
// renders.
type Stats struct {
	Signatures    []string
	Status        map[string]ForwardingStatus
	ProcsCount    int
	IsTerminating bool
}

// Supervisor owns the Process Registry and the set of signatures it has
// ever spawned, and drives each Forwarding's per-tunnel state machine.
type Supervisor struct {
	reg      *registry.Registry
	notifier Notifier
	events   EventRecorder

	mu          sync.Mutex
	signatures  []string
	terminating atomic.Bool
}

// New constructs a Supervisor. notifier may be nil.
func New(reg *registry.Registry, notifier Notifier) *Supervisor {
	return &Supervisor{reg: reg, notifier: notifier}
}

// SetEventRecorder wires an EventRecorder after construction; rec may be
// nil to disable event recording.
func (s *Supervisor) SetEventRecorder(rec EventRecorder) {
	s.events = rec
}

func (s *Supervisor) record(fw *model.Forwarding, pid int, eventType, message string) {
	if s.events == nil {
		return
	}
	s.events.Record(fw.Ident(), fw.Host.Ident(), eventType, message, pid)
}

// IsTerminating reports whether Shutdown has been called.
func (s *Supervisor) IsTerminating() bool { return s.terminating.Load() }

// Signatures returns a copy of every signature this supervisor has spawned,
// across all forwardings, since process start.
func (s *Supervisor) Signatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.signatures))
	copy(out, s.signatures)
	return out
}

// Shutdown flips the terminating flag (observed by every SpawnTunnel
// goroutine's sleep loop) and kills every process this supervisor knows
// about, tracked or merely signature-matched.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.terminating.Store(true)
	s.reg.CloseAll(ctx, s.Signatures())
}

// SpawnTunnel glues a Forwarding to its Host and runs the supervising loop
// for as long as the process lives, restarting on crash or failed health
// check, until Shutdown is called. Intended to run in its own goroutine,
// one per Forwarding.
func (s *Supervisor) SpawnTunnel(ctx context.Context, fw *model.Forwarding, remote remoteOps, resolve func(string) string) {
	signature := fw.CreateSSHForwardingSignature(resolve)
	slog.Info("created ssh arguments", "ident", fw.Ident(), "args", fw.CreateSSHArguments(true, resolve))

	s.mu.Lock()
	s.signatures = append(s.signatures, signature)
	s.mu.Unlock()

	retriesLeft := fw.Retries

	for {
		if s.terminating.Load() {
			return
		}

		if err := budgetExhausted(retriesLeft); errors.Is(err, model.ErrBudgetExhausted) {
			retriesLeft = fw.Retries
			slog.Warn("retry budget exhausted, entering long cooldown", "ident", fw.Ident(), "error", err)
			s.record(fw, 0, "budget_exhausted", err.Error())
			if !s.carefullySleep(ctx, fw.WaitTimeAfterAllRetriesFailed) {
				return
			}
		}

		sig := s.spawnSSHProcess(ctx, fw, remote, signature, resolve)

		if sig == signalTerminate {
			return
		}

		if !s.carefullySleep(ctx, 2*time.Second) {
			return
		}
		retriesLeft--
	}
}

func (s *Supervisor) spawnSSHProcess(ctx context.Context, fw *model.Forwarding, remote remoteOps, signature string, resolve func(string) string) signal {
	s.reg.CleanUpExited()

	if s.terminating.Load() {
		return signalTerminate
	}

	cmd := fw.Host.CreateCompleteCommandWithSupervision(fw, resolve)

	h, alive := s.reg.Spawn(cmd)
	fw.OnTunnelStarted(time.Now())
	s.record(fw, pidOf(h), "spawned", "tunnel process spawned")
	if s.notifier != nil {
		s.notifier.NotifyTunnelRestarted(fw)
	}

	if !s.carefullySleep(ctx, fw.WarmUpTime) {
		return signalTerminate
	}

	if !alive || !health.IsProcessAlive(signature) {
		stdout, stderr := s.reg.Communicate(h, 2*time.Second)
		spawnErr := &model.SpawnFailure{Signature: signature, Output: stdout + stderr}
		slog.Error("cannot spawn tunnel", "ident", fw.Ident(), "cmd", cmd, "error", spawnErr, "stdout", stdout, "stderr", stderr)
		s.record(fw, pidOf(h), "spawn_failed", spawnErr.Output)

		if !s.recoverFromError(ctx, stdout+stderr, fw, remote) {
			s.carefullySleep(ctx, fw.TimeBeforeRestartAtInit)
		}
		return signalRestart
	}

	slog.Info("process survived initialization", "ident", fw.Ident(), "signature", signature)

	local, remoteHost, localPort, remotePort := resolveEndpoints(fw, resolve)
	return s.tunnelLoop(ctx, h, fw, remote, signature, local, localPort, remoteHost, remotePort)
}

func (s *Supervisor) tunnelLoop(ctx context.Context, h *registry.Handle, fw *model.Forwarding, remote remoteOps, signature, resolvedLocalHost string, localPort int, resolvedRemoteHost string, remotePort int) signal {
	slog.Debug("starting monitoring loop", "signature", signature)

	interval := time.Duration(fw.Validate.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	for {
		if !s.carefullySleep(ctx, interval) {
			return signalTerminate
		}

		if !h.Running() {
			slog.Error("tunnel process exited", "signature", signature)
			s.record(fw, pidOf(h), "process_exited", "tunnel process exited")
			return signalRestart
		}

		if !health.IsProcessAlive(signature) {
			slog.Error("tunnel process exited for signature", "signature", signature)
			s.record(fw, pidOf(h), "process_exited", "tunnel process no longer matches its signature")
			return signalRestart
		}

		if health.CheckTunnelAlive(ctx, fw, fw.Host, remote, resolvedLocalHost, localPort, remotePort, resolvedRemoteHost) {
			continue
		}

		hcErr := &model.HealthCheckFailure{Reason: fw.Validate.Method}
		slog.Error("health check failed", "signature", signature, "error", hcErr)
		s.record(fw, pidOf(h), "health_check_failed", hcErr.Error())

		wait := time.Duration(fw.Validate.WaitBeforeRestartSecs) * time.Second
		if wait > 0 {
			time.Sleep(wait)
			if health.CheckTunnelAlive(ctx, fw, fw.Host, remote, resolvedLocalHost, localPort, remotePort, resolvedRemoteHost) {
				slog.Info("tunnel recovered without restart", "signature", signature)
				continue
			}
		}

		if fw.Validate.KillExistingOnFailure {
			registry.KillBySignature(signature)
		}

		return signalRestart
	}
}

func (s *Supervisor) recoverFromError(ctx context.Context, errOutput string, fw *model.Forwarding, remote remoteOps) bool {
	if !strings.Contains(errOutput, "remote port forwarding failed for listen port") {
		return false
	}
	if !fw.Host.RestartAllOnForwardFailure || remote == nil {
		return false
	}

	slog.Warn("killing all remote ssh sessions to free the busy listen port", "host", fw.Host.Ident())
	if err := remote.KillAllSessions(ctx); err != nil {
		slog.Error("failed to kill remote sessions", "error", err)
		return false
	}
	time.Sleep(2 * time.Second)
	return true
}

// carefullySleep sleeps d in 1s ticks, waking early (and returning false) if
// the supervisor is terminating or ctx is cancelled. Returns true if the
// full duration elapsed undisturbed.
func (s *Supervisor) carefullySleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.terminating.Load()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if s.terminating.Load() {
			slog.Debug("careful sleep interrupted by shutdown")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return !s.terminating.Load()
}

// budgetExhausted reports model.ErrBudgetExhausted once retriesLeft hits
// zero, the sentinel SpawnTunnel's caller-facing cooldown transition
// branches on.
func budgetExhausted(retriesLeft int) error {
	if retriesLeft == 0 {
		return model.ErrBudgetExhausted
	}
	return nil
}

// pidOf returns h's process id, or 0 if the process never started.
func pidOf(h *registry.Handle) int {
	if h == nil || h.Cmd == nil || h.Cmd.Process == nil {
		return 0
	}
	return h.Cmd.Process.Pid
}

func resolveEndpoints(fw *model.Forwarding, resolve func(string) string) (localHost string, remoteHost string, localPort int, remotePort int) {
	localHost = resolve(fw.Local.HostOrDefault())
	remoteHost = resolve(fw.Remote.HostOrDefault())
	if p, err := template.ParsePort(resolve(fw.Local.Port)); err == nil {
		localPort = p
	}
	if p, err := template.ParsePort(resolve(fw.Remote.Port)); err == nil {
		remotePort = p
	}
	return
}

// GetStats reproduces the aggregate status payload over the given set of
// forwardings, which must already have had their signature computed (i.e.
// SpawnTunnel has been called for each at least once).
func (s *Supervisor) GetStats(forwardings []*model.Forwarding) Stats {
	identity := func(x string) string { return x }

	status := make(map[string]ForwardingStatus, len(forwardings))
	for _, fw := range forwardings {
		sig := fw.CreateSSHForwardingSignature(identity)
		pid, alive := registry.FindBySignature(sig)
		status[fw.Ident()] = ForwardingStatus{
			PID:           pid,
			IsAlive:       alive,
			StartsHistory: fw.StartsHistory(),
			RestartsCount: fw.CurrentRestartCount(),
			Ident:         fw.Ident(),
		}
	}

	return Stats{
		Signatures:    s.Signatures(),
		Status:        status,
		ProcsCount:    s.reg.Count(),
		IsTerminating: s.terminating.Load(),
	}
}
