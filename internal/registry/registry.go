// Package registry implements the Process Registry (C5): it spawns the
// shell command that runs a supervised ssh/autossh tunnel, tracks the set
// of live children, and can re-identify or kill processes by their
// signature substring when the registry itself did not spawn them (e.g. a
// stale process left behind by a previous run of this program).
package registry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/riotkit-org/tunman-go/internal/procscan"
)

// Handle is a spawned process under registry ownership.
type Handle struct {
	Cmd       *exec.Cmd
	StartedAt time.Time
	Signature string

	stdout   bytes.Buffer
	stderr   bytes.Buffer
	exited   chan struct{}
	waitOnce sync.Once
	waitErr  error
}

// startWaiter launches the single background Wait() for this process. Safe
// to call multiple times; only the first call performs the wait.
func (h *Handle) startWaiter() {
	h.waitOnce.Do(func() {
		h.exited = make(chan struct{})
		go func() {
			h.waitErr = h.Cmd.Wait()
			close(h.exited)
		}()
	})
}

// Running reports whether the process has not yet exited.
func (h *Handle) Running() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// Registry tracks every child process this supervisor has spawned and can
// additionally scan the OS process table to find or kill processes by
// signature substring, regardless of whether this registry spawned them.
type Registry struct {
	mu    sync.Mutex
	procs []*Handle
}

// New returns an empty Registry.
func New() *Registry { return &Registry{} }

// Spawn launches cmd under a shell, captures stdout/stderr, performs a 1s
// non-blocking wait, and only registers the process if it is still
// running after that wait (a process that exits immediately is reported
// back to the caller via the returned Handle, but is not tracked).
func (r *Registry) Spawn(cmd string) (*Handle, bool) {
	slog.Info("spawning tunnel process", "cmd", cmd)

	c := exec.Command("sh", "-c", cmd)
	h := &Handle{Cmd: c, StartedAt: time.Now()}
	c.Stdout = &h.stdout
	c.Stderr = &h.stderr

	if err := c.Start(); err != nil {
		slog.Error("failed to start tunnel process", "error", err)
		return h, false
	}

	h.startWaiter()

	alive := true
	select {
	case <-h.exited:
		alive = false
	case <-time.After(time.Second):
	}

	if alive {
		r.mu.Lock()
		r.procs = append(r.procs, h)
		r.mu.Unlock()
	}

	return h, alive
}

// Communicate returns the captured stdout/stderr of a handle, waiting up to
// timeout for the process to finish producing output.
func (r *Registry) Communicate(h *Handle, timeout time.Duration) (stdout, stderr string) {
	h.startWaiter()
	select {
	case <-h.exited:
	case <-time.After(timeout):
	}
	return h.stdout.String(), h.stderr.String()
}

// CleanUpExited drops handles whose process has already exited from the
// tracked set, so shutdown does not attempt to kill processes that no
// longer exist.
func (r *Registry) CleanUpExited() {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.procs[:0]
	for _, h := range r.procs {
		if h.Running() {
			kept = append(kept, h)
			continue
		}
		slog.Debug("cleaning up exited process", "pid", h.Cmd.Process.Pid)
	}
	r.procs = kept
}

// Count returns the number of currently tracked processes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// FindBySignature scans the OS process table for a process whose joined
// cmdline contains both sig and the literal "ssh". This is a heuristic:
// callers must ensure signatures are unique enough at the configuration
// level (see design notes).
func FindBySignature(sig string) (pid int, ok bool) {
	return procscan.First(func(cmdline string) bool {
		return strings.Contains(cmdline, sig) && strings.Contains(cmdline, "ssh")
	})
}

// KillBySignature finds and kills the process matching sig, if any.
func KillBySignature(sig string) {
	if pid, ok := FindBySignature(sig); ok {
		killPID(pid)
	}
}

// CloseAll kills every tracked child plus any OS process whose cmdline
// contains one of the given signatures, waiting briefly before a final
// kill. It is idempotent and safe to call concurrently with supervisors
// that are themselves observing termination.
func (r *Registry) CloseAll(ctx context.Context, signatures []string) {
	for _, sig := range signatures {
		if ctx.Err() != nil {
			slog.Warn("close_all interrupted before finishing all signatures", "error", ctx.Err())
			break
		}
		if pid, ok := FindBySignature(sig); ok {
			killWithGrace(pid)
		}
		killAllMatching(sig)
	}

	r.mu.Lock()
	procs := append([]*Handle(nil), r.procs...)
	r.procs = nil
	r.mu.Unlock()

	for _, h := range procs {
		if h.Cmd.Process == nil {
			continue
		}
		slog.Info("killing tracked tunnel process", "pid", h.Cmd.Process.Pid)
		killWithGrace(h.Cmd.Process.Pid)
	}
}

func killAllMatching(sig string) {
	matches := procscan.All(func(cmdline string) bool {
		return strings.Contains(cmdline, sig)
	})
	for _, pid := range matches {
		killWithGrace(pid)
	}
}

func killWithGrace(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	_ = proc.Kill()
}

func killPID(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Kill()
}

// String renders a Handle for logging.
func (h *Handle) String() string {
	if h.Cmd.Process == nil {
		return fmt.Sprintf("<unstarted %s>", h.Signature)
	}
	return fmt.Sprintf("pid=%d signature=%s", h.Cmd.Process.Pid, h.Signature)
}
