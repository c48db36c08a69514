package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/registry"
)

type fakeRemote struct {
	killErr   error
	killCalls int
}

func (f *fakeRemote) Exec(ctx context.Context, cmd string) (string, string, error) {
	return "", "", nil
}

func (f *fakeRemote) KillAllSessions(ctx context.Context) error {
	f.killCalls++
	return f.killErr
}

func testForwarding(restartAllOnFailure bool) *model.Forwarding {
	host := &model.Host{
		RemoteUser:                 "deploy",
		RemoteHost:                 "bastion.example.test",
		RemotePort:                 22,
		RestartAllOnForwardFailure: restartAllOnFailure,
	}
	fw := &model.Forwarding{
		Mode:   model.ModeLocal,
		Local:  model.PortDefinition{Host: "127.0.0.1", Port: "18080"},
		Remote: model.PortDefinition{Host: "10.0.0.5", Port: "80"},
		Host:   host,
	}
	host.Forward = []*model.Forwarding{fw}
	return fw
}

func identity(s string) string { return s }

func TestCarefullySleepCompletesFullDuration(t *testing.T) {
	s := New(registry.New(), nil)
	start := time.Now()
	if !s.carefullySleep(context.Background(), 2*time.Second) {
		t.Fatal("expected carefullySleep to complete undisturbed")
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Fatalf("expected at least 2s to elapse, got %s", elapsed)
	}
}

func TestCarefullySleepInterruptedByTerminating(t *testing.T) {
	s := New(registry.New(), nil)
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.terminating.Store(true)
	}()

	if s.carefullySleep(context.Background(), 5*time.Second) {
		t.Fatal("expected carefullySleep to be interrupted by termination")
	}
}

func TestCarefullySleepInterruptedByContext(t *testing.T) {
	s := New(registry.New(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	if s.carefullySleep(ctx, 5*time.Second) {
		t.Fatal("expected carefullySleep to be interrupted by context cancellation")
	}
}

func TestRecoverFromErrorNoMatchingMessage(t *testing.T) {
	s := New(registry.New(), nil)
	fw := testForwarding(true)
	remote := &fakeRemote{}

	if s.recoverFromError(context.Background(), "connection refused", fw, remote) {
		t.Fatal("expected no recovery for an unrelated error message")
	}
	if remote.killCalls != 0 {
		t.Fatalf("expected no kill attempt, got %d", remote.killCalls)
	}
}

func TestRecoverFromErrorRestartAllDisabled(t *testing.T) {
	s := New(registry.New(), nil)
	fw := testForwarding(false)
	remote := &fakeRemote{}

	msg := "remote port forwarding failed for listen port 8080"
	if s.recoverFromError(context.Background(), msg, fw, remote) {
		t.Fatal("expected no recovery when RestartAllOnForwardFailure is disabled")
	}
	if remote.killCalls != 0 {
		t.Fatalf("expected no kill attempt, got %d", remote.killCalls)
	}
}

func TestRecoverFromErrorNilRemote(t *testing.T) {
	s := New(registry.New(), nil)
	fw := testForwarding(true)

	msg := "remote port forwarding failed for listen port 8080"
	if s.recoverFromError(context.Background(), msg, fw, nil) {
		t.Fatal("expected no recovery with a nil remote client")
	}
}

func TestRecoverFromErrorSucceeds(t *testing.T) {
	s := New(registry.New(), nil)
	fw := testForwarding(true)
	remote := &fakeRemote{}

	msg := "remote port forwarding failed for listen port 8080"
	if !s.recoverFromError(context.Background(), msg, fw, remote) {
		t.Fatal("expected recovery to succeed")
	}
	if remote.killCalls != 1 {
		t.Fatalf("expected exactly one kill-all-sessions call, got %d", remote.killCalls)
	}
}

func TestRecoverFromErrorKillFails(t *testing.T) {
	s := New(registry.New(), nil)
	fw := testForwarding(true)
	remote := &fakeRemote{killErr: errors.New("ssh: connection reset")}

	msg := "remote port forwarding failed for listen port 8080"
	if s.recoverFromError(context.Background(), msg, fw, remote) {
		t.Fatal("expected recovery to fail when KillAllSessions errors")
	}
}

func TestResolveEndpointsAppliesResolveFunc(t *testing.T) {
	fw := testForwarding(false)
	resolve := func(s string) string {
		if s == "10.0.0.5" {
			return "10.0.0.9"
		}
		return s
	}

	localHost, remoteHost, localPort, remotePort := resolveEndpoints(fw, resolve)
	if localHost != "127.0.0.1" {
		t.Fatalf("localHost = %q, want 127.0.0.1", localHost)
	}
	if remoteHost != "10.0.0.9" {
		t.Fatalf("remoteHost = %q, want resolved 10.0.0.9", remoteHost)
	}
	if localPort != 18080 {
		t.Fatalf("localPort = %d, want 18080", localPort)
	}
	if remotePort != 80 {
		t.Fatalf("remotePort = %d, want 80", remotePort)
	}
}

func TestGetStatsUnknownSignatureReportsNotAlive(t *testing.T) {
	s := New(registry.New(), nil)
	fw := testForwarding(false)

	stats := s.GetStats([]*model.Forwarding{fw})
	status, ok := stats.Status[fw.Ident()]
	if !ok {
		t.Fatalf("expected a status entry for %s", fw.Ident())
	}
	if status.IsAlive {
		t.Fatal("expected an unspawned forwarding to report not alive")
	}
	if stats.IsTerminating {
		t.Fatal("expected IsTerminating to be false before Shutdown")
	}
}

func TestShutdownSetsTerminatingAndKillsTrackedProcesses(t *testing.T) {
	reg := registry.New()
	s := New(reg, nil)

	_, alive := reg.Spawn("sleep 5")
	if !alive {
		t.Fatal("expected sleep process to still be alive after warm-up wait")
	}

	s.Shutdown(context.Background())

	if !s.IsTerminating() {
		t.Fatal("expected IsTerminating to be true after Shutdown")
	}
	if reg.Count() != 0 {
		t.Fatalf("expected no tracked processes after Shutdown, got %d", reg.Count())
	}
}

func TestSpawnTunnelReturnsImmediatelyWhenAlreadyTerminating(t *testing.T) {
	s := New(registry.New(), nil)
	s.terminating.Store(true)
	fw := testForwarding(false)

	done := make(chan struct{})
	go func() {
		s.SpawnTunnel(context.Background(), fw, nil, identity)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected SpawnTunnel to return immediately when already terminating")
	}

	if len(s.Signatures()) != 1 {
		t.Fatalf("expected the signature to still be recorded, got %d", len(s.Signatures()))
	}
}
