package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riotkit-org/tunman-go/internal/model"
)

type fakeHosts struct {
	hosts []*model.Host
	err   error
}

func (f *fakeHosts) ProvideAllConfigurations() ([]*model.Host, error) {
	return f.hosts, f.err
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	a := New(&fakeHosts{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}

func TestRunPropagatesProviderError(t *testing.T) {
	want := errors.New("bad config")
	a := New(&fakeHosts{err: want}, Config{})

	if err := a.Run(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestClientForReturnsSameInstanceForSameHost(t *testing.T) {
	a := New(&fakeHosts{}, Config{})
	host := &model.Host{RemoteUser: "u", RemoteHost: "example.test", RemotePort: 22}

	c1 := a.clientFor(host)
	c2 := a.clientFor(host)

	if c1 != c2 {
		t.Fatal("expected clientFor to return the same cached client for the same host")
	}
}

func TestSendPublicKeyPropagatesProviderError(t *testing.T) {
	want := errors.New("bad config")
	a := New(&fakeHosts{err: want}, Config{})

	if err := a.SendPublicKey(); !errors.Is(err, want) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestAddToKnownHostsSkipsAlreadyPresentHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(path, []byte("already-here.example.test ssh-ed25519 AAAA...\n"), 0o600); err != nil {
		t.Fatalf("failed to seed known_hosts: %v", err)
	}

	host := &model.Host{RemoteUser: "u", RemoteHost: "already-here.example.test", RemotePort: 22}
	a := New(&fakeHosts{hosts: []*model.Host{host}}, Config{})

	if err := a.AddToKnownHosts(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadOrCreateKnownHostsCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "known_hosts")

	content, err := readOrCreateKnownHosts(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "" {
		t.Fatalf("expected empty content for a freshly created file, got %q", content)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected known_hosts file to exist: %v", err)
	}
}

func TestLocalGatewayDoesNotPanicWithoutIPTool(t *testing.T) {
	_ = localGateway()
}
