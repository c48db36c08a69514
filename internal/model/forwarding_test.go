package model

import (
	"strings"
	"testing"
	"time"
)

func identity(s string) string { return s }

func TestCreateSSHForwardingSignatureLocalWithGateway(t *testing.T) {
	host := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22}
	fw := &Forwarding{
		Mode:   ModeLocal,
		Local:  PortDefinition{Gateway: true, Port: "8010"},
		Remote: PortDefinition{Host: "127.0.0.1", Port: "80"},
		Host:   host,
	}

	sig := fw.CreateSSHForwardingSignature(identity)

	if !strings.Contains(sig, "-L 8010:127.0.0.1:80") {
		t.Fatalf("expected signature to contain the -L clause, got %q", sig)
	}
	if !strings.Contains(sig, "-g") {
		t.Fatalf("expected signature to contain -g for a gateway endpoint, got %q", sig)
	}
}

func TestCreateSSHForwardingSignatureRemoteMode(t *testing.T) {
	host := &Host{RemoteUser: "riotkit", RemoteHost: "bastion.example.test", RemotePort: 22}
	fw := &Forwarding{
		Mode:   ModeRemote,
		Local:  PortDefinition{Host: "127.0.0.1", Port: "9000"},
		Remote: PortDefinition{Port: "80"},
		Host:   host,
	}

	sig := fw.CreateSSHForwardingSignature(identity)

	if !strings.Contains(sig, "-R ") {
		t.Fatalf("expected signature to contain the -R clause, got %q", sig)
	}
	if !strings.Contains(sig, "80:127.0.0.1:9000") {
		t.Fatalf("expected signature to contain remote:local endpoint mapping, got %q", sig)
	}
}

func TestCreateSSHForwardingSignatureIsMemoized(t *testing.T) {
	host := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22}
	fw := &Forwarding{
		Mode:   ModeLocal,
		Local:  PortDefinition{Port: "8010"},
		Remote: PortDefinition{Host: "127.0.0.1", Port: "80"},
		Host:   host,
	}

	calls := 0
	resolve := func(s string) string {
		calls++
		return s
	}

	first := fw.CreateSSHForwardingSignature(resolve)
	second := fw.CreateSSHForwardingSignature(resolve)

	if first != second {
		t.Fatalf("expected idempotent signature, got %q then %q", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected resolve to run exactly once, ran %d times", calls)
	}
}

func TestCurrentRestartCountTracksStartsHistory(t *testing.T) {
	host := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22}
	fw := &Forwarding{Mode: ModeLocal, Local: PortDefinition{Port: "8010"}, Remote: PortDefinition{Port: "80"}, Host: host}

	if got := fw.CurrentRestartCount(); got != 0 {
		t.Fatalf("expected 0 restarts before any start, got %d", got)
	}

	fw.OnTunnelStarted(time.Now())
	if got := fw.CurrentRestartCount(); got != 0 {
		t.Fatalf("expected 0 restarts after the first start, got %d", got)
	}
	if got := len(fw.StartsHistory()); got != 1 {
		t.Fatalf("expected one recorded start, got %d", got)
	}

	fw.OnTunnelStarted(time.Now())
	if got := fw.CurrentRestartCount(); got != 1 {
		t.Fatalf("expected 1 restart after the second start, got %d", got)
	}
}
