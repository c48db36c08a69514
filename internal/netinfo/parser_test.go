package netinfo

import "testing"

const sampleRouteOutput = `default via 192.168.0.1 dev wlp2s0 proto dhcp metric 600
192.168.0.0/24 dev wlp2s0 proto kernel scope link src 192.168.0.109 metric 600
10.0.0.0/24 dev eth1 proto kernel scope link src 10.0.0.5 metric 700`

func TestParseStandardOutput(t *testing.T) {
	info, err := Parse(sampleRouteOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.Gateway != "192.168.0.1" {
		t.Errorf("gateway = %q, want 192.168.0.1", info.Gateway)
	}
	if info.GatewayInterface != "wlp2s0" {
		t.Errorf("gateway interface = %q, want wlp2s0", info.GatewayInterface)
	}
	if info.GatewayInterfaceIP != "192.168.0.109" {
		t.Errorf("gateway interface ip = %q, want 192.168.0.109", info.GatewayInterfaceIP)
	}
	if info.InterfacesIP["eth1"] != "10.0.0.5" {
		t.Errorf("eth1 ip = %q, want 10.0.0.5", info.InterfacesIP["eth1"])
	}
}

func TestParseRoundTripInvariant(t *testing.T) {
	info, err := Parse(sampleRouteOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.InterfacesIP[info.GatewayInterface] != info.GatewayInterfaceIP {
		t.Fatalf("round-trip invariant violated: interfaces_ip[gw]=%q gw_ip=%q",
			info.InterfacesIP[info.GatewayInterface], info.GatewayInterfaceIP)
	}
}

func TestGetInterfaceIPUnknown(t *testing.T) {
	info, err := Parse(sampleRouteOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := info.GetInterfaceIP("doesnotexist"); err == nil {
		t.Fatal("expected error for unknown interface")
	}
}

func TestParseMalformedLineFails(t *testing.T) {
	bad := "192.168.0.0/24 dev wlp2s0 proto kernel scope link src metric 600"
	if _, err := Parse(bad); err == nil {
		t.Fatal("expected parse error for malformed src line")
	}
}
