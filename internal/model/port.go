package model

// Side identifies which end of a forwarding a PortDefinition describes.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

// PortDefinition describes one endpoint of a forwarding: a host/port pair
// that may carry templating tokens, plus a gateway flag that controls
// whether the endpoint binds without an explicit host (publishing it beyond
// loopback).
type PortDefinition struct {
	Gateway bool   `yaml:"gateway"`
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
}

// HostOrDefault returns the configured host as written (tokens are not
// resolved here), falling back to
// "0.0.0.0" for an empty listener host.
func (p PortDefinition) HostOrDefault() string {
	if p.Host == "" {
		return "0.0.0.0"
	}
	return p.Host
}
