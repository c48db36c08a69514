// Package template implements the lazy variable resolver (C3): it expands
// `{{ token }}` placeholders in SSH command strings into concrete
// network-topology values, without needing to know the full topology
// upfront.
package template

import (
	"strconv"
	"strings"
	"sync"
)

// Lookup functions are supplied by the caller (the sshclient/netinfo
// wiring) and may be slow/blocking; the Resolver memoizes each result for
// the lifetime of the process, matching the "one-shot, no TTL" design note.
type Lookups struct {
	// LocalGW is resolved eagerly (spec: "eager, memoized per host").
	LocalGW func() string
	// RemoteGW resolves the remote host's forward-DNS address.
	RemoteGW func() string
	// RemoteInterfaceGW runs the routing-table lookup on the remote host.
	RemoteInterfaceGW func() string
	// RemoteDockerHost resolves the remote's default gateway as seen from
	// inside a container (used when the tunnel terminates in a container).
	RemoteDockerHost func() string
	// RemoteDockerContainer resolves the first non-loopback interface's IP.
	RemoteDockerContainer func() string
	// RemoteInterface resolves the IPv4 address of a named remote
	// interface, e.g. "eth0".
	RemoteInterface func(name string) string
	// PostProcess, if set, may mutate the variable map before rendering.
	PostProcess func(vars map[string]string) map[string]string
}

var interfaceTokens = [...]string{"remote_interface_eth0", "remote_interface_eth1", "remote_interface_eth2"}

// Resolver renders `{{ token }}` templates using the lazy-resolution
// algorithm of the original tunnel supervisor: only tokens that literally
// appear in the input string trigger their resolver function, but every
// known token is still present in the render context (as an empty string
// when not triggered).
type Resolver struct {
	lookups Lookups

	mu       sync.Mutex
	localGW  string
	gotLocal bool
	cache    map[string]string
}

// NewResolver constructs a Resolver bound to one Host's topology lookups.
func NewResolver(lookups Lookups) *Resolver {
	return &Resolver{lookups: lookups, cache: make(map[string]string)}
}

// Resolve expands every `{{ token }}` occurrence in connStr.
func (r *Resolver) Resolve(connStr string) string {
	vars := map[string]string{
		"local_gw": r.localGateway(),
	}

	if r.lookups.PostProcess != nil {
		vars = r.lookups.PostProcess(vars)
	}

	lazy := map[string]func() string{
		"remote_gw":               r.lookups.RemoteGW,
		"remote_interface_gw":     r.lookups.RemoteInterfaceGW,
		"remote_docker_host":      r.lookups.RemoteDockerHost,
		"remote_docker_container": r.lookups.RemoteDockerContainer,
	}
	for _, tok := range interfaceTokens {
		name := strings.TrimPrefix(tok, "remote_interface_")
		tok, name := tok, name
		lazy[tok] = func() string { return r.remoteInterface(name) }
	}

	for key, fn := range lazy {
		if existing, ok := vars[key]; ok && existing != "" {
			continue
		}
		if strings.Contains(connStr, key) && fn != nil {
			vars[key] = r.memoized(key, fn)
		} else {
			vars[key] = ""
		}
	}

	return render(connStr, vars)
}

func (r *Resolver) localGateway() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.gotLocal {
		if r.lookups.LocalGW != nil {
			r.localGW = r.lookups.LocalGW()
		}
		r.gotLocal = true
	}
	return r.localGW
}

func (r *Resolver) remoteInterface(name string) string {
	return r.memoized("remote_interface_ip("+name+")", func() string {
		if r.lookups.RemoteInterface == nil {
			return ""
		}
		return r.lookups.RemoteInterface(name)
	})
}

func (r *Resolver) memoized(key string, fn func() string) string {
	r.mu.Lock()
	if v, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	v := fn()

	r.mu.Lock()
	r.cache[key] = v
	r.mu.Unlock()

	return v
}

// render performs literal `{{ name }}` substitution (no control flow, no
// escaping) — the tokens are flat names, so a full templating engine would
// be overkill; this mirrors the substitution the original renderer performs.
func render(tmpl string, vars map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		start += i
		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		end += start

		b.WriteString(tmpl[i:start])
		name := strings.TrimSpace(tmpl[start+2 : end])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(tmpl[start : end+2])
		}
		i = end + 2
	}
	return b.String()
}

// ParsePort parses a templated port string into an int after resolution.
func ParsePort(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
