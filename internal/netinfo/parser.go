// Package netinfo parses the textual output of the local routing-table
// enumeration command ("ip route") into gateway and per-interface address
// information (C1).
package netinfo

import (
	"regexp"
	"strings"

	"github.com/riotkit-org/tunman-go/internal/model"
)

var (
	devPattern = regexp.MustCompile(`dev ([a-z0-9]+)`)
	viaPattern = regexp.MustCompile(`via ([0-9.]+)`)
	srcPattern = regexp.MustCompile(`src ([0-9.]+)`)
)

// Info is the parsed result of one "ip route" invocation.
type Info struct {
	GatewayInterface   string
	GatewayInterfaceIP string
	Gateway            string
	InterfacesIP       map[string]string
}

// Parse scans the routing-table text line by line. A line containing the
// literal "default via" supplies the gateway IP and interface name. Every
// line containing both " dev " and " src " contributes an interface->IP
// mapping. Finally the gateway interface's own IP is looked up from that
// map.
func Parse(output string) (*Info, error) {
	info := &Info{InterfacesIP: make(map[string]string)}
	lines := strings.Split(output, "\n")

	if err := parseGatewayInterface(lines, info); err != nil {
		return nil, err
	}
	if err := parseInterfaceIPs(lines, info); err != nil {
		return nil, err
	}

	if info.GatewayInterface != "" {
		ip, ok := info.InterfacesIP[info.GatewayInterface]
		if !ok {
			return nil, &model.ParseError{Reason: "gateway interface " + info.GatewayInterface + " has no known address"}
		}
		info.GatewayInterfaceIP = ip
	}

	return info, nil
}

func parseGatewayInterface(lines []string, info *Info) error {
	for _, line := range lines {
		if !strings.Contains(line, "default via") {
			continue
		}

		devMatch := devPattern.FindStringSubmatch(line)
		viaMatch := viaPattern.FindStringSubmatch(line)
		if devMatch == nil || viaMatch == nil {
			return &model.ParseError{Line: line, Reason: "expected both \"dev <iface>\" and \"via <ip>\""}
		}

		info.GatewayInterface = devMatch[1]
		info.Gateway = viaMatch[1]
		return nil
	}
	return nil
}

func parseInterfaceIPs(lines []string, info *Info) error {
	for _, line := range lines {
		if !strings.Contains(line, " dev ") || !strings.Contains(line, " src ") {
			continue
		}

		devMatch := devPattern.FindStringSubmatch(line)
		srcMatch := srcPattern.FindStringSubmatch(line)
		if devMatch == nil || srcMatch == nil {
			return &model.ParseError{Line: line, Reason: "cannot parse `ip route` line"}
		}

		info.InterfacesIP[devMatch[1]] = srcMatch[1]
	}
	return nil
}

// GetInterfaceIP returns the primary IPv4 of a named interface, or
// ErrUnknownInterface if it was never observed.
func (i *Info) GetInterfaceIP(name string) (string, error) {
	ip, ok := i.InterfacesIP[name]
	if !ok {
		return "", model.ErrUnknownInterface
	}
	return ip, nil
}
