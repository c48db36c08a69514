// Package health implements the Health Validator (C6): it evaluates a
// Forwarding's ValidationSpec against either a local TCP probe, a remote
// TCP probe run through the Remote Shell Client, a user callback, or
// always-healthy.
package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/procscan"
)

const remotePingTimeout = 15 * time.Second

// RemoteExec runs a command on the remote host and returns its stdout,
// satisfied by *sshclient.Client.
type RemoteExec interface {
	Exec(ctx context.Context, cmd string) (stdout string, stderr string, err error)
}

// CheckTunnelAlive dispatches on fw.Validate.Method. Any error raised by a
// callback validator is treated as "unhealthy", never propagated.
func CheckTunnelAlive(ctx context.Context, fw *model.Forwarding, host *model.Host, remote RemoteExec, resolvedLocalHost string, localPort, remotePort int, resolvedRemoteHost string) bool {
	switch fw.Validate.Kind {
	case model.MethodCallback:
		if fw.Validate.Callback == nil {
			return true
		}
		if err := fw.Validate.Callback(fw, host); err != nil {
			return false
		}
		return true
	}

	switch fw.Validate.Method {
	case model.MethodLocalPortPing:
		h := resolvedLocalHost
		if h == "" || h == "*" {
			h = "0.0.0.0"
		}
		return CheckPortResponding(h, localPort)
	case model.MethodRemotePortPing:
		return checkRemotePortResponding(ctx, remote, resolvedRemoteHost, remotePort)
	default:
		return true
	}
}

// CheckPortResponding opens a TCP connection to host:port with a 15s
// timeout; success iff the connection is accepted.
func CheckPortResponding(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), remotePingTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func checkRemotePortResponding(ctx context.Context, remote RemoteExec, host string, port int) bool {
	if remote == nil {
		return false
	}
	cmd := fmt.Sprintf("nc -zw15 %s %d 1>&2; echo $?", host, port)
	stdout, _, err := remote.Exec(ctx, cmd)
	if err != nil {
		return false
	}
	code, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return false
	}
	return code == 0
}

// IsProcessAlive reports whether some OS process has signature as a
// substring of its joined cmdline. Unlike the Process Registry's
// FindBySignature, this does not additionally require "ssh" in the
// cmdline: a tunnel's liveness here is judged on the signature alone.
func IsProcessAlive(signature string) bool {
	_, ok := procscan.First(func(cmdline string) bool {
		return strings.Contains(cmdline, signature)
	})
	return ok
}
