package model

import "fmt"

// VariablesPostProcessor lets configuration supply a callback that mutates
// the resolved template variable map before rendering.
type VariablesPostProcessor func(vars map[string]string, host *Host) map[string]string

// Host is one remote SSH endpoint and its tunnels (HostTunnelDefinitions in
// the design notes). It is created once at startup and is immutable
// thereafter except for the memoized topology caches owned by its Resolver.
type Host struct {
	RemoteUser       string
	RemoteHost       string
	RemotePort       int
	RemoteKey        string
	RemotePassphrase string
	RemotePassword   string
	SSHOpts          string

	Forward                      []*Forwarding
	VariablesPostProcessor       VariablesPostProcessor
	RestartAllOnForwardFailure   bool
}

// Ident is the stable identity of a Host: user@host:port.
func (h *Host) Ident() string {
	return fmt.Sprintf("%s@%s:%d", h.RemoteUser, h.RemoteHost, h.RemotePort)
}

func (h *Host) String() string {
	return fmt.Sprintf("Host<ssh=%s> (contains %d forwardings)", h.Ident(), len(h.Forward))
}

// CreateSSHConnectionString assembles:
//
//	<executable> [<extra_opts>] [-i <key>] [<append>] -p <port> <user>@<host>
//
// Fields are omitted per the flag arguments; executable defaults to "ssh"
// when empty.
func (h *Host) CreateSSHConnectionString(withKey, withCustomOpts bool, append, executable string) string {
	if executable == "" {
		executable = "ssh"
	}
	opts := executable

	if h.SSHOpts != "" && withCustomOpts {
		opts += " " + h.SSHOpts + " "
	}

	if h.RemoteKey != "" && withKey {
		opts += fmt.Sprintf(" -i %s", h.RemoteKey)
	}

	opts += " " + append + " "
	opts += fmt.Sprintf("-p %d %s@%s", h.RemotePort, h.RemoteUser, h.RemoteHost)

	return opts
}

// CreateSSHKeyscanCommand yields "ssh-keyscan -p <port> <host>".
func (h *Host) CreateSSHKeyscanCommand(executable string) string {
	if executable == "" {
		executable = "ssh-keyscan"
	}
	return fmt.Sprintf("%s -p %d %s", executable, h.RemotePort, h.RemoteHost)
}

// CreateCompleteCommandWithSupervision builds the final shell command used
// to spawn a Forwarding's child process: an optional sshpass password
// prefix, then either autossh (when the forwarding opts in via UseAutossh)
// or a plain supervised ssh invocation.
func (h *Host) CreateCompleteCommandWithSupervision(fw *Forwarding, resolve func(string) string) string {
	args := fw.CreateSSHArguments(true, resolve)

	cmd := ""
	if h.RemotePassword != "" {
		cmd += fmt.Sprintf("sshpass -p %q ", h.RemotePassword)
	}

	if fw.UseAutossh {
		cmd += fmt.Sprintf("autossh -M 0 -N -f -o PubkeyAuthentication=yes -nT %s", args)
	} else {
		cmd += fmt.Sprintf("ssh -N -T %s", args)
	}

	return cmd
}

// PostProcessVariables invokes the host's configured post-processor, if
// any, returning the vars map unchanged otherwise.
func (h *Host) PostProcessVariables(vars map[string]string) map[string]string {
	if h.VariablesPostProcessor != nil {
		return h.VariablesPostProcessor(vars, h)
	}
	return vars
}
