package model

import (
	"strings"
	"testing"
)

func TestCreateSSHConnectionStringComposesExpectedFlags(t *testing.T) {
	h := &Host{
		RemoteUser: "riotkit",
		RemoteHost: "127.0.0.1",
		RemotePort: 22,
		RemoteKey:  "/tmp/id_rsa",
		SSHOpts:    "-E /tmp/test.log",
	}

	out := h.CreateSSHConnectionString(true, true, "", "")

	for _, want := range []string{"riotkit@127.0.0.1", "-p 22", "-i /tmp/id_rsa", "-E /tmp/test.log"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected connection string to contain %q, got %q", want, out)
		}
	}
}

func TestCreateSSHConnectionStringOmitsKeyFlagWhenUsingPassword(t *testing.T) {
	h := &Host{
		RemoteUser:     "riotkit",
		RemoteHost:     "127.0.0.1",
		RemotePort:     22,
		RemotePassword: "secret",
		SSHOpts:        "-E /tmp/test.log",
	}

	out := h.CreateSSHConnectionString(true, true, "", "")

	if strings.Contains(out, "-i ") {
		t.Fatalf("expected no -i flag when a password is used instead of a key, got %q", out)
	}
}

func TestCreateSSHConnectionStringDefaultsExecutableToSSH(t *testing.T) {
	h := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22}

	out := h.CreateSSHConnectionString(false, false, "", "")

	if !strings.HasPrefix(out, "ssh ") {
		t.Fatalf("expected the executable to default to ssh, got %q", out)
	}
}

func TestCreateSSHKeyscanCommand(t *testing.T) {
	h := &Host{RemoteHost: "bastion.example.test", RemotePort: 2222}

	out := h.CreateSSHKeyscanCommand("")

	if out != "ssh-keyscan -p 2222 bastion.example.test" {
		t.Fatalf("unexpected keyscan command: %q", out)
	}
}

func TestCreateCompleteCommandWithSupervisionPlainSSH(t *testing.T) {
	h := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22}
	fw := &Forwarding{Mode: ModeLocal, Local: PortDefinition{Port: "8010"}, Remote: PortDefinition{Host: "127.0.0.1", Port: "80"}, Host: h}

	cmd := h.CreateCompleteCommandWithSupervision(fw, identity)

	if !strings.HasPrefix(cmd, "ssh -N -T ") {
		t.Fatalf("expected a plain ssh invocation, got %q", cmd)
	}
}

func TestCreateCompleteCommandWithSupervisionAutossh(t *testing.T) {
	h := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22}
	fw := &Forwarding{Mode: ModeLocal, UseAutossh: true, Local: PortDefinition{Port: "8010"}, Remote: PortDefinition{Host: "127.0.0.1", Port: "80"}, Host: h}

	cmd := h.CreateCompleteCommandWithSupervision(fw, identity)

	const want = "autossh -M 0 -N -f -o PubkeyAuthentication=yes -nT "
	if !strings.HasPrefix(cmd, want) {
		t.Fatalf("expected command to start with %q, got %q", want, cmd)
	}
	if strings.Contains(cmd, "PasswordAuthentication") {
		t.Fatalf("expected no PasswordAuthentication flag, got %q", cmd)
	}
}

func TestCreateCompleteCommandWithSupervisionPrependsSshpassForPassword(t *testing.T) {
	h := &Host{RemoteUser: "riotkit", RemoteHost: "127.0.0.1", RemotePort: 22, RemotePassword: "secret"}
	fw := &Forwarding{Mode: ModeLocal, Local: PortDefinition{Port: "8010"}, Remote: PortDefinition{Host: "127.0.0.1", Port: "80"}, Host: h}

	cmd := h.CreateCompleteCommandWithSupervision(fw, identity)

	if !strings.HasPrefix(cmd, `sshpass -p "secret" `) {
		t.Fatalf("expected sshpass prefix, got %q", cmd)
	}
}
