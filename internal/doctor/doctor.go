// Package doctor runs local diagnostics for a tunman installation: binary
// availability, configuration validity, duplicate local binds and the
// security audit.
package doctor

import (
	"fmt"
	"sort"

	"github.com/riotkit-org/tunman-go/internal/config"
	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/security"
	"github.com/riotkit-org/tunman-go/internal/sshclient"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Run executes local diagnostics against the host definitions under
// configDir/conf.d.
func Run(configDir string) (Report, error) {
	var issues []Issue

	if err := sshclient.EnsureSSHBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "ssh-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install OpenSSH client and ensure `ssh` is on PATH",
		})
	}

	loader := config.NewLoader(configDir)
	hosts, err := loader.ProvideAllConfigurations()
	if err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "config-load",
			Target:         configDir,
			Message:        err.Error(),
			Recommendation: "fix the malformed host YAML file named in the error",
		})
	} else {
		issues = append(issues, duplicateBindIssues(hosts)...)

		needsAutossh := false
		for _, h := range hosts {
			for _, fw := range h.Forward {
				if fw.UseAutossh {
					needsAutossh = true
				}
			}
		}
		if needsAutossh {
			if err := sshclient.EnsureAutosshBinary(); err != nil {
				issues = append(issues, Issue{
					Severity:       SeverityHigh,
					Check:          "autossh-binary",
					Target:         "PATH",
					Message:        err.Error(),
					Recommendation: "install autossh or disable use_autossh on the affected forwardings",
				})
			}
		}
	}

	if audit, err := security.RunLocalAudit(); err == nil {
		for _, f := range audit.Findings {
			sev := SeverityLow
			switch f.Severity {
			case security.SeverityMedium:
				sev = SeverityMedium
			case security.SeverityHigh:
				sev = SeverityHigh
			}
			issues = append(issues, Issue{
				Severity:       sev,
				Check:          "security-audit",
				Target:         f.Target,
				Message:        f.Message,
				Recommendation: f.Recommendation,
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri, rj := severityRank(issues[i].Severity), severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

func duplicateBindIssues(hosts []*model.Host) []Issue {
	seen := map[string][]string{}
	for _, h := range hosts {
		for _, fw := range h.Forward {
			if !fw.IsRemoteToLocal() {
				continue
			}
			key := fmt.Sprintf("%s:%s", fw.Local.HostOrDefault(), fw.Local.Port)
			seen[key] = append(seen[key], h.Ident())
		}
	}
	var issues []Issue
	for bind, refs := range seen {
		if len(refs) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-local-bind",
			Target:         bind,
			Message:        fmt.Sprintf("local bind is configured by %d forwardings", len(refs)),
			Recommendation: "use unique local ports per host/forwarding to avoid tunnel startup conflicts",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
