// Package ui provides the terminal dashboard for tunman.
//
// The dashboard is built with Bubble Tea (a Go framework for terminal apps
// based on The Elm Architecture) and styled with Lip Gloss. It presents the
// operator with:
//
//   - A filterable list of configured hosts
//   - A detail panel showing the selected host's forwardings
//   - A live tunnel status table, backed by the running Supervisor
//   - Contextual guidance for available actions
//
// Unlike the profile-management tool this package is descended from,
// tunman's tunnels are never started or stopped from the dashboard: the
// Tunnel Supervisor (internal/supervisor) owns that lifecycle on its own
// retry/cooldown schedule. The dashboard is an observability surface plus
// a shortcut to open an interactive session to a host.
//
// Keyboard interactions:
//
//	j/k or ↑/↓  — Navigate the host list
//	Enter        — Open an interactive SSH session to the selected host
//	c            — Copy the selected host's SSH connection command to the clipboard
//	/            — Enter filter mode (type to search hosts by identity)
//	r            — Reload host configuration and refresh tunnel status
//	?            — Toggle the help panel
//	q / Ctrl+C   — Quit
package ui

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/security"
	"github.com/riotkit-org/tunman-go/internal/sshclient"
	"github.com/riotkit-org/tunman-go/internal/supervisor"
)

const defaultRefreshSeconds = 3

// tickMsg is emitted by the periodic refresh timer. When received in
// Update(), it triggers a fresh Supervisor status snapshot.
type tickMsg time.Time

// statusMsg updates the status bar text, typically after an async action
// (e.g. an SSH session ending) completes.
type statusMsg string

// HostProvider supplies every configured Host; satisfied by *config.Loader.
type HostProvider interface {
	ProvideAllConfigurations() ([]*model.Host, error)
}

// dashboardModel is the Bubble Tea model for the dashboard. The only public
// entry point is Run, which builds the model and starts the program.
type dashboardModel struct {
	hosts    HostProvider
	supv     *supervisor.Supervisor
	redact   bool
	refresh  int

	allHosts []*model.Host
	filtered []*model.Host
	sel      int

	filterInput textinput.Model
	filterMode  bool
	showHelp    bool
	status      string

	stats supervisor.Stats

	width, height int
}

// New constructs the dashboard model. hosts supplies configuration, supv is
// the live Supervisor already running each Forwarding's goroutine.
func New(hosts HostProvider, supv *supervisor.Supervisor, redactErrors bool) tea.Model {
	fi := textinput.New()
	fi.Placeholder = "filter by host identity"
	fi.Prompt = "/ "
	fi.CharLimit = 128

	m := dashboardModel{hosts: hosts, supv: supv, redact: redactErrors, refresh: defaultRefreshSeconds, filterInput: fi}
	m.reload()
	m.status = "Ready. Enter to connect, / to filter, r to refresh, ? for help."
	return m
}

// Run starts the dashboard as a full-screen terminal application.
func Run(hosts HostProvider, supv *supervisor.Supervisor, redactErrors bool) error {
	if err := sshclient.EnsureSSHBinary(); err != nil {
		return err
	}
	p := tea.NewProgram(New(hosts, supv, redactErrors), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *dashboardModel) reload() {
	hosts, err := m.hosts.ProvideAllConfigurations()
	if err != nil {
		m.status = "config load error: " + security.UserMessage(err, m.redact)
		return
	}
	m.allHosts = hosts
	m.applyFilter()
	m.refreshStats()
}

func (m *dashboardModel) refreshStats() {
	var fws []*model.Forwarding
	for _, h := range m.allHosts {
		fws = append(fws, h.Forward...)
	}
	m.stats = m.supv.GetStats(fws)
}

func (m *dashboardModel) applyFilter() {
	if strings.TrimSpace(m.filterInput.Value()) == "" {
		m.filtered = append([]*model.Host(nil), m.allHosts...)
	} else {
		f := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
		m.filtered = nil
		for _, h := range m.allHosts {
			if strings.Contains(strings.ToLower(h.Ident()), f) {
				m.filtered = append(m.filtered, h)
			}
		}
	}
	if m.sel >= len(m.filtered) {
		m.sel = len(m.filtered) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = defaultRefreshSeconds
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m dashboardModel) Init() tea.Cmd {
	return tickCmd(m.refresh)
}

// Update implements tea.Model.
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refreshStats()
		return m, tickCmd(m.refresh)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.filterMode {
			switch msg.String() {
			case "enter", "esc":
				m.filterMode = false
				m.filterInput.Blur()
				m.applyFilter()
				return m, nil
			default:
				var cmd tea.Cmd
				m.filterInput, cmd = m.filterInput.Update(msg)
				m.applyFilter()
				return m, cmd
			}
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "j", "down":
			if m.sel < len(m.filtered)-1 {
				m.sel++
			}

		case "k", "up":
			if m.sel > 0 {
				m.sel--
			}

		case "/":
			m.filterMode = true
			m.status = "Filter mode: type and press Enter"
			return m, m.filterInput.Focus()

		case "?":
			m.showHelp = !m.showHelp

		case "r":
			m.reload()
			m.status = "Reloaded configuration and tunnel status"

		case "c":
			if len(m.filtered) == 0 {
				break
			}
			h := m.filtered[m.sel]
			cmdline := h.CreateSSHConnectionString(true, true, "", "ssh")
			if err := clipboard.WriteAll(cmdline); err != nil {
				m.status = "copy to clipboard failed: " + security.UserMessage(err, m.redact)
			} else {
				m.status = "copied connection command for " + h.Ident() + " to clipboard"
			}

		case "enter":
			if len(m.filtered) == 0 {
				break
			}
			h := m.filtered[m.sel]
			cmdline := h.CreateSSHConnectionString(true, true, "", "ssh")
			fields := strings.Fields(cmdline)
			c := exec.Command(fields[0], fields[1:]...)
			return m, tea.ExecProcess(c, func(err error) tea.Msg {
				if err != nil {
					return statusMsg("ssh exited: " + security.UserMessage(err, m.redact))
				}
				return statusMsg("ssh session closed")
			})
		}

	case statusMsg:
		m.status = string(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m dashboardModel) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("tunman Dashboard")

	var fwCount int
	for _, h := range m.allHosts {
		fwCount += len(h.Forward)
	}
	subhead := fmt.Sprintf("hosts=%d shown=%d forwardings=%d refresh=%ds",
		len(m.allHosts), len(m.filtered), fwCount, clampRefresh(m.refresh))

	left := strings.Builder{}
	left.WriteString("j/k to navigate; [T] means all forwardings alive.\n")
	for i, h := range m.filtered {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		mark := " "
		if m.hostAllAlive(h) {
			mark = "T"
		}
		left.WriteString(fmt.Sprintf("%s[%s] %-36s %d forward(s)\n", cursor, mark, h.Ident(), len(h.Forward)))
	}
	if len(m.filtered) == 0 {
		left.WriteString("  (no hosts matched)\n")
	}

	detail := strings.Builder{}
	if len(m.filtered) > 0 {
		h := m.filtered[m.sel]
		detail.WriteString(fmt.Sprintf("Host: %s\nUser: %s\nPort: %d\n", h.RemoteHost, h.RemoteUser, h.RemotePort))
		detail.WriteString("Forwardings:\n")
		if len(h.Forward) == 0 {
			detail.WriteString("  (none)\n")
		}
		identity := func(s string) string { return s }
		for _, fw := range h.Forward {
			detail.WriteString(fmt.Sprintf("  %s mode=%s\n", fw.CreateSSHForwardingSignature(identity), fw.Mode))
		}
		detail.WriteString("\nPress Enter to open an interactive SSH session.\n")
	} else {
		detail.WriteString("Pick a host to view its forwardings.\n")
	}

	tbl := strings.Builder{}
	tbl.WriteString(fmt.Sprintf("%-40s %-8s %-8s %-10s\n", "IDENT", "ALIVE", "PID", "RESTARTS"))
	for _, h := range m.filtered {
		for _, fw := range h.Forward {
			st := m.stats.Status[fw.Ident()]
			tbl.WriteString(fmt.Sprintf("%-40s %-8s %-8s %-10d\n",
				fw.Ident(), strconv.FormatBool(st.IsAlive), strconv.Itoa(st.PID), st.RestartsCount))
		}
	}
	if fwCount == 0 {
		tbl.WriteString("(none)\n")
	}

	filterLine := "Filter: " + m.filterInput.Value()
	if m.filterMode {
		filterLine = m.filterInput.View()
	}

	quickHelp := "Keys: Enter connect | c copy | / filter | r refresh | ? help | q quit"

	main := m.renderMainPanels(left.String(), detail.String())
	tunnels := m.renderPanel("Tunnel Status", tbl.String(), m.effectiveWidth(), lipgloss.Color("63"))
	status := m.renderPanel("Status", m.status, m.effectiveWidth(), lipgloss.Color("205"))

	help := ""
	if m.showHelp {
		help = m.renderPanel("Help", m.helpBlock(), m.effectiveWidth(), lipgloss.Color("244"))
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		subhead,
		filterLine,
		quickHelp,
		main,
		tunnels,
		help,
		status,
	)
}

func clampRefresh(seconds int) int {
	if seconds <= 0 {
		return defaultRefreshSeconds
	}
	return seconds
}

func (m dashboardModel) hostAllAlive(h *model.Host) bool {
	if len(h.Forward) == 0 {
		return false
	}
	for _, fw := range h.Forward {
		if !m.stats.Status[fw.Ident()].IsAlive {
			return false
		}
	}
	return true
}

func (m dashboardModel) renderMainPanels(hostsPanel, detailsPanel string) string {
	width := m.effectiveWidth()
	if width < 96 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderPanel("Hosts", hostsPanel, width, lipgloss.Color("39")),
			m.renderPanel("Details", detailsPanel, width, lipgloss.Color("69")),
		)
	}
	leftWidth := width / 2
	rightWidth := width - leftWidth
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderPanel("Hosts", hostsPanel, leftWidth, lipgloss.Color("39")),
		m.renderPanel("Details", detailsPanel, rightWidth, lipgloss.Color("69")),
	)
}

func (m dashboardModel) helpBlock() string {
	return strings.Join([]string{
		"  Navigation: j/k or arrow keys move selection.",
		"  Filtering: press /, type host identity text, then Enter.",
		"  Connect: press Enter on selected host for an interactive session.",
		"  Copy: press c to copy the selected host's ssh command to the clipboard.",
		"  Refresh: press r to reload configuration and tunnel status.",
		"  Quit: press q (or Ctrl+C). Supervised tunnels keep running.",
	}, "\n")
}

func (m dashboardModel) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m dashboardModel) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}
