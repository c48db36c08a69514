// Package cli provides the command-line interface for tunman, built with
// Cobra. One executable exposes the administrative actions (start, the
// one-shot host provisioning helpers) plus a handful of ambient inspection
// commands (status, events, doctor, security, bundle) that all share the
// same Configuration Loader (C9) and Tunnel Supervisor (C7) backend.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riotkit-org/tunman-go/internal/app"
	"github.com/riotkit-org/tunman-go/internal/appconfig"
	"github.com/riotkit-org/tunman-go/internal/bundle"
	"github.com/riotkit-org/tunman-go/internal/config"
	"github.com/riotkit-org/tunman-go/internal/doctor"
	"github.com/riotkit-org/tunman-go/internal/events"
	"github.com/riotkit-org/tunman-go/internal/history"
	"github.com/riotkit-org/tunman-go/internal/notify"
	"github.com/riotkit-org/tunman-go/internal/security"
	"github.com/riotkit-org/tunman-go/internal/sshclient"
	"github.com/riotkit-org/tunman-go/internal/statusui"
	"github.com/riotkit-org/tunman-go/internal/ui"
)

// rootFlags holds the root command's persistent flags.
type rootFlags struct {
	configDir    string
	port         int
	listen       string
	secretPrefix string
	env          string
}

// NewRootCommand creates and returns the top-level Cobra command for
// tunman.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "tunman",
		Short: "Supervises SSH tunnels and recovers them under failure",
	}
	root.PersistentFlags().StringVarP(&flags.configDir, "config", "c", ".", "host configuration directory (contains conf.d/*.yaml)")
	root.PersistentFlags().IntVarP(&flags.port, "port", "p", 8015, "HTTP port for the aggregate status surface")
	root.PersistentFlags().StringVarP(&flags.listen, "listen", "l", "", "HTTP listen address (empty binds all interfaces)")
	root.PersistentFlags().StringVarP(&flags.secretPrefix, "secret-prefix", "s", "", "URL prefix for the status endpoints")
	root.PersistentFlags().StringVarP(&flags.env, "env", "e", "prod", "runtime environment: prod or debug")

	root.AddCommand(newStartCmd(flags))
	root.AddCommand(newSendPublicKeyCmd(flags))
	root.AddCommand(newAddToKnownHostsCmd(flags))
	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd(flags))
	root.AddCommand(newBundleCmd())
	root.AddCommand(newSecurityCmd())
	root.AddCommand(newDashboardCmd(flags))
	return root
}

func configureLogging(env string) {
	level := slog.LevelInfo
	if strings.EqualFold(env, "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func listenAddr(flags *rootFlags) string {
	host := flags.listen
	return fmt.Sprintf("%s:%d", host, flags.port)
}

func buildApp(flags *rootFlags) (*app.App, *config.Loader, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		slog.Warn("failed to load app config, using defaults", "error", err)
		cfg = appconfig.Default()
	}

	loader := config.NewLoader(flags.configDir)

	hostKeyPolicy := sshclient.HostKeyStrict
	if strings.EqualFold(cfg.Security.HostKeyPolicy, "insecure") {
		hostKeyPolicy = sshclient.HostKeyInsecure
	}

	a := app.New(loader, app.Config{
		HostKeyPolicy: hostKeyPolicy,
		Notifier:      notify.New(),
	})
	a.Supervisor().SetEventRecorder(events.NewStore())
	return a, loader, nil
}

// newStartCmd creates the "start" subcommand: the long-running supervisor
// process. It blocks until interrupted, then shuts every tunnel down
// cleanly before exiting 0.
func newStartCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tunnel supervisor and the HTTP status surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(flags.env)
			_ = history.Touch("start", flags.configDir)

			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}

			a, loader, err := buildApp(flags)
			if err != nil {
				return err
			}

			status := statusui.New(loader, a.Supervisor(), flags.secretPrefix, events.NewStore())
			addr := listenAddr(flags)
			srv := &http.Server{Addr: addr, Handler: status.Handler()}

			go func() {
				slog.Info("status surface listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("status surface stopped", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := a.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)

			return runErr
		},
	}
	return cmd
}

func newSendPublicKeyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send-public-key",
		Short: "Run ssh-copy-id against every configured host",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(flags.env)
			_ = history.Touch("send-public-key", flags.configDir)
			a, _, err := buildApp(flags)
			if err != nil {
				return err
			}
			return a.SendPublicKey()
		},
	}
}

func newAddToKnownHostsCmd(flags *rootFlags) *cobra.Command {
	var knownHostsPath string
	cmd := &cobra.Command{
		Use:   "add-to-known-hosts",
		Short: "Scan every configured host and append it to known_hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(flags.env)
			_ = history.Touch("add-to-known-hosts", flags.configDir)
			a, _, err := buildApp(flags)
			if err != nil {
				return err
			}
			path := knownHostsPath
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home directory: %w", err)
				}
				path = home + "/.ssh/known_hosts"
			}
			return a.AddToKnownHosts(path)
		},
	}
	cmd.Flags().StringVar(&knownHostsPath, "known-hosts", "", "known_hosts path override (default ~/.ssh/known_hosts)")
	return cmd
}

// newStatusCmd creates the "status" subcommand: it lists every configured
// forwarding's ident and ssh signature (plus its restart count in --json
// output) without starting the supervisor. It does not probe liveness.
func newStatusCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List every configured forwarding with its ssh signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(flags.configDir)
			hosts, err := loader.ProvideAllConfigurations()
			if err != nil {
				return err
			}

			identity := func(s string) string { return s }
			type row struct {
				Ident         string `json:"ident"`
				Signature     string `json:"signature"`
				RestartsCount int    `json:"restarts_count"`
			}
			var rows []row
			for _, h := range hosts {
				for _, fw := range h.Forward {
					rows = append(rows, row{
						Ident:         fw.Ident(),
						Signature:     fw.CreateSSHForwardingSignature(identity),
						RestartsCount: fw.CurrentRestartCount(),
					})
				}
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			fmt.Printf("%-60s %s\n", "IDENT", "SIGNATURE")
			for _, r := range rows {
				fmt.Printf("%-60s %s\n", r.Ident, r.Signature)
			}
			if len(rows) == 0 {
				fmt.Println("(no forwardings configured)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var hostIdent, ident, eventType, since string
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show tunnel lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime, err := parseSince(since)
			if err != nil {
				return err
			}
			store := events.NewStore()
			recs, err := store.Read(events.Query{
				HostIdent: strings.TrimSpace(hostIdent),
				Ident:     strings.TrimSpace(ident),
				EventType: strings.TrimSpace(eventType),
				Since:     sinceTime,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				fmt.Println("(no events)")
				return nil
			}
			fmt.Printf("%-25s %-18s %-40s %-8s %s\n", "TIMESTAMP", "EVENT", "IDENT", "PID", "MESSAGE")
			for _, evt := range recs {
				fmt.Printf("%-25s %-18s %-40s %-8d %s\n",
					evt.Timestamp.Format(time.RFC3339), evt.EventType, evt.Ident, evt.PID, evt.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hostIdent, "host", "", "filter by host identity")
	cmd.Flags().StringVar(&ident, "ident", "", "filter by forwarding identity")
	cmd.Flags().StringVar(&eventType, "event", "", "filter by event type")
	cmd.Flags().StringVar(&since, "since", "", "filter by age duration (e.g. 1h) or RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events to return")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func parseSince(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since value %q: use duration (e.g. 1h) or RFC3339", s)
	}
	return t, nil
}

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run operational diagnostics against the configured hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run(flags.configDir)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("No doctor findings.")
				return nil
			}
			fmt.Printf("%-8s %-24s %-26s %s\n", "SEV", "CHECK", "TARGET", "MESSAGE")
			for _, issue := range report.Issues {
				fmt.Printf("%-8s %-24s %-26s %s\n",
					strings.ToUpper(string(issue.Severity)), issue.Check, issue.Target, issue.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newSecurityCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Security checks and local posture tools",
	}
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Run a local security audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := security.RunLocalAudit()
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Findings) == 0 {
				fmt.Println("No security findings.")
				return nil
			}
			fmt.Printf("%-8s %-34s %-36s %s\n", "SEV", "TARGET", "MESSAGE", "RECOMMENDATION")
			for _, f := range report.Findings {
				fmt.Printf("%-8s %-34s %-36s %s\n", strings.ToUpper(string(f.Severity)), f.Target, f.Message, f.Recommendation)
			}
			return nil
		},
	}
	audit.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	cmd.AddCommand(audit)
	return cmd
}

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Manage named groups of config directories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := bundle.LoadAll()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("(no bundles)")
				return nil
			}
			fmt.Printf("%-24s %s\n", "NAME", "CONFIG DIRS")
			for _, b := range all {
				fmt.Printf("%-24s %s\n", b.Name, strings.Join(b.ConfigDirs, ", "))
			}
			return nil
		},
	}

	var createDirs []string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create or replace a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bundle.Create(args[0], createDirs); err != nil {
				return err
			}
			fmt.Printf("saved bundle %s with %d config dirs\n", args[0], len(createDirs))
			return nil
		},
	}
	create.Flags().StringArrayVar(&createDirs, "dir", nil, "config directory entry (repeatable)")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bundle.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted bundle %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

// newDashboardCmd creates the "dashboard" subcommand: an observability-only
// TUI over a freshly spawned supervisor, distinct from "start" in that it is
// meant for an operator to watch interactively rather than run as a daemon.
func newDashboardCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Launch the interactive tunnel status dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(flags.env)
			a, loader, err := buildApp(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() { _ = a.Run(ctx) }()

			redact := strings.EqualFold(flags.env, "prod")
			return ui.Run(loader, a.Supervisor(), redact)
		},
	}
}
