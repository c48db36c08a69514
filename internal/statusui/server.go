// Package statusui implements the HTTP status surface: an aggregate health
// page, JSON health/status endpoints, a recent-events feed, and packaged
// static assets, over every configured Forwarding. Grounded on
// original_source tunman/views.py's ServeStatusHandler/ServeJsonStatus.
package statusui

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/riotkit-org/tunman-go/internal/events"
	"github.com/riotkit-org/tunman-go/internal/model"
	"github.com/riotkit-org/tunman-go/internal/supervisor"
)

// HostProvider supplies every configured Host; satisfied by *config.Loader.
type HostProvider interface {
	ProvideAllConfigurations() ([]*model.Host, error)
}

// EventReader supplies recent tunnel lifecycle events for the "/events"
// route; satisfied by *events.Store.
type EventReader interface {
	Read(events.Query) ([]events.Event, error)
}

// Server renders the aggregate tunnel status page and its JSON twin.
type Server struct {
	hosts   HostProvider
	supv    *supervisor.Supervisor
	prefix  string
	journal EventReader
}

// New constructs a Server. prefix, if non-empty, is prepended to every
// route (e.g. "/secret" -> "/secret/", "/secret/health", ...), matching the
// --secret-prefix flag for obscuring the status endpoints behind an
// unguessable path. journal backs the "/events" route; a nil journal makes
// that route report an empty list rather than panic.
func New(hosts HostProvider, supv *supervisor.Supervisor, prefix string, journal EventReader) *Server {
	return &Server{hosts: hosts, supv: supv, prefix: strings.TrimSuffix(prefix, "/"), journal: journal}
}

// Handler returns the mux serving:
//
//	"<prefix>/"             — HTML status page
//	"<prefix>/health"       — JSON aggregate health (authoritative machine shape)
//	"<prefix>/status.json"  — alias of "/health" kept for older clients
//	"<prefix>/events"       — JSON array of recent tunnel lifecycle events
//	"<prefix>/static/*"     — packaged static assets
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.prefix+"/", s.serveHTML)
	mux.HandleFunc(s.prefix+"/health", s.serveJSON)
	mux.HandleFunc(s.prefix+"/status.json", s.serveJSON)
	mux.HandleFunc(s.prefix+"/events", s.serveEvents)
	mux.Handle(s.prefix+"/static/", http.StripPrefix(s.prefix+"/static/", http.FileServer(http.FS(staticFS))))
	return mux
}

type forwardingView struct {
	IsAlive       bool
	CurrentPID    int
	Ident         string
	Signature     string
	RestartsCount int
}

type statusPageData struct {
	Forwardings []forwardingView
}

func identity(s string) string { return s }

func (s *Server) allForwardings() ([]*model.Forwarding, error) {
	hosts, err := s.hosts.ProvideAllConfigurations()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	var all []*model.Forwarding
	for _, h := range hosts {
		all = append(all, h.Forward...)
	}
	return all, nil
}

func (s *Server) collectData() (statusPageData, error) {
	fws, err := s.allForwardings()
	if err != nil {
		return statusPageData{}, err
	}

	stats := s.supv.GetStats(fws)

	data := statusPageData{Forwardings: make([]forwardingView, 0, len(fws))}
	for _, fw := range fws {
		fv := forwardingView{
			Ident:     fw.Ident(),
			Signature: fw.CreateSSHForwardingSignature(identity),
		}
		if st, ok := stats.Status[fw.Ident()]; ok {
			fv.IsAlive = st.IsAlive
			fv.CurrentPID = st.PID
			fv.RestartsCount = st.RestartsCount
		}
		data.Forwardings = append(data.Forwardings, fv)
	}
	return data, nil
}

var statusTemplate = template.Must(template.New("status").Parse(`<!doctype html>
<html><head><title>tunman status</title><link rel="stylesheet" href="static/style.css"></head>
<body>
<h1>Tunnel status</h1>
<table border="1">
<tr><th>Ident</th><th>Alive</th><th>PID</th><th>Restarts</th></tr>
{{range .Forwardings}}<tr>
  <td>{{.Ident}}</td>
  <td>{{.IsAlive}}</td>
  <td>{{.CurrentPID}}</td>
  <td>{{.RestartsCount}}</td>
</tr>
{{end}}
</table>
</body></html>
`))

func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request) {
	data, err := s.collectData()
	if err != nil {
		slog.Error("failed to collect tunnel status", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := statusTemplate.Execute(w, data); err != nil {
		slog.Error("failed to render status page", "error", err)
	}
}

func (s *Server) serveJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.collectData()
	if err != nil {
		slog.Error("failed to collect tunnel status", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tunnels := make(map[string]map[string]any, len(data.Forwardings))
	globalOK := true
	for _, fv := range data.Forwardings {
		if !fv.IsAlive {
			globalOK = false
		}
		tunnels[fv.Ident] = map[string]any{
			"ok":    fv.IsAlive,
			"ident": fmt.Sprintf("%s=%v", fv.Ident, fv.IsAlive),
		}
	}

	payload := map[string]any{
		"status": map[string]any{
			"tunnels": tunnels,
			"ident":   fmt.Sprintf("global_status=%v", globalOK),
			"ok":      globalOK,
		},
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(payload); err != nil {
		slog.Error("failed to encode status json", "error", err)
	}
}

// serveEvents reports recent tunnel lifecycle events as a JSON array, in the
// append (oldest-first) order internal/events.Store.Read returns them.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	var list []events.Event
	if s.journal != nil {
		var err error
		list, err = s.journal.Read(events.Query{})
		if err != nil {
			slog.Error("failed to read event journal", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if list == nil {
		list = []events.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(list); err != nil {
		slog.Error("failed to encode events json", "error", err)
	}
}
