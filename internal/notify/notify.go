// Package notify implements the restart-notification webhook: a best-effort
// POST to each Forwarding's configured notify_url, grounded on
// original_source tunman/notify.py's Notify.notify/notify_tunnel_restarted.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riotkit-org/tunman-go/internal/model"
)

const defaultTimeout = 10 * time.Second

// Notifier posts restart events to each Forwarding's validate.notify_url.
// A failed or missing URL is never fatal: the original treats delivery as
// best-effort, logging a warning and moving on.
type Notifier struct {
	client *http.Client
}

// New constructs a Notifier with a bounded per-request timeout.
func New() *Notifier {
	return &Notifier{client: &http.Client{Timeout: defaultTimeout}}
}

// NotifyTunnelRestarted posts a warning message once a Forwarding's restart
// count becomes nonzero, i.e. never on the first start.
func (n *Notifier) NotifyTunnelRestarted(fw *model.Forwarding) {
	count := fw.CurrentRestartCount()
	if count == 0 {
		return
	}

	n.notify(fw, fmt.Sprintf(":warning: The tunnel %q was restarted, current restart count is %d", fw.String(), count))
}

func (n *Notifier) notify(fw *model.Forwarding, msg string) {
	url := fw.Validate.NotifyURL
	if url == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"text": msg})
	if err != nil {
		slog.Warn("failed to encode webhook payload", "error", err)
		return
	}

	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Warn("webhook error, cannot post", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("webhook error, unexpected status", "url", url, "status", resp.StatusCode)
	}
}
