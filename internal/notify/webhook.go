// Package notify delivers order lifecycle events to merchant callback URLs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier posts JSON events to webhook URLs with a bounded timeout so a
// slow merchant endpoint cannot hold a request open.
type Notifier struct {
	client *http.Client
	log    *logrus.Logger
}

// New creates a Notifier. A zero timeout defaults to 5s.
func New(timeout time.Duration, log *logrus.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Send posts the payload to url and treats any non-2xx as failure.
func (n *Notifier) Send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "payment-gateway-webhook/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: callback endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// SendAsync fires Send on a goroutine and logs failures. Webhook delivery is
// best-effort; it never surfaces to the caller.
func (n *Notifier) SendAsync(url string, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		defer cancel()
		if err := n.Send(ctx, url, payload); err != nil {
			n.log.WithError(err).WithField("url", url).Warn("webhook delivery failed")
		}
	}()
}
