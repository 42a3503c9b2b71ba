package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Notifier posts short text notifications about appended overrides to a
// configured webhook. Best-effort: an unset URL disables it entirely.
type Notifier struct {
	url    string
	client *http.Client
}

func New(url string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{url: url, client: client}
}

// Send posts a text payload. Delivery failures are returned for logging
// only; callers never treat them as pipeline failures.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n == nil || n.url == "" {
		return nil
	}
	payload := map[string]string{"text": text}
	buf, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
