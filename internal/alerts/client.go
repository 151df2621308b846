// Package alerts delivers operational alerts to the ops webhook. The
// receiving side (channel bridge, pager) routes on the severity label.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/sethvargo/go-retry"
)

const (
	alertTimeout   = 5 * time.Second
	alertRetries   = 3
	alertRetryBase = 500 * time.Millisecond

	sourceName = "salesops-backend"
)

// Client posts alerts to the configured webhook. A nil client is safe to
// call and drops alerts.
type Client struct {
	webhookURL string
	http       *http.Client
	log        *logger.Logger
}

type alertPayload struct {
	Severity string    `json:"severity"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Source   string    `json:"source"`
	SentAt   time.Time `json:"sentAt"`
}

// NewClient creates an alert client, or nil when no webhook is configured.
func NewClient(cfg config.AlertConfig, log *logger.Logger) *Client {
	if !cfg.IsAlertEnabled() {
		return nil
	}

	return &Client{
		webhookURL: cfg.GetAlertWebhookURL(),
		http:       &http.Client{Timeout: alertTimeout},
		log:        log,
	}
}

// SendAlert delivers one alert. Transport failures and server errors are
// retried with backoff; duplicate alerts on a retried timeout are accepted,
// a lost alert is not. Client errors fail immediately.
func (c *Client) SendAlert(ctx context.Context, severity, title, body string) error {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(alertPayload{
		Severity: severity,
		Title:    title,
		Body:     body,
		Source:   sourceName,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	backoff := retry.WithMaxRetries(alertRetries, retry.NewFibonacci(alertRetryBase))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.post(ctx, payload)
	}); err != nil {
		return fmt.Errorf("alert delivery failed: %w", err)
	}

	c.log.Info("alert delivered", "severity", severity, "title", title)
	return nil
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("alert webhook returned %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alert webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
