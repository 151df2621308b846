// Package whatsapp is the client for the WhatsApp gateway that reaches
// leads and the sales team groups.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/phone"

	"golang.org/x/time/rate"
)

const (
	sendTimeout = 10 * time.Second

	// The gateway serializes outbound messages; pace requests instead of
	// tripping its queue limit.
	sendsPerSecond = 1
	sendBurst      = 3
)

// Client talks to the WhatsApp gateway. A nil client is safe to call and
// drops messages, but callers should prefer not wiring a disabled
// integration at all.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewClient creates a gateway client, or nil when the integration is
// disabled.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if !cfg.IsWhatsAppEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetWhatsAppAPIURL(), "/"),
		apiKey:  cfg.GetWhatsAppAPIKey(),
		http:    &http.Client{Timeout: sendTimeout},
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), sendBurst),
		log:     log,
	}
}

// SendMessage delivers a text message to a lead's phone. Sends are not
// retried here: a timed-out send may still have gone through, and leads
// must not get the same message twice.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, message string) error {
	if c == nil {
		return nil
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")
	return c.send(ctx, normalized, message)
}

// SendGroupMessage delivers a text message to a team group. Group IDs are
// gateway JIDs and ride the same endpoint's phone field.
func (c *Client) SendGroupMessage(ctx context.Context, groupID, message string) error {
	if c == nil {
		return nil
	}
	return c.send(ctx, groupID, message)
}

func (c *Client) send(ctx context.Context, destination, message string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(sendRequest{Phone: destination, Message: message})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("whatsapp message sent", "destination", destination)
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
