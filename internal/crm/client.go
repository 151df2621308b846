// Package crm mirrors leads into the external CRM over its JSON API:
// contacts, deals, deal notes and pipeline stage moves.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 10 * time.Second
	apiRetries     = 3
	apiRetryBase   = 300 * time.Millisecond

	// The CRM plan meters requests; stay under the shared quota.
	requestsPerSecond = 5
	requestBurst      = 10
)

// Contact is a CRM contact record.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Deal is a CRM pipeline deal.
type Deal struct {
	ID        string  `json:"id"`
	ContactID string  `json:"contact_id"`
	Title     string  `json:"title"`
	Value     float64 `json:"value"`
	Stage     string  `json:"stage,omitempty"`
}

// Client talks to the CRM API. Lookups and stage moves are retried;
// creates are not, because a timed-out create may have landed and duplicate
// records are worse than a failed sync.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a CRM client, or nil when the integration is disabled.
func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetCRMAPIURL(), "/"),
		apiKey:  cfg.GetCRMAPIKey(),
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		log:     log,
	}
}

// FindContactByPhone returns the contact holding the canonical phone, or
// nil when the CRM has none.
func (c *Client) FindContactByPhone(ctx context.Context, phone string) (*Contact, error) {
	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	query := url.Values{"phone": {phone}}
	if err := c.doRetry(ctx, http.MethodGet, "/contacts?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Contacts) == 0 {
		return nil, nil
	}
	return &out.Contacts[0], nil
}

// CreateContact registers a new contact and returns it with its CRM id.
func (c *Client) CreateContact(ctx context.Context, contact Contact) (Contact, error) {
	var out struct {
		Contact Contact `json:"contact"`
	}
	if err := c.do(ctx, http.MethodPost, "/contacts", contact, &out); err != nil {
		return Contact{}, err
	}
	return out.Contact, nil
}

// CreateDeal opens a new pipeline deal and returns it with its CRM id.
func (c *Client) CreateDeal(ctx context.Context, deal Deal) (Deal, error) {
	var out struct {
		Deal Deal `json:"deal"`
	}
	if err := c.do(ctx, http.MethodPost, "/deals", deal, &out); err != nil {
		return Deal{}, err
	}
	return out.Deal, nil
}

// AddDealNote attaches a text note to a deal.
func (c *Client) AddDealNote(ctx context.Context, dealID, content string) error {
	payload := struct {
		Content string `json:"content"`
	}{Content: content}
	return c.do(ctx, http.MethodPost, "/deals/"+dealID+"/notes", payload, nil)
}

// UpdateDealStage moves a deal to a pipeline stage. The move is idempotent
// on the CRM side, so transient failures are retried.
func (c *Client) UpdateDealStage(ctx context.Context, dealID, stage string) error {
	payload := struct {
		Stage string `json:"stage"`
	}{Stage: stage}
	return c.doRetry(ctx, http.MethodPut, "/deals/"+dealID+"/stage", payload, nil)
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("crm api returned %d: %s", e.status, e.body)
}

func (e *apiError) transient() bool {
	return e.status >= http.StatusInternalServerError || e.status == http.StatusTooManyRequests
}

// doRetry wraps do with backoff for idempotent requests. Client errors
// fail immediately; everything else, including transport errors, retries.
func (c *Client) doRetry(ctx context.Context, method, path string, in, out any) error {
	backoff := retry.WithMaxRetries(apiRetries, retry.NewFibonacci(apiRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, method, path, in, out)
		if err == nil {
			return nil
		}
		var apiErr *apiError
		if errors.As(err, &apiErr) && !apiErr.transient() {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal crm payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode crm response: %w", err)
	}
	return nil
}
