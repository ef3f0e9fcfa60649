// Package hcp talks to the field-service API. Token acquisition is out of
// scope; the client only consumes an oauth2.TokenSource.
package hcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"qbsync/internal/config"
	"qbsync/internal/retry"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type Job struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	WorkStatus   string `json:"work_status"`
	Description  string `json:"description"`
	InvoiceTotal int64  `json:"invoice_total"` // cents
}

type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"` // materials, labor, ...
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
	Price    int64   `json:"price"` // cents
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
	policy  retry.Policy
	logger  zerolog.Logger
}

func New(cfg config.HCPConfig, syncCfg config.SyncConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: syncCfg.RequestTimeout},
		tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}),
		policy: retry.Policy{
			MaxAttempts:   syncCfg.MaxAttempts,
			InitialDelay:  syncCfg.RetryBaseDelay,
			BackoffFactor: 2,
		},
		logger: logger.With().Str("component", "hcp").Logger(),
	}
}

// GetJob fetches a single job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return retry.Do(ctx, &c.logger, c.policy, func(ctx context.Context) (*Job, error) {
		var job Job
		if err := c.get(ctx, fmt.Sprintf("/jobs/%s", jobID), &job); err != nil {
			return nil, err
		}
		return &job, nil
	})
}

// GetJobLineItems fetches the line items of a job.
func (c *Client) GetJobLineItems(ctx context.Context, jobID string) ([]LineItem, error) {
	return retry.Do(ctx, &c.logger, c.policy, func(ctx context.Context) ([]LineItem, error) {
		var wrapper struct {
			Data []LineItem `json:"data"`
		}
		if err := c.get(ctx, fmt.Sprintf("/jobs/%s/line_items", jobID), &wrapper); err != nil {
			return nil, err
		}
		return wrapper.Data, nil
	})
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("hcp request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
