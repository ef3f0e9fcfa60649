// Package qbo talks to the QuickBooks Online API for the realm configured
// at startup. Like the HCP client it consumes an oauth2.TokenSource and
// leaves token lifecycle to the external OAuth collaborator.
package qbo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"qbsync/internal/config"
	"qbsync/internal/retry"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type Invoice struct {
	ID        string  `json:"Id"`
	DocNumber string  `json:"DocNumber"`
	TotalAmt  float64 `json:"TotalAmt"`
	TxnDate   string  `json:"TxnDate"`
}

type QueryResponse struct {
	QueryResponse struct {
		Invoice []Invoice `json:"Invoice"`
	} `json:"QueryResponse"`
}

type Client struct {
	baseURL string
	realmID string
	http    *http.Client
	tokens  oauth2.TokenSource
	policy  retry.Policy
	logger  zerolog.Logger
}

func New(cfg config.QBOConfig, syncCfg config.SyncConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		realmID: cfg.RealmID,
		http:    &http.Client{Timeout: syncCfg.RequestTimeout},
		tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}),
		policy: retry.Policy{
			MaxAttempts:   syncCfg.MaxAttempts,
			InitialDelay:  syncCfg.RetryBaseDelay,
			BackoffFactor: 2,
		},
		logger: logger.With().Str("component", "qbo").Logger(),
	}
}

// Query runs a QBO SQL-ish query against the configured realm.
func (c *Client) Query(ctx context.Context, query string) (*QueryResponse, error) {
	return retry.Do(ctx, &c.logger, c.policy, func(ctx context.Context) (*QueryResponse, error) {
		path := fmt.Sprintf("/v3/company/%s/query?query=%s", c.realmID, url.QueryEscape(query))
		var out QueryResponse
		if err := c.get(ctx, path, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// quoteLiteral escapes a value for a QBO query string literal. The query
// grammar doubles embedded single quotes.
func quoteLiteral(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// GetInvoice fetches one invoice by id.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	resp, err := c.Query(ctx, fmt.Sprintf("SELECT * FROM Invoice WHERE Id = '%s'", quoteLiteral(invoiceID)))
	if err != nil {
		return nil, err
	}
	if len(resp.QueryResponse.Invoice) == 0 {
		return nil, fmt.Errorf("invoice %s not found", invoiceID)
	}
	return &resp.QueryResponse.Invoice[0], nil
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

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
