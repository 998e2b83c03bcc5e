package payfast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/platterhq/platter/pkg/observability"
)

const (
	// DefaultBaseURL is the production endpoint of the billing API.
	DefaultBaseURL = "https://api.payfast.co.za"

	// apiVersion is sent in the version header and participates in signing.
	apiVersion = "v1"
)

// Config holds the merchant credentials and endpoint settings for the
// billing API. It is constructed once at process start and injected into
// the client; nothing here is read from ambient globals.
type Config struct {
	MerchantID string
	Passphrase string
	BaseURL    string
	Sandbox    bool
	Timeout    time.Duration
}

// Client is a signed HTTP client for the provider's subscription endpoints.
type Client struct {
	cfg  Config
	http *http.Client
	log  *observability.Logger
	now  func() time.Time
}

// NewClient creates a provider client from the given config.
func NewClient(cfg Config, log *observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

// StatusError is a non-envelope error response, identified only by its HTTP
// status code.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// Retryable reports whether a repeat of the same request could succeed.
// Server errors and throttling are transient; any other 4xx reflects the
// request itself and would fail again.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// UpdateParams is the optional field set for the update endpoint. Nil fields
// are omitted from the request body and from the signature.
type UpdateParams struct {
	Amount    *int64  // minor units
	Frequency *int    // provider billing frequency code
	Cycles    *int    // remaining cycles, 0 = indefinite
	RunDate   *string // next billing date, YYYY-MM-DD
}

func (p UpdateParams) body() map[string]string {
	body := make(map[string]string)
	if p.Amount != nil {
		body["amount"] = strconv.FormatInt(*p.Amount, 10)
	}
	if p.Frequency != nil {
		body["frequency"] = strconv.Itoa(*p.Frequency)
	}
	if p.Cycles != nil {
		body["cycles"] = strconv.Itoa(*p.Cycles)
	}
	if p.RunDate != nil {
		body["run_date"] = *p.RunDate
	}
	return body
}

// IsEmpty reports whether the params carry no effective change.
func (p UpdateParams) IsEmpty() bool {
	return p.Amount == nil && p.Frequency == nil && p.Cycles == nil && p.RunDate == nil
}

// Cancel cancels the subscription addressed by token.
func (c *Client) Cancel(ctx context.Context, token string) (*Result, error) {
	return c.do(ctx, http.MethodPut, token, "cancel", nil)
}

// Pause pauses the subscription for the given number of cycles.
func (c *Client) Pause(ctx context.Context, token string, cycles int) (*Result, error) {
	return c.do(ctx, http.MethodPut, token, "pause", map[string]string{
		"cycles": strconv.Itoa(cycles),
	})
}

// Unpause resumes a paused subscription.
func (c *Client) Unpause(ctx context.Context, token string) (*Result, error) {
	return c.do(ctx, http.MethodPut, token, "unpause", nil)
}

// Update modifies the subscription's amount, frequency, cycles or run date.
func (c *Client) Update(ctx context.Context, token string, params UpdateParams) (*Result, error) {
	return c.do(ctx, http.MethodPatch, token, "update", params.body())
}

// Fetch retrieves the subscription's current state from the provider.
func (c *Client) Fetch(ctx context.Context, token string) (*Result, error) {
	return c.do(ctx, http.MethodGet, token, "fetch", nil)
}

// do executes one signed request. Transport failures are returned as plain
// wrapped errors so the retry layer can classify them; provider rejections
// come back as *BusinessError regardless of the HTTP status code.
func (c *Client) do(ctx context.Context, method, token, action string, body map[string]string) (*Result, error) {
	ts := c.now().Format(time.RFC3339)

	fields := map[string]string{
		"merchant-id": c.cfg.MerchantID,
		"version":     apiVersion,
		"timestamp":   ts,
	}
	for k, v := range body {
		fields[k] = v
	}
	signature := Sign(fields, c.cfg.Passphrase)

	url := fmt.Sprintf("%s/subscriptions/%s/%s", c.cfg.BaseURL, token, action)
	if c.cfg.Sandbox {
		url += "?testing=true"
	}

	var reqBody io.Reader
	if len(body) > 0 {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", action, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", action, err)
	}
	req.Header.Set("merchant-id", c.cfg.MerchantID)
	req.Header.Set("version", apiVersion)
	req.Header.Set("timestamp", ts)
	req.Header.Set("signature", signature)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}

	// The provider sometimes answers 200 with an error-shaped body and
	// non-200 with a well-formed envelope, so the envelope decides.
	result, err := decodeEnvelope(raw)
	if err != nil {
		var bizErr *BusinessError
		if errors.As(err, &bizErr) {
			c.log.WithFields(map[string]interface{}{
				"action": action,
				"status": resp.StatusCode,
			}).Warnf("provider rejected %s: %s", action, bizErr.Message)
			return nil, bizErr
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%s %s: %w", method, action, &StatusError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("%s %s: %w", method, action, err)
	}
	return result, nil
}
