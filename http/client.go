// Package http implements the settlement service REST client with uniform
// error classification and exponential-backoff retry.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	masumi "github.com/masumi-network/masumi-go"
)

// Config configures the settlement service client.
type Config struct {
	// BaseURL is the base URL of the settlement service. Required.
	BaseURL string

	// Token is the authentication token sent on every request. Required.
	Token string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout is the per-call deadline (optional, defaults to 30s). Each
	// attempt gets the full deadline; exceeding it classifies the attempt
	// as a timeout and makes it eligible for retry.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts per call (optional,
	// defaults to 3).
	MaxAttempts int

	// InitialDelay is the backoff base (optional, defaults to 1s). Attempt
	// n waits InitialDelay * 2^(n-1); the first attempt never waits.
	InitialDelay time.Duration
}

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
)

// Client speaks to the settlement service. It is stateless between calls
// except for the default headers, which may be updated concurrently (e.g.
// rotating the auth token) without reconstructing the client.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxAttempts  int
	initialDelay time.Duration
	timeout      time.Duration

	mu      sync.RWMutex
	headers map[string]string
}

var _ masumi.SettlementClient = (*Client)(nil)

// New creates a settlement service client.
func New(config *Config) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, &masumi.ConfigurationError{Field: "BaseURL", Message: "settlement service URL is required"}
	}
	if config.Token == "" {
		return nil, &masumi.ConfigurationError{Field: "Token", Message: "settlement service token is required"}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	initialDelay := config.InitialDelay
	if initialDelay == 0 {
		initialDelay = defaultInitialDelay
	}

	return &Client{
		baseURL:      config.BaseURL,
		httpClient:   httpClient,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		timeout:      timeout,
		headers:      map[string]string{"token": config.Token},
	}, nil
}

// SetToken replaces the authentication token used on subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers["token"] = token
}

// CreatePayment registers a new escrow payment request.
func (c *Client) CreatePayment(ctx context.Context, req masumi.CreatePaymentRequest) (*masumi.PaymentRecord, error) {
	var record masumi.PaymentRecord
	if err := c.send(ctx, http.MethodPost, "/payment", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ResolvePayment fetches the current remote state of one payment.
func (c *Client) ResolvePayment(ctx context.Context, req masumi.ResolvePaymentRequest) (*masumi.PaymentRecord, error) {
	var record masumi.PaymentRecord
	if err := c.send(ctx, http.MethodPost, "/payment/resolve-blockchain-identifier", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SubmitResult submits the decision hash for one payment.
func (c *Client) SubmitResult(ctx context.Context, req masumi.SubmitResultRequest) (*masumi.PaymentRecord, error) {
	var record masumi.PaymentRecord
	if err := c.send(ctx, http.MethodPost, "/payment/submit-result", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// AuthorizeRefund authorizes a purchaser-requested refund.
func (c *Client) AuthorizeRefund(ctx context.Context, req masumi.AuthorizeRefundRequest) (*masumi.PaymentRecord, error) {
	var record masumi.PaymentRecord
	if err := c.send(ctx, http.MethodPost, "/payment/authorize-refund", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPayments returns one page of payments for a network.
func (c *Client) ListPayments(ctx context.Context, params masumi.ListPaymentsParams) (*masumi.PaymentPage, error) {
	query := url.Values{}
	query.Set("network", string(params.Network))
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.CursorID != "" {
		query.Set("cursorId", params.CursorID)
	}

	var page masumi.PaymentPage
	if err := c.send(ctx, http.MethodGet, "/payment?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// send issues one call with retries. 4xx responses return immediately; 5xx,
// transport failures, and per-attempt timeouts are retried with exponential
// backoff until maxAttempts is reached.
func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
	}

	var lastErr *masumi.RequestError
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.initialDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		reqErr := c.attempt(ctx, method, path, encoded, out)
		if reqErr == nil {
			return nil
		}
		if !reqErr.Retryable() {
			return reqErr
		}
		lastErr = reqErr

		// The parent context ending is not retryable regardless of the
		// attempt's classification.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) *masumi.RequestError {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return &masumi.RequestError{Kind: masumi.RequestErrorTransport, Path: path, Message: "failed to create request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &masumi.RequestError{Kind: masumi.RequestErrorTimeout, Path: path, Message: "deadline exceeded", Err: err}
		}
		return &masumi.RequestError{Kind: masumi.RequestErrorTransport, Path: path, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &masumi.RequestError{Kind: masumi.RequestErrorTimeout, Path: path, Message: "deadline exceeded reading response", Err: err}
		}
		return &masumi.RequestError{Kind: masumi.RequestErrorTransport, Path: path, Message: "failed to read response body", Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &masumi.RequestError{Kind: masumi.RequestErrorServer, Status: resp.StatusCode, Path: path, Message: string(responseBody)}
	case resp.StatusCode >= 400:
		return &masumi.RequestError{Kind: masumi.RequestErrorClient, Status: resp.StatusCode, Path: path, Message: string(responseBody)}
	}

	var envelope masumi.Envelope
	if err := json.Unmarshal(responseBody, &envelope); err != nil {
		return &masumi.RequestError{Kind: masumi.RequestErrorClient, Status: resp.StatusCode, Path: path, Message: "failed to decode response envelope", Err: err}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &masumi.RequestError{Kind: masumi.RequestErrorClient, Status: resp.StatusCode, Path: path, Message: "failed to decode response data", Err: err}
		}
	}
	return nil
}
