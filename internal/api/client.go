// Package api is the REST client for the HarmoniChat backend. Every fetch
// normalizes the endpoint's payload into the canonical shapes of
// internal/wall and internal/chat before it reaches a snapshot; no
// duck-typed backend field names leak past this package.
package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

var (
	errMissingBaseURL = errors.New("api: base url is required")
	noOpLogger        = zap.NewNop()
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Operation string
	Status    int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s returned status %d", e.Operation, e.Status)
}

// ClientConfig describes how to reach the backend.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
	Location  *time.Location
	Logger    *zap.Logger
}

// Client wraps the HTTP transport and the per-endpoint normalization rules.
type Client struct {
	http   *resty.Client
	loc    *time.Location
	logger *zap.Logger
}

// NewClient validates the configuration and returns a ready Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errMissingBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", "hcsync/1.0")
	if token := strings.TrimSpace(cfg.AuthToken); token != "" {
		httpClient.SetHeader("Authorization", "Bearer "+token)
	}
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug("backend request", zap.String("method", req.Method), zap.String("url", req.URL))
		return nil
	})
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("backend response",
			zap.Int("status", resp.StatusCode()),
			zap.Duration("elapsed", resp.Time()))
		return nil
	})

	return &Client{http: httpClient, loc: loc, logger: logger}, nil
}

// SetAuthToken installs or replaces the bearer token on the transport.
func (c *Client) SetAuthToken(token string) {
	c.http.SetHeader("Authorization", "Bearer "+strings.TrimSpace(token))
}

// fetchCount handles the counter endpoints, which return a bare number body.
func (c *Client) fetchCount(ctx context.Context, operation, path string) (int64, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return 0, fmt.Errorf("api: %s: %w", operation, err)
	}
	if resp.IsError() {
		return 0, statusError(operation, resp)
	}
	count, err := strconv.ParseInt(strings.TrimSpace(string(resp.Body())), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("api: %s: non-numeric count body: %w", operation, err)
	}
	return count, nil
}

func statusError(operation string, resp *resty.Response) error {
	return &StatusError{
		Operation: operation,
		Status:    resp.StatusCode(),
		Body:      strings.TrimSpace(string(resp.Body())),
	}
}
