// Package httpproxy is a backend that forwards records to a remote
// graphsync HTTP API (POST /object, GET /object/{id}).
package httpproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"graphsync/pkg/domain"
)

var _ domain.Backend = (*Client)(nil)

// Config parameterises the proxy client.
type Config struct {
	BaseURL  string
	RetryMax int           // default 3
	Timeout  time.Duration // per attempt, default 10s
	// HTTPClient replaces the pooled cleanhttp client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to a remote API with retries on transient failures.
type Client struct {
	base   *url.URL
	http   *retryablehttp.Client
	logger hclog.Logger
}

// New validates cfg.BaseURL and builds a retrying client.
func New(cfg Config, logger hclog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http backend url required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse http backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("http backend url must be http or https, got %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("httpproxy")

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cfg.HTTPClient
	if rc.HTTPClient == nil {
		rc.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = 3
	if cfg.RetryMax > 0 {
		rc.RetryMax = cfg.RetryMax
	}
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = logger
	return &Client{base: base, http: rc, logger: logger}, nil
}

// Configure checks the remote is reachable. Namespaces belong to the remote
// deployment, so namespace is only logged.
func (c *Client) Configure(ctx context.Context, namespace string) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote health check: %s", resp.Status)
	}
	c.logger.Debug("remote reachable", "url", c.base.String(), "namespace", namespace)
	return nil
}

// Save posts the record to /object.
func (c *Client) Save(ctx context.Context, record domain.Record) error {
	if record.ID == "" {
		return domain.InvalidIDError{Reason: "id cannot be empty"}
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", record.ID, err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/object", body)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("save %s: remote returned %s", record.ID, resp.Status)
	}
	return nil
}

// Reload fetches /object/{id}; a 404 becomes domain.NotFoundError.
func (c *Client) Reload(ctx context.Context, id string) (domain.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, "/object/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.Record{}, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Record{}, domain.NotFoundError{ID: id}
	case resp.StatusCode/100 != 2:
		return domain.Record{}, fmt.Errorf("reload %s: remote returned %s", id, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Record{}, fmt.Errorf("read %s: %w", id, err)
	}
	rec, err := domain.DecodeRecord(raw)
	if err != nil {
		return domain.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var payload any
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base.String()+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
