package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/case-intake/internal/infrastructure/resilience"
)

const errorBodyLimit = 2048

// Client posts and fetches JSON against one downstream service. Calls go
// through the resilience executor when one is configured.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	headers    map[string]string
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
	// Headers are sent with every request, e.g. an API token.
	Headers map[string]string
}

func New(service, baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	headers := make(map[string]string, len(options.Headers))
	for k, v := range options.Headers {
		if strings.TrimSpace(v) != "" {
			headers[k] = v
		}
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
		headers:    headers,
	}
}

func (c *Client) Service() string {
	return c.service
}

func (c *Client) Get(ctx context.Context, path string, out any, operation string) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, operation)
}

func (c *Client) Post(ctx context.Context, path string, payload any, out any, operation string) error {
	return c.Do(ctx, http.MethodPost, path, payload, out, operation)
}

// Do sends one request. Retryable failures come back wrapped as
// domain.ErrTemporary.
func (c *Client) Do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s %s request: %w", c.service, operation, err)
		}
		body = raw
	}

	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, body, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, c.service+"."+operation, call, resilience.ClassifyHTTP)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary(c.service+" "+operation, err, resilience.ClassifyHTTP)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any, operation string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", c.service, operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", c.service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &resilience.HTTPStatusError{
			Service:    c.service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", c.service, operation, err)
	}
	return nil
}
