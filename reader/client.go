package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"loanwatch/config"
	"loanwatch/logger"

	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when a source answers 404 for the requested key.
	ErrNotFound = errors.New("not found")
	// ErrUnexpectedStatus is returned for any other non-2xx answer.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMalformedPayload is returned when a body cannot be decoded or lacks
	// a required field.
	ErrMalformedPayload = errors.New("malformed payload")
)

const maxBodyBytes = 1 << 20

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns a client with the configured timeout that stamps
// every request with the configured user agent.
func NewHTTPClient(cfg config.ReaderConfig) *http.Client {
	var base http.RoundTripper = http.DefaultTransport
	if cfg.UserAgent != "" {
		base = userAgentTransport{agent: cfg.UserAgent, base: base}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Transport: base, Timeout: timeout}
}

// NewLimiter builds a token bucket from the reader rate limit settings.
func NewLimiter(rl config.RateLimitConfig) *rate.Limiter {
	rps := rl.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := rl.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Client is a rate limited JSON client shared by the source readers.
type Client struct {
	source  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(source string, cfg config.ReaderConfig) *Client {
	return &Client{
		source:  source,
		http:    NewHTTPClient(cfg),
		limiter: NewLimiter(cfg.RateLimit),
		log:     logger.GetLogger(),
	}
}

// Source names the upstream this client talks to.
func (c *Client) Source() string { return c.source }

func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, url string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, url, body, out)
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	log := c.log.WithComponent(c.source).WithFields(logger.Fields{"method": method, "url": url})

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", c.source, err)
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s encode request: %w", c.source, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("%s build request: %w", c.source, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return fmt.Errorf("%s request: %w", c.source, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s read body: %w", c.source, err)
	}
	logger.IncrementSourceRead(c.source, len(data))
	log.WithFields(logger.Fields{
		"status":      res.StatusCode,
		"bytes":       len(data),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("response received")

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", c.source, ErrNotFound)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return fmt.Errorf("%s: %w %d", c.source, ErrUnexpectedStatus, res.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", c.source, ErrMalformedPayload, err)
	}
	return nil
}
