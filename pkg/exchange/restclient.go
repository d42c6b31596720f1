// Package exchange holds the HTTP access layer shared by the exchange
// collectors.
package exchange

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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"p2pcollector/config"
)

// DefaultRetryStatuses are retried when no explicit list is configured.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, body)
}

// Signer adds authentication to an outgoing request. body is the exact
// payload that will be sent (nil for GET).
type Signer func(req *http.Request, body []byte) error

type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	RetryStatuses []int
	RateLimit     float64 // requests per second; 0 disables limiting
	Burst         int
	UserAgent     string
	Headers       map[string]string
	Signer        Signer
}

// OptionsFromConfig maps the http config section onto client options.
func OptionsFromConfig(cfg config.HTTPConfig) Options {
	return Options{
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
		RetryStatuses: cfg.RetryStatuses,
		RateLimit:     cfg.RateLimit,
		Burst:         cfg.Burst,
		UserAgent:     cfg.UserAgent,
	}
}

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryOn    map[int]bool
	opts       Options
	logger     *zap.Logger
}

func NewRESTClient(baseURL string, opts Options, logger *zap.Logger) *RESTClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = 10 * time.Second
	}
	if len(opts.RetryStatuses) == 0 {
		opts.RetryStatuses = DefaultRetryStatuses
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	retryOn := make(map[int]bool, len(opts.RetryStatuses))
	for _, s := range opts.RetryStatuses {
		retryOn[s] = true
	}

	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
		retryOn:    retryOn,
		opts:       opts,
		logger:     logger,
	}
}

// GetJSON issues a GET to path with query and decodes the body into out.
func (c *RESTClient) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSON marshals in as the request body and decodes the reply into out.
func (c *RESTClient) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.Do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// Do performs one logical request, retrying transport failures and the
// configured status codes with exponential backoff. A path starting with
// "http" is used as an absolute URL.
func (c *RESTClient) Do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	endpoint := path
	if !strings.HasPrefix(path, "http") {
		endpoint = c.baseURL + path
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BackoffBase
	b.MaxInterval = c.opts.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx)

	attempts := 0
	var body []byte
	op := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		body, err = c.attempt(ctx, method, endpoint, payload)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying request",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
		}
		return nil, fmt.Errorf("%s %s after %d attempt(s): %w", method, endpoint, attempts, err)
	}
	return body, nil
}

func (c *RESTClient) attempt(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}
	if c.opts.Signer != nil {
		if err := c.opts.Signer(req, payload); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("sign request: %w", err))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if c.retryOn[resp.StatusCode] {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}
	return body, nil
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == code
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
