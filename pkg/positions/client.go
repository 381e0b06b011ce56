package positions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps a provider response body.
const maxResponseBytes = 32 << 20

// Options configures an HTTP-backed provider.
type Options struct {
	// BaseURL overrides the provider's default API address
	BaseURL string

	// APIKey is sent as a bearer token when set
	APIKey string

	// Timeout bounds each HTTP request (default: 10 seconds)
	Timeout time.Duration

	// RequestsPerMinute paces requests; 0 disables pacing
	RequestsPerMinute int

	Retry RetryConfig

	Logger zerolog.Logger

	// OnDrop is notified for every record dropped during normalization
	OnDrop DropFunc

	// HTTPClient replaces the default client, mostly for tests
	HTTPClient *http.Client
}

// httpClient holds the transport concerns shared by the HTTP providers:
// request pacing, retries and status handling.
type httpClient struct {
	provider string
	http     *http.Client
	limiter  *rate.Limiter
	retry    RetryConfig
	logger   zerolog.Logger
	onDrop   DropFunc
}

func newHTTPClient(provider string, opts Options) *httpClient {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &httpClient{
		provider: provider,
		http:     hc,
		limiter:  limiter,
		retry:    opts.Retry,
		logger:   opts.Logger,
		onDrop:   opts.OnDrop,
	}
}

// get performs a paced GET with retries and returns the response body.
// Only 429, 5xx and transport errors are retried.
func (c *httpClient) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return RetryWithBackoffResult(ctx, c.retry, c.logger, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch positions: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, newRateLimitError(c.provider, resp.Header)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			serr := &StatusError{
				Provider:   c.provider,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
			if serr.Temporary() {
				return nil, serr
			}
			return nil, Permanent(serr)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return body, nil
	})
}

// drop reports a record discarded during normalization.
func (c *httpClient) drop(err error) {
	c.logger.Debug().Err(err).Msg("Dropping malformed record")
	if c.onDrop != nil {
		c.onDrop(c.provider, err)
	}
}

// unavailable wraps a fetch failure so callers can test for it.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, provider, err)
}
