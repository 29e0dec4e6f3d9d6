package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
	DefaultRPS        = 8
	DefaultBurst      = 4
)

// HTTPClient implements Quoter against an aggregator quote API.
type HTTPClient struct {
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// Option configures HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithRateLimit sets requests-per-second and burst for the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *HTTPClient) { h.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithMaxRetries sets the retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(h *HTTPClient) { h.maxRetries = n }
}

// NewHTTPClient creates an aggregator quote client.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// quoteResponse is the aggregator wire format.
type quoteResponse struct {
	InAmount       string  `json:"inAmount"`
	OutAmount      string  `json:"outAmount"`
	Route          string  `json:"route"`
	PriceImpactPct float64 `json:"priceImpactPct"`
	Error          string  `json:"error,omitempty"`
}

// Quote fetches the best route for the pair. A 404 or an explicit
// "no route" payload maps to ErrNoRoute; other failures are retried
// with capped backoff.
func (h *HTTPClient) Quote(ctx context.Context, inputMint, outputMint string, amount float64, slippageBps int) (*Quote, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("quote: non-positive amount %f", amount)
	}

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	endpoint := h.baseURL + "/quote?" + q.Encode()

	delay := h.retryDelay
	var lastErr error

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > h.maxDelay {
				delay = h.maxDelay
			}
		}

		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNoRoute
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		var qr quoteResponse
		if err := json.Unmarshal(body, &qr); err != nil {
			lastErr = fmt.Errorf("unmarshal quote: %w", err)
			continue
		}
		if qr.Error != "" {
			// Aggregators report missing routes in-band.
			return nil, ErrNoRoute
		}

		inAmt, err := strconv.ParseFloat(qr.InAmount, 64)
		if err != nil {
			return nil, fmt.Errorf("parse inAmount %q: %w", qr.InAmount, err)
		}
		outAmt, err := strconv.ParseFloat(qr.OutAmount, 64)
		if err != nil {
			return nil, fmt.Errorf("parse outAmount %q: %w", qr.OutAmount, err)
		}
		if outAmt <= 0 {
			return nil, ErrNoRoute
		}

		return &Quote{
			InputMint:      inputMint,
			OutputMint:     outputMint,
			InAmount:       inAmt,
			OutAmount:      outAmt,
			Route:          qr.Route,
			PriceImpactPct: qr.PriceImpactPct,
		}, nil
	}

	return nil, fmt.Errorf("quote retries exhausted: %w", lastErr)
}
