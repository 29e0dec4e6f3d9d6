package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultAdvisorTimeout bounds one hook call so a slow hook cannot
// stall a tick.
const DefaultAdvisorTimeout = 3 * time.Second

// HTTPAdvisor calls an external decision service over HTTP.
type HTTPAdvisor struct {
	baseURL string
	client  *http.Client
}

// HTTPAdvisorOption configures HTTPAdvisor.
type HTTPAdvisorOption func(*HTTPAdvisor)

// WithAdvisorHTTPClient sets a custom http.Client.
func WithAdvisorHTTPClient(client *http.Client) HTTPAdvisorOption {
	return func(a *HTTPAdvisor) {
		a.client = client
	}
}

// NewHTTPAdvisor creates an HTTP advisor client.
func NewHTTPAdvisor(baseURL string, opts ...HTTPAdvisorOption) *HTTPAdvisor {
	a := &HTTPAdvisor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultAdvisorTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// adviceWire is the hook's response encoding.
type adviceWire struct {
	Proceed     bool    `json:"proceed"`
	SizingSol   float64 `json:"sizing_sol,omitempty"`
	SlippageBps int     `json:"slippage_bps,omitempty"`
	Note        string  `json:"note,omitempty"`
}

func (a *HTTPAdvisor) post(ctx context.Context, path string, payload interface{}) (*Advice, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal advisor query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var wire adviceWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	return &Advice{
		Proceed:     wire.Proceed,
		SizingSol:   wire.SizingSol,
		SlippageBps: wire.SlippageBps,
		Note:        wire.Note,
	}, nil
}

// DecideBuy asks the hook about a prospective entry.
func (a *HTTPAdvisor) DecideBuy(ctx context.Context, q BuyQuery) (*Advice, error) {
	return a.post(ctx, "/decide/buy", q)
}

// DecideSell asks the hook about a prospective exit.
func (a *HTTPAdvisor) DecideSell(ctx context.Context, q SellQuery) (*Advice, error) {
	return a.post(ctx, "/decide/sell", q)
}

var _ Advisor = (*HTTPAdvisor)(nil)
