package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-sniper/internal/domain"
)

// DefaultHTTPTimeout bounds one feed request.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPFeed polls a REST leaderboard endpoint. It is the fallback when
// no streaming endpoint is configured.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

// HTTPFeedOption configures HTTPFeed.
type HTTPFeedOption func(*HTTPFeed)

// WithFeedHTTPClient sets a custom http.Client.
func WithFeedHTTPClient(client *http.Client) HTTPFeedOption {
	return func(f *HTTPFeed) {
		f.client = client
	}
}

// NewHTTPFeed creates a polling feed client.
func NewHTTPFeed(baseURL string, opts ...HTTPFeedOption) *HTTPFeed {
	f := &HTTPFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// candidateWire is the feed's leaderboard entry encoding.
type candidateWire struct {
	Mint          string   `json:"mint"`
	Symbol        string   `json:"symbol"`
	PriceSol      float64  `json:"price_sol"`
	Score         float64  `json:"score"`
	Liquidity     float64  `json:"liquidity"`
	Volume        float64  `json:"volume"`
	PriceChange5m float64  `json:"price_change_5m"`
	PriceChange1h float64  `json:"price_change_1h"`
	Flags         []string `json:"flags"`
}

func (w candidateWire) toDomain() domain.Candidate {
	return domain.Candidate{
		Mint:          w.Mint,
		Symbol:        w.Symbol,
		PriceSol:      w.PriceSol,
		Score:         w.Score,
		Liquidity:     w.Liquidity,
		Volume:        w.Volume,
		PriceChange5m: w.PriceChange5m,
		PriceChange1h: w.PriceChange1h,
		Flags:         w.Flags,
	}
}

// rugWire is the feed's rug-signal encoding.
type rugWire struct {
	Rugged   bool    `json:"rugged"`
	Severity float64 `json:"severity"`
	Badge    string  `json:"badge"`
}

// TopRanked fetches up to n candidates from GET /leaderboard.
func (f *HTTPFeed) TopRanked(ctx context.Context, n int) ([]domain.Candidate, error) {
	u, err := url.Parse(f.baseURL + "/leaderboard")
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var wire []candidateWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}

	out := make([]domain.Candidate, 0, len(wire))
	for _, w := range wire {
		if w.Mint == "" {
			continue
		}
		out = append(out, w.toDomain())
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// RugSignal fetches GET /rug/{mint}. A 404 means the feed has no
// opinion and yields a zero-value signal.
func (f *HTTPFeed) RugSignal(ctx context.Context, mint string) (*domain.RugSignal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/rug/"+url.PathEscape(mint), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rug request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &domain.RugSignal{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rug endpoint returned status %d", resp.StatusCode)
	}

	var wire rugWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode rug signal: %w", err)
	}

	return &domain.RugSignal{
		Rugged:   wire.Rugged,
		Severity: wire.Severity,
		Badge:    wire.Badge,
	}, nil
}

var _ Feed = (*HTTPFeed)(nil)
