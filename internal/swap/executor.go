package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"solana-sniper/internal/solana"
)

// Confirmation defaults.
const (
	DefaultConfirmWait  = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// ConfirmationSource looks up submitted transactions. A nil transaction
// with a nil error means "not landed yet".
type ConfirmationSource interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// HTTPExecutor submits swaps through the aggregator's execute endpoint
// and polls the chain until the signature lands or the bounded wait
// expires. An expired wait returns the partial result with
// ErrUnconfirmed; the balance reconciler owns the truth from there.
type HTTPExecutor struct {
	baseURL     string
	client      *http.Client
	chain       ConfirmationSource
	confirmWait time.Duration
	pollEvery   time.Duration
}

// ExecutorOption configures an HTTPExecutor.
type ExecutorOption func(*HTTPExecutor)

// WithExecutorHTTPClient overrides the HTTP client.
func WithExecutorHTTPClient(c *http.Client) ExecutorOption {
	return func(e *HTTPExecutor) { e.client = c }
}

// WithConfirmWait bounds the total confirmation wait.
func WithConfirmWait(d time.Duration) ExecutorOption {
	return func(e *HTTPExecutor) { e.confirmWait = d }
}

// WithPollInterval sets the confirmation poll spacing.
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *HTTPExecutor) { e.pollEvery = d }
}

// NewHTTPExecutor creates an executor against the aggregator at
// baseURL, confirming through chain.
func NewHTTPExecutor(baseURL string, chain ConfirmationSource, opts ...ExecutorOption) *HTTPExecutor {
	e := &HTTPExecutor{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		chain:       chain,
		confirmWait: DefaultConfirmWait,
		pollEvery:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type swapRequest struct {
	Owner       string `json:"owner"`
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	Amount      string `json:"amount"`
	SlippageBps int    `json:"slippageBps"`
}

type swapResponse struct {
	Signature string `json:"signature"`
	OutAmount string `json:"outAmount"`
	Error     string `json:"error,omitempty"`
}

// Execute submits the swap and waits for the transaction to land.
func (e *HTTPExecutor) Execute(ctx context.Context, p Params) (*Result, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("execute: non-positive amount %f", p.Amount)
	}

	body, err := json.Marshal(swapRequest{
		Owner:       p.Owner,
		InputMint:   p.InputMint,
		OutputMint:  p.OutputMint,
		Amount:      strconv.FormatFloat(p.Amount, 'f', -1, 64),
		SlippageBps: p.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit swap: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap status %d: %s", resp.StatusCode, string(raw))
	}

	var sr swapResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}
	if sr.Error != "" {
		return nil, ErrNoRoute
	}
	if sr.Signature == "" {
		return nil, fmt.Errorf("swap response missing signature")
	}
	outAmt := 0.0
	if sr.OutAmount != "" {
		if outAmt, err = strconv.ParseFloat(sr.OutAmount, 64); err != nil {
			return nil, fmt.Errorf("parse outAmount %q: %w", sr.OutAmount, err)
		}
	}

	return e.awaitConfirmation(ctx, sr.Signature, outAmt)
}

func (e *HTTPExecutor) awaitConfirmation(ctx context.Context, signature string, outAmt float64) (*Result, error) {
	if e.chain == nil {
		return &Result{Signature: signature, OutAmount: outAmt, Confirmed: false}, ErrUnconfirmed
	}

	deadline := time.NewTimer(e.confirmWait)
	defer deadline.Stop()
	poll := time.NewTicker(e.pollEvery)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return &Result{Signature: signature, Confirmed: false}, ctx.Err()
		case <-deadline.C:
			return &Result{Signature: signature, Confirmed: false}, ErrUnconfirmed
		case <-poll.C:
		}

		tx, err := e.chain.GetTransaction(ctx, signature)
		if err != nil || tx == nil {
			continue
		}
		if tx.Failed() {
			return nil, fmt.Errorf("swap %s failed on chain", signature)
		}
		return &Result{Signature: signature, OutAmount: outAmt, Confirmed: true}, nil
	}
}

var _ Executor = (*HTTPExecutor)(nil)
