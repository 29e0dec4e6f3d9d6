package swap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("inputMint"); got != WSOLMint {
			t.Errorf("inputMint = %q", got)
		}
		w.Write([]byte(`{"inAmount":"0.1","outAmount":"12345.6","route":"raydium","priceImpactPct":0.8}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithMaxRetries(0))
	q, err := c.Quote(context.Background(), WSOLMint, "mint-a", 0.1, 150)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if q.OutAmount != 12345.6 || q.Route != "raydium" {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestHTTPClient_NoRouteOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithMaxRetries(0))
	_, err := c.Quote(context.Background(), WSOLMint, "mint-a", 0.1, 150)
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestHTTPClient_NoRouteInBand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"COULD_NOT_FIND_ANY_ROUTE"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithMaxRetries(0))
	_, err := c.Quote(context.Background(), WSOLMint, "mint-a", 0.1, 150)
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestHTTPClient_RetriesTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"inAmount":"0.1","outAmount":"100","route":"pumpfun","priceImpactPct":0}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithMaxRetries(2))
	q, err := c.Quote(context.Background(), WSOLMint, "mint-a", 0.1, 150)
	if err != nil {
		t.Fatalf("quote failed after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if q.OutAmount != 100 {
		t.Errorf("outAmount = %v", q.OutAmount)
	}
}

type fixedQuoter struct{ out float64 }

func (f fixedQuoter) Quote(_ context.Context, in, out string, amount float64, _ int) (*Quote, error) {
	return &Quote{InputMint: in, OutputMint: out, InAmount: amount, OutAmount: f.out, Route: "paper"}, nil
}

func TestPaperExecutor_FillsAtQuote(t *testing.T) {
	e := NewPaperExecutor(fixedQuoter{out: 500})

	r, err := e.Execute(context.Background(), Params{InputMint: WSOLMint, OutputMint: "mint-a", Amount: 0.1})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !r.Confirmed || r.OutAmount != 500 || r.Signature == "" {
		t.Errorf("unexpected result %+v", r)
	}
}
