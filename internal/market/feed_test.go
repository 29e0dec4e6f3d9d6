package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHTTPFeed_TopRanked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/leaderboard" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit=2, got %s", r.URL.Query().Get("limit"))
		}

		entries := []candidateWire{
			{Mint: "mintA", Symbol: "AAA", PriceSol: 0.001, Score: 92, Liquidity: 50, Volume: 120, PriceChange5m: 8},
			{Mint: "mintB", Symbol: "BBB", PriceSol: 0.002, Score: 81, Liquidity: 30, Volume: 60, Flags: []string{"TRENDING"}},
			{Mint: ""}, // malformed entry is dropped
		}
		json.NewEncoder(w).Encode(entries)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL)
	ctx := context.Background()

	candidates, err := feed.TopRanked(ctx, 2)
	if err != nil {
		t.Fatalf("TopRanked: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	if candidates[0].Mint != "mintA" {
		t.Errorf("expected mintA first, got %s", candidates[0].Mint)
	}
	if candidates[0].Score != 92 {
		t.Errorf("expected score 92, got %f", candidates[0].Score)
	}
	if candidates[1].Flags[0] != "TRENDING" {
		t.Errorf("expected TRENDING flag, got %v", candidates[1].Flags)
	}
}

func TestHTTPFeed_TopRanked_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL)
	if _, err := feed.TopRanked(context.Background(), 5); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestHTTPFeed_RugSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rug/badmint":
			json.NewEncoder(w).Encode(rugWire{Rugged: true, Severity: 0.9, Badge: "LP_PULLED"})
		case "/rug/cleanmint":
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL)
	ctx := context.Background()

	sig, err := feed.RugSignal(ctx, "badmint")
	if err != nil {
		t.Fatalf("RugSignal: %v", err)
	}
	if !sig.Rugged || sig.Severity != 0.9 || sig.Badge != "LP_PULLED" {
		t.Errorf("unexpected signal: %+v", sig)
	}

	// Unknown mint yields zero-value signal, not an error
	sig, err = feed.RugSignal(ctx, "cleanmint")
	if err != nil {
		t.Fatalf("RugSignal clean: %v", err)
	}
	if sig.Rugged {
		t.Error("expected clean mint to be un-rugged")
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func streamServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

func TestStreamFeed_TopRanked(t *testing.T) {
	server, wsURL := streamServer(t, func(conn *websocket.Conn) {
		// Read subscribe request
		var sub streamSubscribe
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Op != "subscribe" {
			t.Errorf("expected subscribe op, got %s", sub.Op)
		}

		msg := streamMessage{
			Type: "leaderboard",
			Candidates: []candidateWire{
				{Mint: "mintA", Score: 90, PriceSol: 0.001},
				{Mint: "mintB", Score: 70, PriceSol: 0.002},
				{Mint: "mintC", Score: 50, PriceSol: 0.003},
			},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		// Keep connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ctx := context.Background()
	feed, err := NewStreamFeed(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	defer feed.Close()

	// Wait for the snapshot to arrive
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := feed.TopRanked(ctx, 2)
		if err == nil {
			if len(got) != 2 {
				t.Fatalf("expected 2 candidates, got %d", len(got))
			}
			if got[0].Mint != "mintA" {
				t.Errorf("expected mintA first, got %s", got[0].Mint)
			}
			break
		}
		if !errors.Is(err, ErrStaleFeed) {
			t.Fatalf("TopRanked: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for snapshot")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamFeed_RugSignal(t *testing.T) {
	server, wsURL := streamServer(t, func(conn *websocket.Conn) {
		var sub streamSubscribe
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}

		msg := streamMessage{
			Type: "rug",
			Mint: "badmint",
			Rug:  &rugWire{Rugged: true, Severity: 0.8, Badge: "RUG"},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ctx := context.Background()
	feed, err := NewStreamFeed(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	defer feed.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sig, err := feed.RugSignal(ctx, "badmint")
		if err != nil {
			t.Fatalf("RugSignal: %v", err)
		}
		if sig.Rugged {
			if sig.Severity != 0.8 || sig.Badge != "RUG" {
				t.Errorf("unexpected signal: %+v", sig)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for rug signal")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Untracked mint stays clean
	sig, err := feed.RugSignal(ctx, "othermint")
	if err != nil {
		t.Fatalf("RugSignal other: %v", err)
	}
	if sig.Rugged {
		t.Error("expected untracked mint to be clean")
	}
}

func TestStreamFeed_StaleSnapshot(t *testing.T) {
	server, wsURL := streamServer(t, func(conn *websocket.Conn) {
		var sub streamSubscribe
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ctx := context.Background()
	feed, err := NewStreamFeed(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	defer feed.Close()

	// No snapshot has ever arrived
	if _, err := feed.TopRanked(ctx, 5); !errors.Is(err, ErrStaleFeed) {
		t.Fatalf("expected ErrStaleFeed, got %v", err)
	}
}

func TestStreamFeed_Close(t *testing.T) {
	server, wsURL := streamServer(t, func(conn *websocket.Conn) {
		var sub streamSubscribe
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ctx := context.Background()
	feed, err := NewStreamFeed(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}

	if err := feed.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// Double close should be safe
	if err := feed.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	if _, err := feed.TopRanked(ctx, 1); !errors.Is(err, ErrFeedClosed) {
		t.Errorf("expected ErrFeedClosed, got %v", err)
	}
}
