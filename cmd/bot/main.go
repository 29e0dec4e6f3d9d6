// Package main runs the trading bot: market feed in, tick engine over
// open positions, swaps out through the aggregator, state in
// postgres/clickhouse (or in-memory for dry runs).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"solana-sniper/internal/advisor"
	"solana-sniper/internal/buyflow"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/edge"
	"solana-sniper/internal/engine"
	"solana-sniper/internal/entrysim"
	"solana-sniper/internal/guards"
	"solana-sniper/internal/market"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/positions"
	"solana-sniper/internal/risk"
	"solana-sniper/internal/signals"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/swap"
)

// botStores holds the three persistence backends.
type botStores struct {
	states storage.StateStore
	trades storage.TradeStore
	traces storage.TraceStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	feedEndpoint := flag.String("feed-endpoint", os.Getenv("FEED_ENDPOINT"), "Leaderboard feed endpoint (ws:// for streaming, http:// for polling)")
	swapEndpoint := flag.String("swap-endpoint", os.Getenv("SWAP_ENDPOINT"), "Swap aggregator base URL")
	advisorEndpoint := flag.String("advisor-endpoint", os.Getenv("ADVISOR_ENDPOINT"), "Optional external advisor base URL")
	wallet := flag.String("wallet", os.Getenv("WALLET_PUBKEY"), "Wallet public key")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	paper := flag.Bool("paper", false, "Paper execution: fill at quote price, no chain submission")
	tickInterval := flag.Duration("tick-interval", engine.DefaultInterval, "Base tick interval")
	httpAddr := flag.String("http-addr", ":8080", "HTTP address for /health, /status, /metrics")

	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *feedEndpoint == "" {
		logger.Fatal("--feed-endpoint is required")
	}
	if *swapEndpoint == "" {
		logger.Fatal("--swap-endpoint is required")
	}
	if !solana.ValidPubkey(*wallet) {
		logger.Fatal("--wallet must be a valid public key")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)

	feed, feedClose, err := createFeed(ctx, *feedEndpoint)
	if err != nil {
		logger.Fatalf("Failed to connect feed: %v", err)
	}
	defer feedClose()

	quoter := swap.NewHTTPClient(*swapEndpoint)
	var executor swap.Executor
	if *paper {
		logger.Println("Paper mode: fills at quote price, no chain submission")
		executor = swap.NewPaperExecutor(quoter)
	} else {
		executor = swap.NewHTTPExecutor(*swapEndpoint, rpc)
	}

	var adv advisor.Advisor
	if *advisorEndpoint != "" {
		adv = advisor.NewHTTPAdvisor(*advisorEndpoint)
		logger.Printf("Advisor enabled: %s", *advisorEndpoint)
	}

	// Restore persisted state; a fresh wallet starts from defaults.
	params := domain.DefaultRiskParams()
	blob, err := stores.states.Load(ctx, *wallet)
	switch {
	case err == nil:
		params = blob.Risk.Normalize()
		logger.Printf("Restored state: %d open positions, updated %s", len(blob.Positions), blob.UpdatedAt.Format(time.RFC3339))
	case errors.Is(err, storage.ErrNotFound):
		logger.Println("No persisted state, starting fresh")
	default:
		logger.Fatalf("Failed to load state: %v", err)
	}

	credits := guards.NewCreditStore()
	locks := guards.NewLockStore()
	urgent := guards.NewUrgentStore()
	seeds := guards.NewSeedStore()
	blacklist := guards.NewBlacklistStore(params.BlacklistStage1, params.BlacklistStage2, params.BlacklistStage3, time.Minute)
	sigCache := signals.NewCache(0)

	manager := positions.NewManager(*wallet, rpc, credits, params)
	if blob != nil {
		manager.Restore(blob)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, "")

	buyer := buyflow.NewEngine(buyflow.Config{
		Params:    params,
		Signals:   sigCache,
		Blacklist: blacklist,
		Cooldowns: guards.NewBanStore(),
		Locks:     locks,
		Seeds:     seeds,
		Feed:      feed,
		Quoter:    quoter,
		Executor:  executor,
		Estimator: edge.NewEstimator(quoter, rpc),
		Sizer:     edge.NewSizer(rpc),
		PumpGate:  risk.NewPumpGate(params.PumpGateDelta, params.PumpGateWindow),
		Advisor:   adv,
		SimParams: entrysim.DefaultParams(),
	})

	eng, err := engine.New(engine.Options{
		Manager:   manager,
		Feed:      feed,
		Signals:   sigCache,
		Quoter:    quoter,
		Executor:  executor,
		Buyer:     buyer,
		Urgent:    urgent,
		Locks:     locks,
		Blacklist: blacklist,
		Seeds:     seeds,
		States:    stores.states,
		Trades:    stores.trades,
		Traces:    stores.traces,
		Advisor:   adv,
		Metrics:   metrics,
		Interval:  *tickInterval,
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	watchdog := positions.NewWatchdog(manager, credits, rpc, rpc)

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go startHTTPServer(*httpAddr, eng, logger)
	go watchdog.Run(ctx)

	err = eng.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Engine error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createFeed picks the streaming or polling client by URL scheme.
func createFeed(ctx context.Context, endpoint string) (market.Feed, func(), error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		sf, err := market.NewStreamFeed(ctx, endpoint, nil)
		if err != nil {
			return nil, nil, err
		}
		return sf, func() { sf.Close() }, nil
	}
	return market.NewHTTPFeed(endpoint), func() {}, nil
}

// createStores builds the persistence split: state and trades in
// postgres, decision traces in clickhouse.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*botStores, func(), error) {
	if useMemory {
		return &botStores{
			states: memory.NewStateStore(),
			trades: memory.NewTradeStore(),
			traces: memory.NewTraceStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &botStores{
		states: pgstore.NewStateStore(pool),
		trades: pgstore.NewTradeStore(pool),
		traces: clickhouse.NewTraceStore(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// statusResponse is the JSON response for /status.
type statusResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	engine.Stats
}

func startHTTPServer(addr string, eng *engine.Engine, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats := eng.Stats()
		resp := statusResponse{
			Status: "running",
			Uptime: time.Since(stats.StartedAt).Truncate(time.Second).String(),
			Stats:  stats,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}

// loadEnvFile loads .env into the environment without overriding
// variables already set.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
