package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestStateStore_SaveAndLoad(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	blob := domain.NewStateBlob("wallet1")
	blob.Positions["mintA"] = &domain.Position{
		Mint:   "mintA",
		SizeUi: 100,
		CostSol: 0.5,
	}

	if err := store.Save(ctx, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "wallet1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got.Wallet != "wallet1" {
		t.Errorf("Wallet mismatch: got %s", got.Wallet)
	}
	if got.Positions["mintA"].SizeUi != 100 {
		t.Errorf("SizeUi mismatch: got %f", got.Positions["mintA"].SizeUi)
	}

	// Loaded blob is a copy, mutations must not leak back
	got.Positions["mintA"].SizeUi = 999
	again, err := store.Load(ctx, "wallet1")
	if err != nil {
		t.Fatalf("Load again failed: %v", err)
	}
	if again.Positions["mintA"].SizeUi != 100 {
		t.Error("stored blob was mutated through a loaded copy")
	}
}

func TestStateStore_LoadMissing(t *testing.T) {
	store := NewStateStore()

	_, err := store.Load(context.Background(), "unknown")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStateStore_SaveOverwrites(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	blob := domain.NewStateBlob("wallet1")
	if err := store.Save(ctx, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	blob.Risk.TakeProfitPct = 42
	if err := store.Save(ctx, blob); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := store.Load(ctx, "wallet1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Risk.TakeProfitPct != 42 {
		t.Errorf("Expected overwritten params, got %f", got.Risk.TakeProfitPct)
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := &domain.TradeRecord{
		TradeID: "trade1",
		Mint:    "mintA",
		Side:    domain.SideBuy,
		SizeUi:  50,
		Sol:     0.2,
		Ts:      time.Unix(1000, 0),
	}

	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "trade1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Sol != 0.2 {
		t.Errorf("Sol mismatch: got %f, want %f", got.Sol, 0.2)
	}
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := &domain.TradeRecord{TradeID: "trade1", Mint: "mintA"}

	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, trade)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeStore_GetByMintOrdered(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	for i, id := range []string{"t3", "t1", "t2"} {
		trade := &domain.TradeRecord{
			TradeID: id,
			Mint:    "mintA",
			Ts:      time.Unix(int64(3000-i*1000), 0),
		}
		if err := store.Insert(ctx, trade); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	got, err := store.GetByMint(ctx, "mintA")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Ts.Before(got[i-1].Ts) {
			t.Errorf("Trades not ordered ASC at index %d", i)
		}
	}
}

func TestTradeStore_GetRecent(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		trade := &domain.TradeRecord{
			TradeID: string(rune('a' + i)),
			Mint:    "mintA",
			Ts:      time.Unix(int64(1000+i), 0),
		}
		if err := store.Insert(ctx, trade); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(got))
	}
	if !got[0].Ts.After(got[1].Ts) {
		t.Error("Expected newest first")
	}
}

func TestTraceStore_InsertAndGet(t *testing.T) {
	store := NewTraceStore()
	ctx := context.Background()

	traces := []*domain.DecisionTrace{
		{TraceID: "tr1", Mint: "mintA", Action: domain.ActionHold},
		{TraceID: "tr2", Mint: "mintB", Action: domain.ActionSellAll},
		{TraceID: "tr3", Mint: "mintA", Action: domain.ActionSellPartial},
	}

	if err := store.InsertBulk(ctx, traces); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByMint(ctx, "mintA", 0)
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 traces, got %d", len(got))
	}
	if got[0].TraceID != "tr1" || got[1].TraceID != "tr3" {
		t.Errorf("Unexpected order: %s, %s", got[0].TraceID, got[1].TraceID)
	}

	// Limit keeps the most recent entries
	got, err = store.GetByMint(ctx, "mintA", 1)
	if err != nil {
		t.Fatalf("GetByMint with limit failed: %v", err)
	}
	if len(got) != 1 || got[0].TraceID != "tr3" {
		t.Errorf("Expected only tr3, got %+v", got)
	}
}

func TestTraceStore_RejectsInvalid(t *testing.T) {
	store := NewTraceStore()

	err := store.InsertBulk(context.Background(), []*domain.DecisionTrace{{TraceID: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
