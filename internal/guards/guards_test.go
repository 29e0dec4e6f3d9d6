package guards

import (
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0)

func TestLockStore_AcquireAndExpire(t *testing.T) {
	s := NewLockStore()

	if !s.Acquire("mint-a", "buy", 30*time.Second, t0) {
		t.Fatal("first acquire should succeed")
	}
	if s.Acquire("mint-a", "sell", 30*time.Second, t0.Add(10*time.Second)) {
		t.Error("second acquire within TTL should fail")
	}
	if !s.Acquire("mint-a", "sell", 30*time.Second, t0.Add(31*time.Second)) {
		t.Error("acquire after expiry should succeed")
	}
}

func TestLockStore_Release(t *testing.T) {
	s := NewLockStore()
	s.Acquire("mint-a", "buy", time.Minute, t0)
	s.Release("mint-a")
	if !s.Acquire("mint-a", "sell", time.Minute, t0.Add(time.Second)) {
		t.Error("acquire after release should succeed")
	}
}

func TestBlacklist_StageEscalation(t *testing.T) {
	s := NewBlacklistStore(10*time.Minute, time.Hour, 24*time.Hour, time.Minute)

	e1 := s.Flag("mint-a", t0)
	if e1.Stage != 1 {
		t.Fatalf("first flag stage = %d, want 1", e1.Stage)
	}

	// Outside coalescing window escalates.
	e2 := s.Flag("mint-a", t0.Add(2*time.Minute))
	if e2.Stage != 2 {
		t.Fatalf("second flag stage = %d, want 2", e2.Stage)
	}

	e3 := s.Flag("mint-a", t0.Add(5*time.Minute))
	if e3.Stage != 3 {
		t.Fatalf("third flag stage = %d, want 3", e3.Stage)
	}

	// Stage caps at 3.
	e4 := s.Flag("mint-a", t0.Add(10*time.Minute))
	if e4.Stage != 3 {
		t.Errorf("fourth flag stage = %d, want 3", e4.Stage)
	}
}

func TestBlacklist_NeverShortens(t *testing.T) {
	s := NewBlacklistStore(10*time.Minute, time.Hour, 24*time.Hour, time.Minute)

	s.Flag("mint-a", t0)
	e2 := s.Flag("mint-a", t0.Add(90*time.Second)) // stage 2, 1h ban
	if got := e2.Until; got.Before(t0.Add(time.Hour)) {
		t.Fatalf("stage 2 ban ends %v, want >= %v", got, t0.Add(time.Hour))
	}

	// A flag inside the coalescing window keeps stage 2 and must not
	// shorten the existing expiry.
	e3 := s.Flag("mint-a", t0.Add(100*time.Second))
	if e3.Stage != 2 {
		t.Errorf("coalesced flag stage = %d, want 2", e3.Stage)
	}
	if e3.Until.Before(e2.Until) {
		t.Errorf("ban shortened: %v -> %v", e2.Until, e3.Until)
	}
}

func TestBlacklist_Banned(t *testing.T) {
	s := NewBlacklistStore(10*time.Minute, time.Hour, 24*time.Hour, time.Minute)
	s.Flag("mint-a", t0)

	if !s.Banned("mint-a", t0.Add(time.Minute)) {
		t.Error("expected ban active within stage 1 window")
	}
	if s.Banned("mint-a", t0.Add(11*time.Minute)) {
		t.Error("expected ban expired after stage 1 window")
	}
	if s.Banned("mint-b", t0) {
		t.Error("unflagged mint must not be banned")
	}
}

func TestBanStore_Escalates(t *testing.T) {
	s := NewBanStore()

	u1 := s.Ban("mint-a", time.Minute, t0)
	if want := t0.Add(time.Minute); !u1.Equal(want) {
		t.Fatalf("first ban until %v, want %v", u1, want)
	}

	u2 := s.Ban("mint-a", time.Minute, t0)
	if want := t0.Add(2 * time.Minute); !u2.Equal(want) {
		t.Fatalf("second ban until %v, want %v", u2, want)
	}

	if !s.Banned("mint-a", t0.Add(90*time.Second)) {
		t.Error("expected ban active")
	}
	if s.Banned("mint-a", t0.Add(3*time.Minute)) {
		t.Error("expected ban expired")
	}
}

func TestUrgentStore_ConsumeOnce(t *testing.T) {
	s := NewUrgentStore()
	s.Raise("mint-a", "feed_drop", 0.8, time.Minute, t0)

	f, ok := s.Consume("mint-a", t0.Add(time.Second))
	if !ok {
		t.Fatal("expected pending flag")
	}
	if f.Reason != "feed_drop" || f.Severity != 0.8 {
		t.Errorf("unexpected flag %+v", f)
	}

	if _, ok := s.Consume("mint-a", t0.Add(2*time.Second)); ok {
		t.Error("flag consumed twice")
	}
}

func TestUrgentStore_UpgradeOnly(t *testing.T) {
	s := NewUrgentStore()
	s.Raise("mint-a", "minor", 0.3, time.Minute, t0)
	s.Raise("mint-a", "major", 0.9, time.Minute, t0.Add(time.Second))
	s.Raise("mint-a", "minor-again", 0.1, time.Minute, t0.Add(2*time.Second))

	f, ok := s.Consume("mint-a", t0.Add(3*time.Second))
	if !ok {
		t.Fatal("expected pending flag")
	}
	if f.Severity != 0.9 || f.Reason != "major" {
		t.Errorf("expected severity kept at max, got %+v", f)
	}
}

func TestUrgentStore_CooldownSuppressesReRaise(t *testing.T) {
	s := NewUrgentStore()
	s.Raise("mint-a", "drop", 0.8, time.Minute, t0)
	if _, ok := s.Consume("mint-a", t0.Add(time.Second)); !ok {
		t.Fatal("expected flag")
	}

	// Within the cooldown window the same signal must not re-arm.
	s.Raise("mint-a", "drop", 0.8, time.Minute, t0.Add(2*time.Second))
	if s.Pending("mint-a", t0.Add(3*time.Second)) {
		t.Error("re-raise within cooldown should be suppressed")
	}

	// After the window a fresh flag arms normally.
	s.Raise("mint-a", "drop", 0.8, time.Minute, t0.Add(2*time.Minute))
	if !s.Pending("mint-a", t0.Add(2*time.Minute+time.Second)) {
		t.Error("fresh flag after cooldown should be pending")
	}
}

func TestCreditStore_Lifecycle(t *testing.T) {
	s := NewCreditStore()

	id := s.Put("owner", "mint-a", 0.1, 1000, 0, "sig123", t0)
	if id == "" {
		t.Fatal("expected credit id")
	}

	c, ok := s.Get("mint-a")
	if !ok || c.AddCost != 0.1 || c.TxSignature != "sig123" {
		t.Fatalf("unexpected credit %+v", c)
	}

	c, ok = s.Bump("mint-a")
	if !ok || c.Attempts != 1 {
		t.Fatalf("bump attempts = %d, want 1", c.Attempts)
	}

	s.Remove("mint-a")
	if _, ok := s.Get("mint-a"); ok {
		t.Error("credit not removed")
	}
}

func TestSeedStore_TTL(t *testing.T) {
	s := NewSeedStore()
	s.Plant("mint-a", 0.002, time.Minute, t0)

	if _, ok := s.Lookup("mint-a", t0.Add(30*time.Second)); !ok {
		t.Error("expected live seed")
	}
	if _, ok := s.Lookup("mint-a", t0.Add(2*time.Minute)); ok {
		t.Error("expected seed expired")
	}
}
