package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ExposureScan/go-api/exposure/postgres/models"
)

// memLedger is an in-memory append-only ledger for testing.
type memLedger struct {
	mu      sync.Mutex
	entries []models.CreditLedgerEntry
}

func (l *memLedger) Balance(ctx context.Context, workspaceID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := 0
	for _, e := range l.entries {
		if e.WorkspaceID == workspaceID {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (l *memLedger) Append(ctx context.Context, entry models.CreditLedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func TestChargeDebitsBeforeWork(t *testing.T) {
	t.Log("\n🔍 Testing the pessimistic charge...")

	ledger := &memLedger{}
	gate := NewGate(ledger, 0, nil)
	ctx := context.Background()

	if err := gate.Grant(ctx, "ws-1", 10, "topup", ""); err != nil {
		t.Fatalf("❌ Grant failed: %v", err)
	}

	if err := gate.Charge(ctx, "ws-1", 3, false, "provider_call:hibp", "scan-1"); err != nil {
		t.Fatalf("❌ Charge failed with sufficient balance: %v", err)
	}

	balance, _ := ledger.Balance(ctx, "ws-1")
	if balance != 7 {
		t.Errorf("❌ Expected balance 7 after 10-3, got %d", balance)
	}
	t.Log("✅ Charge lands as a negative ledger entry")
}

func TestChargeInsufficientCredits(t *testing.T) {
	t.Log("\n🔍 Testing the insufficient-credits rejection...")

	ledger := &memLedger{}
	gate := NewGate(ledger, 0, nil)
	ctx := context.Background()

	_ = gate.Grant(ctx, "ws-1", 2, "topup", "")

	err := gate.Charge(ctx, "ws-1", 5, false, "provider_call:maigret", "scan-1")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("❌ Expected ErrInsufficientCredits, got %v", err)
	}

	balance, _ := ledger.Balance(ctx, "ws-1")
	if balance != 2 {
		t.Errorf("❌ Rejected charge must not touch the ledger, balance %d", balance)
	}
	t.Log("✅ Rejected charges leave the ledger untouched")
}

func TestUnlimitedStillDebits(t *testing.T) {
	t.Log("\n🔍 Testing unlimited-plan accounting...")

	ledger := &memLedger{}
	gate := NewGate(ledger, 0, nil)
	ctx := context.Background()

	// No balance at all: unlimited skips the check but records the spend.
	if err := gate.Charge(ctx, "ws-1", 10, true, "provider_call:apify-social", "scan-1"); err != nil {
		t.Fatalf("❌ Unlimited charge should never be rejected: %v", err)
	}

	balance, _ := ledger.Balance(ctx, "ws-1")
	if balance != -10 {
		t.Errorf("❌ Unlimited spend must still be debited, balance %d", balance)
	}
	t.Log("✅ Unlimited plans keep honest usage records")
}

func TestZeroCostIsNoOp(t *testing.T) {
	t.Log("\n🔍 Testing the zero-cost fast path...")

	ledger := &memLedger{}
	gate := NewGate(ledger, 0, nil)

	if err := gate.Charge(context.Background(), "ws-1", 0, false, "provider_call:free", "scan-1"); err != nil {
		t.Fatalf("❌ Zero cost should be a no-op: %v", err)
	}
	if len(ledger.entries) != 0 {
		t.Errorf("❌ Zero cost must not append entries, got %d", len(ledger.entries))
	}
	t.Log("✅ Free providers never touch the ledger")
}

func TestLowBalanceNotification(t *testing.T) {
	t.Log("\n🔍 Testing the low-balance notification...")

	ledger := &memLedger{}

	notified := make(chan int, 1)
	gate := NewGate(ledger, 5, func(workspaceID string, balance int) {
		notified <- balance
	})
	ctx := context.Background()

	_ = gate.Grant(ctx, "ws-1", 8, "topup", "")
	if err := gate.Charge(ctx, "ws-1", 4, false, "provider_call:hibp", "scan-1"); err != nil {
		t.Fatalf("❌ Charge failed: %v", err)
	}

	select {
	case balance := <-notified:
		if balance != 4 {
			t.Errorf("❌ Expected remaining balance 4 in notification, got %d", balance)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("❌ Notification never fired")
	}
	t.Log("✅ Dropping to the threshold fires the notifier without blocking the charge")
}

func TestGrantRejectsNonPositive(t *testing.T) {
	t.Log("\n🔍 Testing grant validation...")

	gate := NewGate(&memLedger{}, 0, nil)

	if err := gate.Grant(context.Background(), "ws-1", 0, "topup", ""); err == nil {
		t.Errorf("❌ Zero grant should be rejected")
	}
	if err := gate.Grant(context.Background(), "ws-1", -5, "topup", ""); err == nil {
		t.Errorf("❌ Negative grant should be rejected")
	}
	t.Log("✅ Grants must be positive; corrections are offsetting entries")
}
