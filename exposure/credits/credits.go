// Package credits implements the metered credit ledger and the per-provider
// cost gate. The ledger is append-only: a workspace balance is always a fresh
// sum of deltas, never a mutated counter, which makes concurrent writers safe
// by construction.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ExposureScan/go-api/exposure/postgres/models"
	"gorm.io/gorm"
)

// ErrInsufficientCredits is returned by Charge when the balance cannot cover
// the cost. Callers skip the provider with an informational finding; this is
// never a scan failure.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Ledger is the append-only balance-affecting log.
type Ledger interface {
	// Balance returns the sum of all deltas for a workspace.
	Balance(ctx context.Context, workspaceID string) (int, error)
	// Append inserts one ledger entry. Entries are never updated or deleted;
	// corrections are offsetting entries.
	Append(ctx context.Context, entry models.CreditLedgerEntry) error
}

// GormLedger is the Postgres-backed Ledger.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a Ledger over the given connection.
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Balance implements Ledger via SUM(delta); no read-modify-write exists
// anywhere on the ledger.
func (l *GormLedger) Balance(ctx context.Context, workspaceID string) (int, error) {
	if l.db == nil {
		return 0, fmt.Errorf("database connection not available")
	}
	var balance int64
	err := l.db.WithContext(ctx).
		Model(&models.CreditLedgerEntry{}).
		Where("workspace_id = ?", workspaceID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&balance).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum credit ledger for workspace %s: %w", workspaceID, err)
	}
	return int(balance), nil
}

// Append implements Ledger.
func (l *GormLedger) Append(ctx context.Context, entry models.CreditLedgerEntry) error {
	if l.db == nil {
		return fmt.Errorf("database connection not available")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append credit ledger entry: %w", err)
	}
	return nil
}

// LowBalanceNotifier is invoked (fire-and-forget) when a charge drops a
// workspace balance to or below the low-balance threshold. It must not block
// and its failure never affects the scan.
type LowBalanceNotifier func(workspaceID string, balance int)

// Gate checks and charges provider costs against the ledger.
type Gate struct {
	ledger       Ledger
	lowThreshold int
	notify       LowBalanceNotifier
}

// NewGate creates a cost gate. notify may be nil.
func NewGate(ledger Ledger, lowThreshold int, notify LowBalanceNotifier) *Gate {
	return &Gate{ledger: ledger, lowThreshold: lowThreshold, notify: notify}
}

// Charge verifies the balance covers cost and appends the debit entry before
// the provider call begins. Charging is pessimistic: callers pay for
// attempted work, not only successful work, so a hostile or flapping
// provider cannot generate cost-free retries. Workspaces on an unlimited
// plan skip the balance check but are still debited, keeping usage data
// honest. A zero cost is a no-op.
func (g *Gate) Charge(ctx context.Context, workspaceID string, cost int, unlimited bool, reason, refID string) error {
	if cost <= 0 {
		return nil
	}

	balance, err := g.ledger.Balance(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to read credit balance: %w", err)
	}

	if !unlimited && balance-cost < 0 {
		return fmt.Errorf("%w: required %d, balance %d", ErrInsufficientCredits, cost, balance)
	}

	entry := models.CreditLedgerEntry{
		WorkspaceID: workspaceID,
		Delta:       -cost,
		Reason:      reason,
		RefID:       refID,
	}
	if err := g.ledger.Append(ctx, entry); err != nil {
		return err
	}

	remaining := balance - cost
	if g.notify != nil && !unlimited && remaining <= g.lowThreshold {
		// Fire-and-forget: the notification must never delay or fail a scan.
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("Low-balance notifier panicked", "workspace", workspaceID, "panic", r)
				}
			}()
			g.notify(workspaceID, remaining)
		}()
	}

	return nil
}

// Grant appends a positive entry (top-up, correction, promo).
func (g *Gate) Grant(ctx context.Context, workspaceID string, amount int, reason, refID string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return g.ledger.Append(ctx, models.CreditLedgerEntry{
		WorkspaceID: workspaceID,
		Delta:       amount,
		Reason:      reason,
		RefID:       refID,
	})
}

// Balance re-exports the ledger balance read for API callers.
func (g *Gate) Balance(ctx context.Context, workspaceID string) (int, error) {
	return g.ledger.Balance(ctx, workspaceID)
}
