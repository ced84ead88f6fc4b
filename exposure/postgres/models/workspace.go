// File: workspace.go
package models

import (
	"time"
)

// Workspace is the tenant. Subscription lifecycle is owned elsewhere; the
// scan engine only reads tier, quota counters, and consent categories.
type Workspace struct {
	ID                  string      `gorm:"primaryKey;size:36" json:"id"`
	Name                string      `gorm:"not null;size:255" json:"name"`
	SubscriptionTier    string      `gorm:"not null;size:20;default:'free'" json:"subscription_tier"`
	Privileged          bool        `gorm:"not null;default:false" json:"privileged"`
	UnlimitedCredits    bool        `gorm:"not null;default:false" json:"unlimited_credits"`
	ScansUsedMonthly    int         `gorm:"not null;default:0" json:"scans_used_monthly"`
	ScanLimitMonthly    int         `gorm:"not null;default:0" json:"scan_limit_monthly"` // 0 = tier default
	ConsentedCategories StringSlice `gorm:"type:jsonb" json:"consented_categories"`
	CreatedAt           time.Time   `gorm:"not null;default:NOW()" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"not null;default:NOW()" json:"updated_at"`
}

// TableName specifies the table name for the Workspace model.
func (Workspace) TableName() string {
	return "workspaces"
}

// CreditLedgerEntry is one append-only balance-affecting row. Entries are
// never updated or deleted; corrections are offsetting entries, and the
// balance for a workspace is always the sum of its deltas.
type CreditLedgerEntry struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID string    `gorm:"not null;size:36;index:idx_credits_workspace" json:"workspace_id"`
	Delta       int       `gorm:"not null" json:"delta"` // negative for spend
	Reason      string    `gorm:"not null;size:100" json:"reason"`
	RefID       string    `gorm:"size:36;index:idx_credits_ref" json:"ref_id,omitempty"`
	Meta        JSONB     `gorm:"type:jsonb" json:"meta,omitempty"`
	CreatedAt   time.Time `gorm:"not null;default:NOW()" json:"created_at"`
}

// TableName specifies the table name for the CreditLedgerEntry model.
func (CreditLedgerEntry) TableName() string {
	return "credits_ledger"
}

// ProviderEvent is one per-provider lifecycle event within a scan
// (start/success/failed/skipped), feeding the events query layer and the
// live progress UI.
type ProviderEvent struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID      string    `gorm:"not null;size:36;index:idx_provider_events_scan" json:"scan_id"`
	Provider    string    `gorm:"not null;size:100;index:idx_provider_events_provider" json:"provider"`
	Event       string    `gorm:"not null;size:30;index:idx_provider_events_event" json:"event"`
	Message     string    `gorm:"size:512" json:"message"`
	ResultCount int       `gorm:"not null;default:0" json:"result_count"`
	DurationMs  int64     `gorm:"not null;default:0" json:"duration_ms"`
	Error       JSONB     `gorm:"type:jsonb" json:"error,omitempty"`
	CreatedAt   time.Time `gorm:"not null;default:NOW();index:idx_provider_events_created,sort:desc" json:"created_at"`
}

// TableName specifies the table name for the ProviderEvent model.
func (ProviderEvent) TableName() string {
	return "scan_provider_events"
}

// ProviderEvent event type constants.
const (
	ProviderEventStart   = "start"
	ProviderEventSuccess = "success"
	ProviderEventFailed  = "failed"
	ProviderEventSkipped = "skipped"
)
