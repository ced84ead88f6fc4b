package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ExposureScan/go-api/exposure/postgres"
	"github.com/ExposureScan/go-api/exposure/postgres/models"
	"github.com/ExposureScan/go-api/exposure/store"
)

// UsageCounts holds the global daily usage aggregates.
type UsageCounts struct {
	TotalScans      int `json:"total_scans"`
	Completed       int `json:"completed"`
	Partial         int `json:"partial"`
	Errored         int `json:"errored"`
	TimedOut        int `json:"timed_out"`
	TotalFindings   int `json:"total_findings"`
	CreditsSpent    int `json:"credits_spent"`
	CreditsGranted  int `json:"credits_granted"`
	ProviderCalls   int `json:"provider_calls"`
	ProviderFailurs int `json:"provider_failures"`
}

// WorkspaceUsageStat is the per-workspace breakdown within a snapshot.
type WorkspaceUsageStat struct {
	WorkspaceID   string `json:"workspace_id"`
	Scans         int    `json:"scans"`
	TotalFindings int    `json:"total_findings"`
	CreditsSpent  int    `json:"credits_spent"`
}

// SnapshotMetadata describes how the snapshot was produced.
type SnapshotMetadata struct {
	TotalWorkspaces    int   `json:"total_workspaces"`
	ActiveWorkspaces   int   `json:"active_workspaces"`
	SnapshotDurationMs int64 `json:"snapshot_duration_ms"`
}

// UsageSnapshot is one point-in-time checkpoint of scan and credit usage.
// The credit ledger itself stays append-only; snapshots are derived data and
// the balance of record is always a fresh sum of ledger deltas.
type UsageSnapshot struct {
	SnapshotID  string               `json:"snapshot_id"`
	Timestamp   time.Time            `json:"timestamp"`
	Counts      UsageCounts          `json:"counts"`
	ByWorkspace []WorkspaceUsageStat `json:"by_workspace"`
	Metadata    SnapshotMetadata     `json:"metadata"`
}

// SnapshotCalculator handles the calculation and storage of usage snapshots
type SnapshotCalculator struct {
	kvStore store.KVStore
}

// NewSnapshotCalculator creates a new SnapshotCalculator instance
func NewSnapshotCalculator(kvStore store.KVStore) *SnapshotCalculator {
	return &SnapshotCalculator{kvStore: kvStore}
}

// CalculateSnapshot queries PostgreSQL and generates a usage snapshot over
// the trailing 24 hours. snapshotID can be empty (will auto-generate a
// timestamp-based ID) or a specific ID.
func (sc *SnapshotCalculator) CalculateSnapshot(snapshotID string) (*UsageSnapshot, error) {
	db := postgres.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	startTime := time.Now()
	now := time.Now().UTC()
	since := now.Add(-24 * time.Hour)

	if snapshotID == "" {
		// Format: YYYY-MM-DD-HHMMSS (e.g., 2026-08-30-143025)
		snapshotID = now.Format("2006-01-02-150405")
	}

	snapshot := &UsageSnapshot{
		SnapshotID: snapshotID,
		Timestamp:  now,
	}

	// Query 1: Global scan counts by terminal status
	err := db.Model(&models.Scan{}).
		Select(`
			COUNT(*) as total_scans,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) as completed,
			SUM(CASE WHEN status = 'completed_partial' THEN 1 ELSE 0 END) as partial,
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) as errored,
			SUM(CASE WHEN status = 'timeout' THEN 1 ELSE 0 END) as timed_out,
			COALESCE(SUM(total_findings), 0) as total_findings
		`).
		Where("created_at >= ?", since).
		Scan(&snapshot.Counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to calculate scan counts: %w", err)
	}

	// Query 2: Credit movement over the window
	var creditTotals struct {
		Spent   int64
		Granted int64
	}
	err = db.Model(&models.CreditLedgerEntry{}).
		Select(`
			COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0) as spent,
			COALESCE(SUM(CASE WHEN delta > 0 THEN delta ELSE 0 END), 0) as granted
		`).
		Where("created_at >= ?", since).
		Scan(&creditTotals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to calculate credit totals: %w", err)
	}
	snapshot.Counts.CreditsSpent = int(creditTotals.Spent)
	snapshot.Counts.CreditsGranted = int(creditTotals.Granted)

	// Query 3: Provider call outcomes
	var providerTotals struct {
		Calls    int64
		Failures int64
	}
	err = db.Model(&models.ProviderEvent{}).
		Select(`
			SUM(CASE WHEN event IN ('success', 'failed') THEN 1 ELSE 0 END) as calls,
			SUM(CASE WHEN event = 'failed' THEN 1 ELSE 0 END) as failures
		`).
		Where("created_at >= ?", since).
		Scan(&providerTotals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to calculate provider totals: %w", err)
	}
	snapshot.Counts.ProviderCalls = int(providerTotals.Calls)
	snapshot.Counts.ProviderFailurs = int(providerTotals.Failures)

	// Query 4: Per-workspace breakdown
	type wsStat struct {
		WorkspaceID   string
		Scans         int
		TotalFindings int
	}
	var wsStats []wsStat
	err = db.Model(&models.Scan{}).
		Select(`
			workspace_id,
			COUNT(*) as scans,
			COALESCE(SUM(total_findings), 0) as total_findings
		`).
		Where("created_at >= ?", since).
		Group("workspace_id").
		Scan(&wsStats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to calculate per-workspace stats: %w", err)
	}

	spentByWorkspace := make(map[string]int64)
	var wsSpend []struct {
		WorkspaceID string
		Spent       int64
	}
	err = db.Model(&models.CreditLedgerEntry{}).
		Select("workspace_id, COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0) as spent").
		Where("created_at >= ?", since).
		Group("workspace_id").
		Scan(&wsSpend).Error
	if err != nil {
		return nil, fmt.Errorf("failed to calculate per-workspace spend: %w", err)
	}
	for _, row := range wsSpend {
		spentByWorkspace[row.WorkspaceID] = row.Spent
	}

	snapshot.ByWorkspace = make([]WorkspaceUsageStat, len(wsStats))
	for i, ws := range wsStats {
		snapshot.ByWorkspace[i] = WorkspaceUsageStat{
			WorkspaceID:   ws.WorkspaceID,
			Scans:         ws.Scans,
			TotalFindings: ws.TotalFindings,
			CreditsSpent:  int(spentByWorkspace[ws.WorkspaceID]),
		}
	}

	// Query 5: Metadata
	var totalWorkspaces int64
	db.Model(&models.Workspace{}).Count(&totalWorkspaces)

	snapshot.Metadata = SnapshotMetadata{
		TotalWorkspaces:    int(totalWorkspaces),
		ActiveWorkspaces:   len(wsStats),
		SnapshotDurationMs: time.Since(startTime).Milliseconds(),
	}

	return snapshot, nil
}

// SaveSnapshot stores a snapshot in Valkey
func (sc *SnapshotCalculator) SaveSnapshot(ctx context.Context, snapshot *UsageSnapshot) error {
	key := snapshotKey(snapshot.SnapshotID)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return sc.kvStore.SetValue(ctx, key, string(data))
}
