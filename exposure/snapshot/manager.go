package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ExposureScan/go-api/exposure/store"
)

// keepSnapshots bounds how many daily checkpoints are retained in Valkey.
const keepSnapshots = 10

func snapshotKey(snapshotID string) string {
	return "usage:snapshot:" + snapshotID
}

// SnapshotManager owns the usage checkpoint lifecycle: creation over the
// calculator, retrieval, trend summarization, and retention cleanup. The
// credit ledger stays the balance of record; snapshots are derived data.
type SnapshotManager struct {
	kvStore    store.KVStore
	calculator *SnapshotCalculator
}

// NewSnapshotManager creates a SnapshotManager over the given KV store.
func NewSnapshotManager(kvStore store.KVStore) *SnapshotManager {
	return &SnapshotManager{
		kvStore:    kvStore,
		calculator: NewSnapshotCalculator(kvStore),
	}
}

// CreateSnapshot calculates and stores a fresh usage checkpoint, then prunes
// checkpoints beyond the retention window. snapshotID may be empty to take a
// timestamp-based ID.
func (sm *SnapshotManager) CreateSnapshot(ctx context.Context, snapshotID string) (*UsageSnapshot, error) {
	snapshot, err := sm.calculator.CalculateSnapshot(snapshotID)
	if err != nil {
		return nil, err
	}

	if err := sm.calculator.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	if err := sm.CleanupOldSnapshots(ctx); err != nil {
		// Retention drift is tolerable; the fresh checkpoint is not lost.
		slog.Warn("Failed to prune old usage snapshots", "error", err)
	}

	return snapshot, nil
}

// GetSnapshot loads one checkpoint by ID.
func (sm *SnapshotManager) GetSnapshot(ctx context.Context, snapshotID string) (*UsageSnapshot, error) {
	resp, err := sm.kvStore.GetValue(ctx, snapshotKey(snapshotID))
	if err != nil {
		return nil, fmt.Errorf("usage snapshot %s not found: %w", snapshotID, err)
	}

	var snapshot UsageSnapshot
	if err := json.Unmarshal([]byte(resp.Message.Value), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal usage snapshot %s: %w", snapshotID, err)
	}
	return &snapshot, nil
}

// ListSnapshots returns the stored checkpoint IDs, most recent first. The
// timestamp ID format (YYYY-MM-DD-HHMMSS) sorts lexically.
func (sm *SnapshotManager) ListSnapshots(ctx context.Context) ([]string, error) {
	keys, err := sm.kvStore.ListKeys(ctx, snapshotKey("*"))
	if err != nil {
		return nil, err
	}

	snapshotIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		parts := strings.Split(key, ":")
		if len(parts) >= 3 {
			snapshotIDs = append(snapshotIDs, strings.Join(parts[2:], ":"))
		}
	}

	sort.Slice(snapshotIDs, func(i, j int) bool {
		return snapshotIDs[i] > snapshotIDs[j]
	})
	return snapshotIDs, nil
}

// TrendPoint is one summarized checkpoint for usage trend charts.
type TrendPoint struct {
	SnapshotID           string    `json:"snapshot_id"`
	Timestamp            time.Time `json:"timestamp"`
	TotalScans           int       `json:"total_scans"`
	TotalFindings        int       `json:"total_findings"`
	CreditsSpent         int       `json:"credits_spent"`
	ProviderFailureRatio float64   `json:"provider_failure_ratio"`
}

// GetTrendData summarizes up to limit recent checkpoints into trend points,
// oldest first so the series plots left to right. Unreadable checkpoints are
// skipped.
func (sm *SnapshotManager) GetTrendData(ctx context.Context, limit int) ([]TrendPoint, error) {
	if limit <= 0 || limit > keepSnapshots {
		limit = keepSnapshots
	}

	ids, err := sm.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	points := make([]TrendPoint, 0, len(ids))
	for _, id := range ids {
		snap, err := sm.GetSnapshot(ctx, id)
		if err != nil {
			continue
		}
		points = append(points, trendPoint(snap))
	}

	// ids are newest-first; flip into chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

func trendPoint(snap *UsageSnapshot) TrendPoint {
	ratio := 0.0
	if snap.Counts.ProviderCalls > 0 {
		ratio = float64(snap.Counts.ProviderFailurs) / float64(snap.Counts.ProviderCalls)
	}
	return TrendPoint{
		SnapshotID:           snap.SnapshotID,
		Timestamp:            snap.Timestamp,
		TotalScans:           snap.Counts.TotalScans,
		TotalFindings:        snap.Counts.TotalFindings,
		CreditsSpent:         snap.Counts.CreditsSpent,
		ProviderFailureRatio: ratio,
	}
}

// CleanupOldSnapshots deletes checkpoints beyond the retention window.
func (sm *SnapshotManager) CleanupOldSnapshots(ctx context.Context) error {
	snapshotIDs, err := sm.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(snapshotIDs) <= keepSnapshots {
		return nil
	}

	for _, snapshotID := range snapshotIDs[keepSnapshots:] {
		if err := sm.kvStore.DeleteValue(ctx, snapshotKey(snapshotID)); err != nil {
			slog.Warn("Failed to delete old usage snapshot", "snapshot_id", snapshotID, "error", err)
		}
	}
	return nil
}

// GetLatestSnapshot loads the most recent checkpoint.
func (sm *SnapshotManager) GetLatestSnapshot(ctx context.Context) (*UsageSnapshot, error) {
	snapshotIDs, err := sm.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshotIDs) == 0 {
		return nil, fmt.Errorf("no usage snapshots available")
	}
	return sm.GetSnapshot(ctx, snapshotIDs[0])
}
