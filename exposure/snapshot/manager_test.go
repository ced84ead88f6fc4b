package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ExposureScan/go-api/exposure/store"
)

// MockKVStore is a simple in-memory implementation of KVStore for testing
type MockKVStore struct {
	data map[string]string
}

func NewMockKVStore() *MockKVStore {
	return &MockKVStore{
		data: make(map[string]string),
	}
}

func (m *MockKVStore) SetValue(ctx context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *MockKVStore) SetValueWithTTL(ctx context.Context, key, value string, ttlSeconds int) error {
	m.data[key] = value
	return nil
}

func (m *MockKVStore) GetValue(ctx context.Context, key string) (store.ValkeyResponse, error) {
	value, exists := m.data[key]
	if !exists {
		return store.ValkeyResponse{}, store.ErrKeyNotFound
	}
	return store.ValkeyResponse{
		Message: store.ValkeyValue{Value: value},
	}, nil
}

func (m *MockKVStore) GetTTL(ctx context.Context, key string) (int, error) {
	return -1, nil // Mock always returns -1 (no expiry)
}

func (m *MockKVStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	prefix := strings.ReplaceAll(pattern, "*", "")
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MockKVStore) DeleteValue(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockKVStore) Close() error {
	return nil
}

func seedSnapshot(ctx context.Context, kv *MockKVStore, snap *UsageSnapshot) {
	data, _ := json.Marshal(snap)
	kv.SetValue(ctx, snapshotKey(snap.SnapshotID), string(data))
}

func TestSnapshotManagerSaveAndRetrieve(t *testing.T) {
	t.Log("\n🔍 Testing SnapshotManager save and retrieve...")

	mockStore := NewMockKVStore()
	manager := NewSnapshotManager(mockStore)
	ctx := context.Background()

	testSnapshot := &UsageSnapshot{
		SnapshotID: "2026-08-29-030000",
		Timestamp:  time.Now().UTC(),
		Counts: UsageCounts{
			TotalScans:      42,
			Completed:       35,
			Partial:         4,
			Errored:         2,
			TimedOut:        1,
			TotalFindings:   310,
			CreditsSpent:    188,
			CreditsGranted:  500,
			ProviderCalls:   260,
			ProviderFailurs: 13,
		},
		ByWorkspace: []WorkspaceUsageStat{
			{WorkspaceID: "ws-1", Scans: 30, TotalFindings: 250, CreditsSpent: 140},
			{WorkspaceID: "ws-2", Scans: 12, TotalFindings: 60, CreditsSpent: 48},
		},
		Metadata: SnapshotMetadata{
			TotalWorkspaces:    5,
			ActiveWorkspaces:   2,
			SnapshotDurationMs: 57,
		},
	}

	if err := manager.calculator.SaveSnapshot(ctx, testSnapshot); err != nil {
		t.Fatalf("❌ Failed to save snapshot: %v", err)
	}

	retrieved, err := manager.GetSnapshot(ctx, "2026-08-29-030000")
	if err != nil {
		t.Fatalf("❌ Failed to retrieve snapshot: %v", err)
	}

	if retrieved.SnapshotID != testSnapshot.SnapshotID {
		t.Errorf("❌ SnapshotID mismatch: expected %s, got %s", testSnapshot.SnapshotID, retrieved.SnapshotID)
	}
	if retrieved.Counts.TotalScans != 42 {
		t.Errorf("❌ TotalScans mismatch: expected 42, got %d", retrieved.Counts.TotalScans)
	}
	if retrieved.Counts.CreditsSpent != 188 {
		t.Errorf("❌ CreditsSpent mismatch: expected 188, got %d", retrieved.Counts.CreditsSpent)
	}
	if len(retrieved.ByWorkspace) != 2 {
		t.Errorf("❌ Expected 2 workspace stats, got %d", len(retrieved.ByWorkspace))
	}

	t.Log("\n✅ SnapshotManager save and retrieve test passed")
}

func TestSnapshotManagerListSnapshots(t *testing.T) {
	t.Log("\n🔍 Testing SnapshotManager list snapshots...")

	mockStore := NewMockKVStore()
	manager := NewSnapshotManager(mockStore)
	ctx := context.Background()

	testIDs := []string{"2026-08-27-030000", "2026-08-28-030000", "2026-08-29-030000"}
	for _, id := range testIDs {
		seedSnapshot(ctx, mockStore, &UsageSnapshot{
			SnapshotID: id,
			Timestamp:  time.Now().UTC(),
			Counts:     UsageCounts{TotalScans: 10},
		})
	}

	ids, err := manager.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("❌ Failed to list snapshots: %v", err)
	}

	if len(ids) != len(testIDs) {
		t.Errorf("❌ Expected %d snapshots, got %d", len(testIDs), len(ids))
	}

	// Most recent first - timestamp IDs sort lexically
	if len(ids) > 1 && ids[0] < ids[1] {
		t.Errorf("❌ IDs not sorted descending: %v", ids)
	}
	if ids[0] != "2026-08-29-030000" {
		t.Errorf("❌ Expected the newest snapshot first, got %s", ids[0])
	}

	t.Log("\n✅ SnapshotManager list snapshots test passed")
}

func TestSnapshotManagerCleanup(t *testing.T) {
	t.Log("\n🔍 Testing SnapshotManager cleanup...")

	mockStore := NewMockKVStore()
	manager := NewSnapshotManager(mockStore)
	ctx := context.Background()

	// Create 12 snapshots (more than the retention limit)
	for i := 1; i <= 12; i++ {
		id := time.Date(2026, 8, i, 3, 0, 0, 0, time.UTC).Format("2006-01-02-150405")
		seedSnapshot(ctx, mockStore, &UsageSnapshot{
			SnapshotID: id,
			Timestamp:  time.Now().UTC(),
			Counts:     UsageCounts{TotalScans: 10},
		})
	}

	if err := manager.CleanupOldSnapshots(ctx); err != nil {
		t.Fatalf("❌ Cleanup failed: %v", err)
	}

	ids, err := manager.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("❌ Failed to list snapshots after cleanup: %v", err)
	}

	if len(ids) != keepSnapshots {
		t.Errorf("❌ Expected %d snapshots after cleanup, got %d", keepSnapshots, len(ids))
	}

	// The oldest two must be the ones pruned
	for _, id := range ids {
		if id < "2026-08-03" {
			t.Errorf("❌ Old snapshot %s should have been pruned", id)
		}
	}

	t.Log("\n✅ SnapshotManager cleanup test passed")
}

func TestSnapshotManagerLatestAndTrend(t *testing.T) {
	t.Log("\n🔍 Testing SnapshotManager latest and trend reads...")

	mockStore := NewMockKVStore()
	manager := NewSnapshotManager(mockStore)
	ctx := context.Background()

	base := time.Date(2026, 8, 27, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.AddDate(0, 0, i)
		seedSnapshot(ctx, mockStore, &UsageSnapshot{
			SnapshotID: ts.Format("2006-01-02-150405"),
			Timestamp:  ts,
			Counts: UsageCounts{
				TotalScans:      10 + i,
				TotalFindings:   100 + i,
				CreditsSpent:    50 + i,
				ProviderCalls:   40,
				ProviderFailurs: 4,
			},
		})
	}

	latest, err := manager.GetLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("❌ Failed to get latest snapshot: %v", err)
	}
	if latest.Counts.TotalScans != 12 {
		t.Errorf("❌ Latest should be the newest snapshot, got TotalScans=%d", latest.Counts.TotalScans)
	}

	points, err := manager.GetTrendData(ctx, 2)
	if err != nil {
		t.Fatalf("❌ Failed to get trend data: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("❌ Expected 2 trend points, got %d", len(points))
	}

	// Chronological order: the limit keeps the newest, then flips oldest-first
	if !points[0].Timestamp.Before(points[1].Timestamp) {
		t.Errorf("❌ Trend points should be oldest first")
	}
	if points[1].TotalScans != 12 {
		t.Errorf("❌ Last trend point should be the newest snapshot, got %d", points[1].TotalScans)
	}
	if points[0].ProviderFailureRatio != 0.1 {
		t.Errorf("❌ Expected failure ratio 0.1, got %f", points[0].ProviderFailureRatio)
	}

	t.Log("\n✅ SnapshotManager latest and trend test passed")
}

func TestSnapshotManagerEmptyStore(t *testing.T) {
	t.Log("\n🔍 Testing SnapshotManager with no snapshots...")

	manager := NewSnapshotManager(NewMockKVStore())
	ctx := context.Background()

	if _, err := manager.GetLatestSnapshot(ctx); err == nil {
		t.Errorf("❌ Expected an error when no snapshots exist")
	}

	points, err := manager.GetTrendData(ctx, 5)
	if err != nil {
		t.Fatalf("❌ Trend over an empty store should not fail: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("❌ Expected an empty trend, got %d points", len(points))
	}

	t.Log("\n✅ SnapshotManager empty store test passed")
}
