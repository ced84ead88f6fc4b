package snapshot

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUsageSnapshotSerialization(t *testing.T) {
	t.Log("\n🔍 Testing UsageSnapshot serialization...")

	snapshot := &UsageSnapshot{
		SnapshotID: "2026-08-29-030000",
		Timestamp:  time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC),
		Counts: UsageCounts{
			TotalScans:      100,
			Completed:       80,
			Partial:         12,
			Errored:         5,
			TimedOut:        3,
			TotalFindings:   940,
			CreditsSpent:    412,
			CreditsGranted:  1000,
			ProviderCalls:   730,
			ProviderFailurs: 41,
		},
		ByWorkspace: []WorkspaceUsageStat{
			{WorkspaceID: "ws-1", Scans: 60, TotalFindings: 700, CreditsSpent: 300},
		},
		Metadata: SnapshotMetadata{
			TotalWorkspaces:    8,
			ActiveWorkspaces:   1,
			SnapshotDurationMs: 1234,
		},
	}

	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("❌ Failed to marshal UsageSnapshot: %v", err)
	}

	var deserialized UsageSnapshot
	if err := json.Unmarshal(jsonData, &deserialized); err != nil {
		t.Fatalf("❌ Failed to unmarshal UsageSnapshot: %v", err)
	}

	if deserialized.SnapshotID != snapshot.SnapshotID {
		t.Errorf("❌ SnapshotID mismatch: expected %s, got %s", snapshot.SnapshotID, deserialized.SnapshotID)
	}
	if deserialized.Counts.TotalScans != snapshot.Counts.TotalScans {
		t.Errorf("❌ TotalScans mismatch: expected %d, got %d", snapshot.Counts.TotalScans, deserialized.Counts.TotalScans)
	}
	if deserialized.Counts.ProviderFailurs != 41 {
		t.Errorf("❌ Provider failure count lost: got %d", deserialized.Counts.ProviderFailurs)
	}
	if len(deserialized.ByWorkspace) != len(snapshot.ByWorkspace) {
		t.Errorf("❌ ByWorkspace length mismatch: expected %d, got %d", len(snapshot.ByWorkspace), len(deserialized.ByWorkspace))
	}

	t.Log("\n✅ UsageSnapshot serialization test passed")
}

func TestTrendPointRatio(t *testing.T) {
	t.Log("\n🔍 Testing trend point summarization...")

	point := trendPoint(&UsageSnapshot{
		SnapshotID: "2026-08-29-030000",
		Counts: UsageCounts{
			TotalScans:      20,
			TotalFindings:   150,
			CreditsSpent:    66,
			ProviderCalls:   200,
			ProviderFailurs: 50,
		},
	})

	if point.ProviderFailureRatio != 0.25 {
		t.Errorf("❌ Expected failure ratio 0.25, got %f", point.ProviderFailureRatio)
	}
	if point.TotalScans != 20 || point.CreditsSpent != 66 {
		t.Errorf("❌ Trend point lost counts: %+v", point)
	}

	zero := trendPoint(&UsageSnapshot{SnapshotID: "2026-08-30-030000"})
	if zero.ProviderFailureRatio != 0 {
		t.Errorf("❌ Zero provider calls must not divide: got %f", zero.ProviderFailureRatio)
	}

	t.Log("\n✅ Trend point summarization test passed")
}
