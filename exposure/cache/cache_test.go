package cache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ExposureScan/go-api/exposure"
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

func realFinding() exposure.Finding {
	return exposure.Finding{
		Provider:   "hibp",
		Kind:       "breach_exposure",
		Severity:   exposure.SeverityHigh,
		Confidence: 0.9,
		ObservedAt: time.Now().UTC(),
		Evidence:   []exposure.Evidence{{Key: "breach", Value: "MegaCorp2023"}},
	}
}

func TestIsPoisonedShapes(t *testing.T) {
	t.Log("\n🔍 Testing the poison predicate on raw payloads...")

	cases := []struct {
		name     string
		raw      string
		poisoned bool
	}{
		{"null literal", "null", true},
		{"empty string", "", true},
		{"empty array", "[]", true},
		{"object with empty findings", `{"findings":[]}`, true},
		{"object with error field", `{"error":"rate limited","findings":[{"provider":"hibp","kind":"x","severity":"info","confidence":1}]}`, true},
		{"error kind finding", `[{"provider":"hibp","kind":"provider_error","severity":"info","confidence":1}]`, true},
		{"auth status 401", `[{"provider":"hibp","kind":"x","severity":"info","confidence":1,"meta":{"status":401}}]`, true},
		{"auth status 403", `[{"provider":"hibp","kind":"x","severity":"info","confidence":1,"meta":{"status":403}}]`, true},
		{"auth fragment in evidence", `[{"provider":"hibp","kind":"x","severity":"info","confidence":1,"evidence":[{"key":"message","value":"Invalid API key supplied"}]}]`, true},
		{"garbage", "{not json", true},
		{"healthy array", `[{"provider":"hibp","kind":"breach_exposure","severity":"high","confidence":0.9,"evidence":[{"key":"breach","value":"MegaCorp2023"}]}]`, false},
	}

	for _, tc := range cases {
		if got := IsPoisoned(tc.raw); got != tc.poisoned {
			t.Errorf("❌ %s: IsPoisoned = %v, want %v", tc.name, got, tc.poisoned)
		}
	}
	t.Log("✅ Error-shaped and empty payloads are flagged, healthy ones are not")
}

func TestWithCacheMissExecutesAndWrites(t *testing.T) {
	t.Log("\n🔍 Testing cache miss behavior...")

	kv := NewMockKVStore()
	ctx := context.Background()
	key := ProviderKey("hibp", exposure.ScanTypeEmail, "user@example.com")

	calls := 0
	findings, hit, err := WithCache(ctx, kv, key, ProviderTTLSeconds, false, func(ctx context.Context) ([]exposure.Finding, error) {
		calls++
		return []exposure.Finding{realFinding()}, nil
	})
	if err != nil {
		t.Fatalf("❌ Unexpected error: %v", err)
	}
	if hit {
		t.Errorf("❌ First call should be a miss")
	}
	if calls != 1 {
		t.Errorf("❌ Expected exactly one execution, got %d", calls)
	}
	if len(findings) != 1 {
		t.Errorf("❌ Expected 1 finding, got %d", len(findings))
	}
	if _, exists := kv.data[key]; !exists {
		t.Errorf("❌ Healthy result should have been written to cache")
	}
	t.Log("✅ Miss executes the provider and memoizes the result")
}

func TestWithCacheHitSkipsExecution(t *testing.T) {
	t.Log("\n🔍 Testing cache hit behavior...")

	kv := NewMockKVStore()
	ctx := context.Background()
	key := ProviderKey("hibp", exposure.ScanTypeEmail, "user@example.com")

	data, _ := json.Marshal([]exposure.Finding{realFinding()})
	kv.data[key] = string(data)

	calls := 0
	findings, hit, err := WithCache(ctx, kv, key, ProviderTTLSeconds, false, func(ctx context.Context) ([]exposure.Finding, error) {
		calls++
		return nil, nil
	})
	if err != nil {
		t.Fatalf("❌ Unexpected error: %v", err)
	}
	if !hit {
		t.Errorf("❌ Expected a cache hit")
	}
	if calls != 0 {
		t.Errorf("❌ Provider should not run on a hit, ran %d times", calls)
	}
	if len(findings) != 1 || findings[0].Provider != "hibp" {
		t.Errorf("❌ Cached findings not returned intact")
	}
	t.Log("✅ Hit serves the cached findings without executing")
}

func TestWithCachePoisonedEntryTreatedAsMiss(t *testing.T) {
	t.Log("\n🔍 Testing poisoned-entry handling on read...")

	kv := NewMockKVStore()
	ctx := context.Background()
	key := ProviderKey("hibp", exposure.ScanTypeEmail, "user@example.com")

	// A remembered empty result must never be served.
	kv.data[key] = `{"findings":[]}`

	calls := 0
	_, hit, err := WithCache(ctx, kv, key, ProviderTTLSeconds, false, func(ctx context.Context) ([]exposure.Finding, error) {
		calls++
		return []exposure.Finding{realFinding()}, nil
	})
	if err != nil {
		t.Fatalf("❌ Unexpected error: %v", err)
	}
	if hit {
		t.Errorf("❌ Poisoned entry must not count as a hit")
	}
	if calls != 1 {
		t.Errorf("❌ Provider should have executed, ran %d times", calls)
	}
	var stored []exposure.Finding
	if uerr := json.Unmarshal([]byte(kv.data[key]), &stored); uerr != nil || len(stored) != 1 {
		t.Errorf("❌ Fresh healthy result should have replaced the poisoned entry")
	}
	t.Log("✅ Poisoned entries are deleted, re-executed, and replaced")
}

func TestWithCachePoisonedResultNotWritten(t *testing.T) {
	t.Log("\n🔍 Testing that empty fresh results are never cached...")

	kv := NewMockKVStore()
	ctx := context.Background()
	key := ProviderKey("hibp", exposure.ScanTypeEmail, "user@example.com")

	findings, _, err := WithCache(ctx, kv, key, ProviderTTLSeconds, false, func(ctx context.Context) ([]exposure.Finding, error) {
		return []exposure.Finding{}, nil
	})
	if err != nil {
		t.Fatalf("❌ Unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("❌ Empty result should pass through unchanged")
	}
	if _, exists := kv.data[key]; exists {
		t.Errorf("❌ Empty result must not be written to cache")
	}
	t.Log("✅ The caller gets the empty result, but nothing is memoized")
}

func TestWithCacheNoCacheBypassesAndInvalidates(t *testing.T) {
	t.Log("\n🔍 Testing the no-cache escape hatch...")

	kv := NewMockKVStore()
	ctx := context.Background()
	key := ProviderKey("hibp", exposure.ScanTypeEmail, "user@example.com")

	stale, _ := json.Marshal([]exposure.Finding{realFinding()})
	kv.data[key] = string(stale)

	calls := 0
	fresh := realFinding()
	fresh.Evidence = []exposure.Evidence{{Key: "breach", Value: "NewBreach2026"}}
	_, hit, err := WithCache(ctx, kv, key, ProviderTTLSeconds, true, func(ctx context.Context) ([]exposure.Finding, error) {
		calls++
		return []exposure.Finding{fresh}, nil
	})
	if err != nil {
		t.Fatalf("❌ Unexpected error: %v", err)
	}
	if hit || calls != 1 {
		t.Errorf("❌ no-cache should force execution (hit=%v calls=%d)", hit, calls)
	}
	var stored []exposure.Finding
	if uerr := json.Unmarshal([]byte(kv.data[key]), &stored); uerr != nil {
		t.Fatalf("❌ Failed to decode stored entry: %v", uerr)
	}
	if stored[0].EvidenceValue("breach") != "NewBreach2026" {
		t.Errorf("❌ no-cache should refresh the entry for subsequent scans")
	}
	t.Log("✅ no-cache bypasses the read but refreshes the entry")
}

func TestWholeScanCacheRoundTrip(t *testing.T) {
	t.Log("\n🔍 Testing the whole-scan cache...")

	kv := NewMockKVStore()
	ctx := context.Background()
	key := WholeScanKey("ws-1", exposure.ScanTypeUsername, "johndoe")

	findings := []exposure.Finding{realFinding()}
	if err := StoreWholeScan(ctx, kv, key, "scan-123", findings); err != nil {
		t.Fatalf("❌ Failed to store whole-scan entry: %v", err)
	}

	scanID, cached, ok := LookupWholeScan(ctx, kv, key)
	if !ok {
		t.Fatalf("❌ Expected a whole-scan hit")
	}
	if scanID != "scan-123" {
		t.Errorf("❌ Expected originating scan id scan-123, got %s", scanID)
	}
	if len(cached) != 1 || cached[0].Provider != "hibp" {
		t.Errorf("❌ Cached findings not returned intact")
	}

	// Empty finding sets must not be persisted at all.
	emptyKey := WholeScanKey("ws-1", exposure.ScanTypeUsername, "nobody")
	if err := StoreWholeScan(ctx, kv, emptyKey, "scan-456", nil); err != nil {
		t.Fatalf("❌ Unexpected error storing empty set: %v", err)
	}
	if _, _, ok := LookupWholeScan(ctx, kv, emptyKey); ok {
		t.Errorf("❌ Empty whole-scan entry should never be served")
	}
	t.Log("✅ Whole-scan cache round-trips and rejects empty sets")
}
