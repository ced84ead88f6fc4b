// Package cache implements the two memoization tiers used by the scan
// orchestrator on top of the shared KV store: a per-provider result cache and
// a whole-scan cache, both guarded against poisoning by empty or error-shaped
// payloads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/store"
)

const (
	// ProviderTTLSeconds is how long a provider's result is memoized.
	ProviderTTLSeconds = 24 * 60 * 60
	// WholeScanTTLSeconds is how long an entire username scan may be reused.
	WholeScanTTLSeconds = 7 * 24 * 60 * 60
)

// ProviderKey builds the cache key for a provider call.
func ProviderKey(provider string, scanType exposure.ScanType, target string) string {
	return fmt.Sprintf("scan:%s:%s:%s", provider, scanType, target)
}

// WorkspaceProviderKey scopes a provider cache key to a workspace, for
// tenant-sensitive providers whose results must not leak across workspaces.
func WorkspaceProviderKey(workspaceID, provider string, scanType exposure.ScanType, target string) string {
	return fmt.Sprintf("scan:%s:%s:%s:%s", workspaceID, provider, scanType, target)
}

// WholeScanKey builds the whole-scan cache key for a workspace and target.
func WholeScanKey(workspaceID string, scanType exposure.ScanType, normalizedTarget string) string {
	return fmt.Sprintf("fullscan:%s:%s:%s", workspaceID, scanType, normalizedTarget)
}

// cachedScan is the whole-scan cache payload: the scan that produced the
// findings plus the findings themselves.
type cachedScan struct {
	ScanID   string             `json:"scan_id"`
	Findings []exposure.Finding `json:"findings"`
}

// authFailureFragments are evidence substrings that mark a cached result as a
// remembered provider outage rather than a genuine negative result.
var authFailureFragments = []string{
	"unauthorized",
	"invalid api key",
	"missing api key",
	"authentication failed",
	"forbidden",
}

// IsPoisoned reports whether a raw cached payload must not be served: null,
// an empty array, an object with an empty findings array, or anything that
// embeds error indicators. A transient provider outage (a missing API key,
// say) must not be remembered for 24 hours as "no results".
func IsPoisoned(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return true
	}

	// Bare findings array.
	if strings.HasPrefix(trimmed, "[") {
		var findings []exposure.Finding
		if err := json.Unmarshal([]byte(trimmed), &findings); err != nil {
			return true
		}
		return FindingsPoisoned(findings)
	}

	// Object wrapper: {"findings": [...], ...} possibly with error fields.
	var wrapper struct {
		Error    any                `json:"error"`
		Findings []exposure.Finding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
		return true
	}
	if wrapper.Error != nil {
		return true
	}
	return FindingsPoisoned(wrapper.Findings)
}

// FindingsPoisoned applies the poison predicate to a decoded finding set:
// empty sets and error-shaped findings are never cached and never served.
func FindingsPoisoned(findings []exposure.Finding) bool {
	if len(findings) == 0 {
		return true
	}
	for _, f := range findings {
		if f.Kind == "provider_error" {
			return true
		}
		if status, ok := metaStatus(f.Meta); ok && (status == 401 || status == 403) {
			return true
		}
		for _, e := range f.Evidence {
			lower := strings.ToLower(e.Value)
			for _, frag := range authFailureFragments {
				if strings.Contains(lower, frag) {
					return true
				}
			}
		}
	}
	return false
}

// metaStatus extracts a numeric meta.status if present. JSON numbers decode
// as float64.
func metaStatus(meta map[string]any) (int, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta["status"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		if v == "401" {
			return 401, true
		}
		if v == "403" {
			return 403, true
		}
	}
	return 0, false
}

// WithCache memoizes fn's findings under key with the given TTL. A poisoned
// cached value is deleted and treated as a miss; a poisoned fresh result is
// returned to the caller but never written back. When noCache is set the read
// is bypassed and any stale entry is deleted before the fresh result is
// written. The second return value reports whether the result came from
// cache.
func WithCache(ctx context.Context, kv store.KVStore, key string, ttlSeconds int, noCache bool, fn func(context.Context) ([]exposure.Finding, error)) ([]exposure.Finding, bool, error) {
	if !noCache {
		if resp, err := kv.GetValue(ctx, key); err == nil {
			raw := resp.Message.Value
			if IsPoisoned(raw) {
				slog.Warn("Deleting poisoned cache entry", "key", key)
				_ = kv.DeleteValue(ctx, key)
			} else {
				var findings []exposure.Finding
				if err := json.Unmarshal([]byte(raw), &findings); err == nil {
					slog.Debug("Cache hit", "key", key, "findings", len(findings))
					return findings, true, nil
				}
				// Undecodable entry: drop it and fall through to fn.
				_ = kv.DeleteValue(ctx, key)
			}
		} else if !errors.Is(err, store.ErrKeyNotFound) {
			// Store trouble degrades to a miss, never to a failed scan.
			slog.Warn("Cache read failed, treating as miss", "key", key, "error", err)
		}
	} else {
		_ = kv.DeleteValue(ctx, key)
	}

	findings, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	if !FindingsPoisoned(findings) {
		if data, merr := json.Marshal(findings); merr == nil {
			if serr := kv.SetValueWithTTL(ctx, key, string(data), ttlSeconds); serr != nil {
				slog.Warn("Cache write failed", "key", key, "error", serr)
			}
		}
	}

	return findings, false, nil
}

// LookupWholeScan checks the whole-scan cache and returns the prior scan id
// and findings on a hit. Poisoned entries are deleted and reported as a miss.
func LookupWholeScan(ctx context.Context, kv store.KVStore, key string) (string, []exposure.Finding, bool) {
	resp, err := kv.GetValue(ctx, key)
	if err != nil {
		return "", nil, false
	}

	var cached cachedScan
	if uerr := json.Unmarshal([]byte(resp.Message.Value), &cached); uerr != nil {
		_ = kv.DeleteValue(ctx, key)
		return "", nil, false
	}
	if FindingsPoisoned(cached.Findings) {
		slog.Warn("Deleting poisoned whole-scan cache entry", "key", key)
		_ = kv.DeleteValue(ctx, key)
		return "", nil, false
	}
	return cached.ScanID, cached.Findings, true
}

// StoreWholeScan writes a completed scan's findings to the whole-scan cache.
// Empty or error-shaped result sets are not written.
func StoreWholeScan(ctx context.Context, kv store.KVStore, key, scanID string, findings []exposure.Finding) error {
	if FindingsPoisoned(findings) {
		return nil
	}
	data, err := json.Marshal(cachedScan{ScanID: scanID, Findings: findings})
	if err != nil {
		return fmt.Errorf("failed to marshal whole-scan cache entry: %w", err)
	}
	return kv.SetValueWithTTL(ctx, key, string(data), WholeScanTTLSeconds)
}
