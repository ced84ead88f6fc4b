// Package normalize merges heterogeneous provider output into a stable,
// client-facing shape: deduplicated, severity-sorted, with confidence values
// forced into [0,1].
package normalize

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ExposureScan/go-api/exposure"
)

// DefaultConfidence is assigned when a provider reports no usable confidence.
const DefaultConfidence = 0.7

// Deduplicate removes findings with duplicate identity keys (provider plus
// sorted evidence pairs). The first occurrence wins; input order is preserved.
func Deduplicate(findings []exposure.Finding) []exposure.Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]exposure.Finding, 0, len(findings))
	for _, f := range findings {
		key := f.IdentityKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Sort orders findings by severity rank descending, then confidence
// descending. The sort is stable so equal findings keep their input order.
func Sort(findings []exposure.Finding) []exposure.Finding {
	out := make([]exposure.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Finalize is the post-aggregation pipeline: dedup, sort, and — when the
// result set comes out empty — a single synthetic no-hits finding so the
// client always gets a non-empty, informative result.
func Finalize(findings []exposure.Finding) []exposure.Finding {
	out := Sort(Deduplicate(findings))
	if len(out) == 0 {
		out = append(out, NoHitsFinding())
	}
	return out
}

// NoHitsFinding is the synthetic finding returned for a clean scan.
func NoHitsFinding() exposure.Finding {
	return exposure.Finding{
		Provider:   "system",
		Kind:       "info.no_hits",
		Severity:   exposure.SeverityInfo,
		Confidence: 1,
		ObservedAt: time.Now().UTC(),
		Evidence: []exposure.Evidence{{
			Key:   "message",
			Value: "No results found across selected providers. Try different providers or premium sources.",
		}},
	}
}

// Confidence normalizes an arbitrary provider confidence value into [0,1].
// Accepted inputs: floats in [0,1], percentages (1,100], numeric strings of
// either, and the labels high/medium/low. Out-of-range numbers are clamped;
// anything unrecognized maps to DefaultConfidence with a logged default —
// confidence is advisory and never a reason to reject a finding.
func Confidence(v any) float64 {
	switch c := v.(type) {
	case nil:
		return DefaultConfidence
	case float64:
		return clampConfidence(c)
	case float32:
		return clampConfidence(float64(c))
	case int:
		return clampConfidence(float64(c))
	case int64:
		return clampConfidence(float64(c))
	case string:
		return confidenceFromString(c)
	default:
		slog.Debug("Unrecognized confidence value, using default", "value", v)
		return DefaultConfidence
	}
}

func confidenceFromString(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return 0.9
	case "medium", "med":
		return 0.6
	case "low":
		return 0.3
	case "":
		return DefaultConfidence
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return clampConfidence(f)
	}
	slog.Debug("Unparseable confidence string, using default", "value", s)
	return DefaultConfidence
}

// clampConfidence maps a raw number into [0,1]. Values in (1,100] are read as
// percentages, since several providers report whole-number percent scales.
func clampConfidence(f float64) float64 {
	if f > 1 && f <= 100 {
		return f / 100
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
