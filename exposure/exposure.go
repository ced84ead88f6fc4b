package exposure

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScanType identifies what kind of identifier a scan targets.
type ScanType string

const (
	ScanTypeEmail    ScanType = "email"
	ScanTypeUsername ScanType = "username"
	ScanTypeDomain   ScanType = "domain"
	ScanTypePhone    ScanType = "phone"
)

// IsValid reports whether t is one of the supported scan types.
func (t ScanType) IsValid() bool {
	switch t {
	case ScanTypeEmail, ScanTypeUsername, ScanTypeDomain, ScanTypePhone:
		return true
	default:
		return false
	}
}

// Severity is the UFM severity scale.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric ordering of a severity, higher meaning worse.
// Unknown severities rank below info so malformed provider data sinks to
// the bottom instead of the top.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Evidence is a single key/value observation attached to a finding.
type Evidence struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Finding is the Unified Finding Model: the common shape every provider's
// output is normalized into before storage or display.
type Finding struct {
	Provider   string         `json:"provider"`
	Kind       string         `json:"kind"`
	Severity   Severity       `json:"severity"`
	Confidence float64        `json:"confidence"`
	ObservedAt time.Time      `json:"observed_at"`
	Evidence   []Evidence     `json:"evidence"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// IdentityKey builds the deduplication identity for a finding:
// provider plus the "|"-joined, sorted "key=value" evidence pairs.
func (f Finding) IdentityKey() string {
	pairs := make([]string, len(f.Evidence))
	for i, e := range f.Evidence {
		pairs[i] = e.Key + "=" + e.Value
	}
	sortStrings(pairs)
	return f.Provider + "|" + strings.Join(pairs, "|")
}

// EvidenceValue returns the value of the first evidence entry with the given
// key, or "" when absent.
func (f Finding) EvidenceValue(key string) string {
	for _, e := range f.Evidence {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}

// sortStrings is an insertion sort; evidence lists are tiny and this keeps
// the identity computation allocation-free beyond the pairs slice.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// InfoFinding builds an informational finding attributed to a provider, used
// whenever a provider contributes no data (disabled, timed out, out of
// credits) so the client still sees why.
func InfoFinding(provider, kind, message string) Finding {
	return Finding{
		Provider:   provider,
		Kind:       kind,
		Severity:   SeverityInfo,
		Confidence: 1.0,
		ObservedAt: time.Now().UTC(),
		Evidence:   []Evidence{{Key: "message", Value: message}},
	}
}

// PremiumOptions selects the optional premium actors that run after the
// standard provider batch. These are slow, metered separately, and may be
// async-only.
type PremiumOptions struct {
	SocialMediaFinder bool     `json:"social_media_finder,omitempty"`
	OsintScraper      bool     `json:"osint_scraper,omitempty"`
	OsintKeywords     []string `json:"osint_keywords,omitempty"`
	DarkwebScraper    bool     `json:"darkweb_scraper,omitempty"`
	DarkwebURLs       []string `json:"darkweb_urls,omitempty"`
	DarkwebSearch     string   `json:"darkweb_search,omitempty"`
	DarkwebDepth      int      `json:"darkweb_depth,omitempty"`
	DarkwebPages      int      `json:"darkweb_pages,omitempty"`
}

// Any reports whether at least one premium actor is requested.
func (p *PremiumOptions) Any() bool {
	if p == nil {
		return false
	}
	return p.SocialMediaFinder || p.OsintScraper || p.DarkwebScraper
}

// ScanOptions carries the caller-selected knobs for a scan.
type ScanOptions struct {
	Providers      []string        `json:"providers,omitempty"`
	NoCache        bool            `json:"no_cache,omitempty"`
	IncludeDarkweb bool            `json:"include_darkweb,omitempty"`
	IncludeDating  bool            `json:"include_dating,omitempty"`
	IncludeNsfw    bool            `json:"include_nsfw,omitempty"`
	Premium        *PremiumOptions `json:"premium,omitempty"`
}

// ScanRequest is a validated, immutable request to scan one identifier.
type ScanRequest struct {
	ScanID      string      `json:"scan_id,omitempty"` // optional, generated when empty
	Type        ScanType    `json:"type"`
	Target      string      `json:"target"`
	WorkspaceID string      `json:"workspace_id"`
	Options     ScanOptions `json:"options"`
}

// Validate checks the request shape; it does not touch any store.
func (r *ScanRequest) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("type must be email, username, domain, or phone, got %q", r.Type)
	}
	target := strings.TrimSpace(r.Target)
	if target == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if len(target) > 255 {
		return fmt.Errorf("target too long (%d chars, max 255)", len(target))
	}
	if r.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if len(r.Options.Providers) > 20 {
		return fmt.Errorf("too many providers specified (%d, max 20)", len(r.Options.Providers))
	}
	for _, p := range r.Options.Providers {
		if !validProviderName(p) {
			return fmt.Errorf("invalid provider name %q", p)
		}
	}
	return nil
}

// validProviderName matches the allowed provider id alphabet: [a-z0-9-].
func validProviderName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

// ExecutionStatus is the outcome class of one provider task within a scan.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
	ExecutionSkipped ExecutionStatus = "skipped"
)

// ProviderExecutionResult is the ephemeral, per-task outcome. It is folded
// into the scan aggregates and the findings table, never persisted directly.
type ProviderExecutionResult struct {
	Provider     string          `json:"provider"`
	Status       ExecutionStatus `json:"status"`
	Findings     []Finding       `json:"findings"`
	DurationMs   int64           `json:"duration_ms"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// ScanStatus is the lifecycle state of a scan record.
type ScanStatus string

const (
	ScanPending          ScanStatus = "pending"
	ScanRunning          ScanStatus = "running"
	ScanCompleted        ScanStatus = "completed"
	ScanCompletedPartial ScanStatus = "completed_partial"
	ScanError            ScanStatus = "error"
	ScanTimeout          ScanStatus = "timeout"
)

// IsTerminal reports whether s ends the scan lifecycle. completed_partial is
// terminal for the synchronous portion; a later async callback may still
// promote it to completed.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanCompleted, ScanCompletedPartial, ScanError, ScanTimeout:
		return true
	default:
		return false
	}
}

// SeverityCounts aggregates findings by severity for a scan record.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// CountBySeverity tallies findings into severity buckets.
func CountBySeverity(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		default:
			c.Info++
		}
	}
	return c
}

// PrivacyScore derives the 0-100 exposure score shown on a completed scan.
func (c SeverityCounts) PrivacyScore() int {
	score := 100 - (c.Critical*10 + c.High*10 + c.Medium*5 + c.Low*2)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// CountByProvider tallies findings per provider id.
func CountByProvider(findings []Finding) map[string]int {
	counts := make(map[string]int, 8)
	for _, f := range findings {
		counts[f.Provider]++
	}
	return counts
}

// FormatCount renders "n/total" progress strings used in progress messages.
func FormatCount(n, total int) string {
	return strconv.Itoa(n) + "/" + strconv.Itoa(total)
}
