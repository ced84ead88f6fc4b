// Package guardrail enforces the pre-flight cost and abuse limits evaluated
// once per scan, before any provider is invoked. A violation is a
// client-visible rejection with no side effects, never a partial scan.
package guardrail

import (
	"context"
	"fmt"

	"github.com/ExposureScan/go-api/exposure"
)

// Tier is a workspace subscription tier.
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// Limits are the per-tier ceilings.
type Limits struct {
	MaxProvidersPerScan int
	MaxScansPerDay      int
	// MonthlyScanLimit of 0 means unlimited.
	MonthlyScanLimit int
}

// defaultLimits maps tiers to their ceilings. Unknown tiers get free limits.
var defaultLimits = map[Tier]Limits{
	TierFree:     {MaxProvidersPerScan: 5, MaxScansPerDay: 10, MonthlyScanLimit: 10},
	TierPro:      {MaxProvidersPerScan: 12, MaxScansPerDay: 50, MonthlyScanLimit: 100},
	TierBusiness: {MaxProvidersPerScan: 20, MaxScansPerDay: 200, MonthlyScanLimit: 0},
}

// LimitsForTier returns the ceilings for a tier.
func LimitsForTier(t Tier) Limits {
	if l, ok := defaultLimits[t]; ok {
		return l
	}
	return defaultLimits[TierFree]
}

// GlobalConcurrentScanCeiling bounds simultaneously running scans across all
// workspaces.
const GlobalConcurrentScanCeiling = 50

// Workspace is the caller-side view the evaluator needs; resolved by the
// caller from the workspace record.
type Workspace struct {
	ID         string
	Tier       Tier
	Privileged bool
	// ScansUsedMonthly / ScanLimitMonthly mirror the workspace counters; a
	// zero limit falls back to the tier default.
	ScansUsedMonthly int
	ScanLimitMonthly int
	// ConsentedCategories lists the sensitive categories (dating, nsfw,
	// darkweb) this workspace has recorded consent for.
	ConsentedCategories []string
}

// UsageReader exposes the live counters the evaluator checks. Implemented by
// the scan repository.
type UsageReader interface {
	ScansToday(ctx context.Context, workspaceID string) (int, error)
	RunningScans(ctx context.Context) (int, error)
}

// RejectionError is a client-visible guardrail rejection. Code is a stable
// machine-readable tag; Message is upgrade/retry oriented.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

func reject(code, format string, args ...any) error {
	return &RejectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Evaluator runs the pre-flight checks.
type Evaluator struct {
	usage UsageReader
}

// New creates an Evaluator over the given usage source.
func New(usage UsageReader) *Evaluator {
	return &Evaluator{usage: usage}
}

// Evaluate applies, in order: consent for sensitive options, provider-count
// ceiling, monthly quota, daily ceiling, and the global concurrency ceiling.
// Privileged workspaces bypass the limit checks but not consent. Returns nil
// when the scan may proceed; otherwise a *RejectionError.
func (ev *Evaluator) Evaluate(ctx context.Context, ws Workspace, req *exposure.ScanRequest, providerCount int) error {
	if err := checkConsent(ws, req.Options); err != nil {
		return err
	}

	if ws.Privileged {
		return nil
	}

	limits := LimitsForTier(ws.Tier)
	if ws.ScanLimitMonthly > 0 {
		limits.MonthlyScanLimit = ws.ScanLimitMonthly
	}

	if providerCount > limits.MaxProvidersPerScan {
		return reject("provider_limit",
			"Requested %d providers but the %s tier allows %d per scan. Reduce the selection or upgrade your plan.",
			providerCount, ws.Tier, limits.MaxProvidersPerScan)
	}

	if limits.MonthlyScanLimit > 0 && ws.ScansUsedMonthly >= limits.MonthlyScanLimit {
		return reject("monthly_limit",
			"Monthly scan limit reached (%d/%d). Upgrade your plan for more scans.",
			ws.ScansUsedMonthly, limits.MonthlyScanLimit)
	}

	today, err := ev.usage.ScansToday(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to count today's scans: %w", err)
	}
	if today >= limits.MaxScansPerDay {
		return reject("daily_limit",
			"Daily scan limit reached (%d/%d). Try again tomorrow or upgrade your plan.",
			today, limits.MaxScansPerDay)
	}

	running, err := ev.usage.RunningScans(ctx)
	if err != nil {
		return fmt.Errorf("failed to count running scans: %w", err)
	}
	if running >= GlobalConcurrentScanCeiling {
		return reject("system_busy",
			"The system is at scan capacity (%d running). Please retry in a few minutes.",
			running)
	}

	return nil
}

// checkConsent rejects option combinations that require a sensitive-category
// consent the workspace has not recorded. Consent bookkeeping itself lives
// outside this module.
func checkConsent(ws Workspace, opts exposure.ScanOptions) error {
	has := func(cat string) bool {
		for _, c := range ws.ConsentedCategories {
			if c == cat {
				return true
			}
		}
		return false
	}

	if opts.IncludeDating && !has("dating") {
		return reject("dating_consent_required", "Dating-site sources require recorded consent for this workspace.")
	}
	if opts.IncludeNsfw && !has("nsfw") {
		return reject("nsfw_consent_required", "NSFW sources require recorded consent for this workspace.")
	}
	if opts.IncludeDarkweb && !has("darkweb") {
		return reject("darkweb_consent_required", "Darkweb sources require recorded consent for this workspace.")
	}
	return nil
}
