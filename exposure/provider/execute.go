package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/normalize"
)

// Execute runs one provider call under its timeout budget, with one
// best-effort retry for idempotent reads and a warning log at 80% of the
// budget. Execute never returns an error: a timeout resolves to an
// informational provider.timeout finding and a failure to a failed result,
// because the absence of data must never abort the scan. Cancellation of ctx
// abandons the wait; the adapter goroutine is left to finish on its own.
func Execute(ctx context.Context, adapter Adapter, info Info, target string, scanType exposure.ScanType, workspaceID string) exposure.ProviderExecutionResult {
	budget := info.Timeout
	if budget <= 0 {
		budget = DefaultTimeout
	}

	start := time.Now()
	result := exposure.ProviderExecutionResult{Provider: info.ID}

	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Mid-flight observation only; fires at 80% of the budget.
	warn := time.AfterFunc(budget*4/5, func() {
		slog.Warn("Provider nearing timeout budget",
			"provider", info.ID, "budget", budget, "elapsed", time.Since(start))
	})
	defer warn.Stop()

	findings, err := invokeOnce(execCtx, adapter, info, target, scanType, workspaceID)
	if err != nil && info.Idempotent && execCtx.Err() == nil {
		// One in-wrapper retry for side-effect-free reads, distinct from the
		// queue's own retry policy.
		slog.Debug("Retrying idempotent provider call", "provider", info.ID, "error", err)
		findings, err = invokeOnce(execCtx, adapter, info, target, scanType, workspaceID)
	}

	result.DurationMs = time.Since(start).Milliseconds()

	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		result.Status = exposure.ExecutionTimeout
		result.ErrorMessage = "provider timed out"
		result.Findings = []exposure.Finding{
			exposure.InfoFinding(info.ID, "provider.timeout",
				"Provider did not respond within "+budget.String()+"; partial results may be missing."),
		}
		slog.Warn("Provider timed out", "provider", info.ID, "budget", budget)
	case err != nil:
		result.Status = exposure.ExecutionFailed
		result.ErrorMessage = err.Error()
		slog.Error("Provider failed", "provider", info.ID, "error", err, "duration_ms", result.DurationMs)
	default:
		result.Status = exposure.ExecutionSuccess
		result.Findings = sanitize(info.ID, findings)
		slog.Debug("Provider completed",
			"provider", info.ID, "findings", len(result.Findings), "duration_ms", result.DurationMs)
	}

	return result
}

// invokeOnce races the adapter call against the execution context so a stuck
// adapter cannot hold a worker past the budget. The goroutine's result is
// dropped when the wait has already been abandoned.
func invokeOnce(ctx context.Context, adapter Adapter, info Info, target string, scanType exposure.ScanType, workspaceID string) ([]exposure.Finding, error) {
	type outcome struct {
		findings []exposure.Finding
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		findings, err := adapter.Invoke(ctx, info.ID, target, scanType, workspaceID)
		done <- outcome{findings: findings, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.findings, o.err
	}
}

// sanitize backfills provider attribution, timestamps, and confidence on raw
// adapter output. Providers are unreliable about their own metadata.
func sanitize(providerID string, findings []exposure.Finding) []exposure.Finding {
	now := time.Now().UTC()
	for i := range findings {
		if findings[i].Provider == "" {
			findings[i].Provider = providerID
		}
		if findings[i].ObservedAt.IsZero() {
			findings[i].ObservedAt = now
		}
		if findings[i].Severity.Rank() == 0 {
			findings[i].Severity = exposure.SeverityInfo
		}
		findings[i].Confidence = normalize.Confidence(findings[i].Confidence)
	}
	return findings
}
