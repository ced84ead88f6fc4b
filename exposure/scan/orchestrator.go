// Package scan implements the scan orchestration engine: one logical scan
// request fanned out across independent intelligence providers, executed
// under bounded concurrency with per-provider budgets, metered by the credit
// ledger, memoized through the result cache, and folded back into a single
// ranked finding set with exactly one terminal status.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/cache"
	"github.com/ExposureScan/go-api/exposure/credits"
	"github.com/ExposureScan/go-api/exposure/guardrail"
	"github.com/ExposureScan/go-api/exposure/killswitch"
	"github.com/ExposureScan/go-api/exposure/logging"
	"github.com/ExposureScan/go-api/exposure/normalize"
	"github.com/ExposureScan/go-api/exposure/postgres/models"
	"github.com/ExposureScan/go-api/exposure/provider"
	"github.com/ExposureScan/go-api/exposure/queue"
	"github.com/ExposureScan/go-api/exposure/store"
	"github.com/ExposureScan/go-api/exposure/workq"
	"github.com/ExposureScan/go-api/utils"
)

// errProviderExecution marks a provider task whose execution result carries
// the real outcome; it exists so the cache layer never memoizes timeouts or
// failures.
var errProviderExecution = errors.New("provider execution did not succeed")

// Options tunes the orchestrator's execution envelope.
type Options struct {
	// QueueOptions configures the standard provider pool. Zero values take
	// the production defaults (7 workers, 3 retries, 2s/4s/8s backoff).
	QueueOptions workq.Options
	// SoftBudget is the wall-clock budget for the provider batch; exceeding
	// it finishes the scan as completed_partial with whatever has settled.
	SoftBudget time.Duration
	// HardTimeout is the absolute ceiling for the whole orchestration;
	// exceeding it finishes the scan as timeout.
	HardTimeout time.Duration
	// LowCreditThreshold triggers the low-balance notification.
	LowCreditThreshold int
}

// DefaultOptions returns the production execution envelope.
func DefaultOptions() Options {
	return Options{
		QueueOptions: workq.DefaultOptions(),
		SoftBudget:   4 * time.Minute,
		HardTimeout:  5 * time.Minute,
	}
}

// Orchestrator runs scans. One instance serves all scans in the process;
// per-scan state lives on the goroutine.
type Orchestrator struct {
	repo     Repository
	kv       store.KVStore
	registry *provider.Registry
	adapter  provider.Adapter
	gate     *credits.Gate
	guard    *guardrail.Evaluator
	kill     *killswitch.Registry
	logger   *logging.ScanLogger
	opts     Options

	wg sync.WaitGroup
}

// New creates an Orchestrator. logger may be nil, in which case the shared
// global logger is used.
func New(repo Repository, kv store.KVStore, registry *provider.Registry, adapter provider.Adapter, gate *credits.Gate, kill *killswitch.Registry, logger *logging.ScanLogger, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.SoftBudget <= 0 {
		opts.SoftBudget = def.SoftBudget
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = def.HardTimeout
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Orchestrator{
		repo:     repo,
		kv:       kv,
		registry: registry,
		adapter:  adapter,
		gate:     gate,
		guard:    guardrail.New(repo),
		kill:     kill,
		logger:   logger,
		opts:     opts,
	}
}

// StartResponse is what the caller gets back immediately: the scan is
// accepted and running (or served whole from cache); results arrive through
// the progress and results reads.
type StartResponse struct {
	ScanID        string              `json:"scan_id"`
	Status        exposure.ScanStatus `json:"status"`
	ProviderCount int                 `json:"provider_count"`
	Cached        bool                `json:"cached,omitempty"`
	FindingsCount int                 `json:"findings_count,omitempty"`
}

// StartScan validates and admits one scan request. On success the provider
// fan-out continues on a supervised background goroutine and the response
// returns right away; rejections (validation, guardrails) happen before any
// record is created or credit spent.
func (o *Orchestrator) StartScan(ctx context.Context, req *exposure.ScanRequest) (*StartResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan request: %w", err)
	}

	target, err := utils.NormalizeTarget(req.Type, req.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid scan target: %w", err)
	}

	ws, err := o.repo.GetWorkspace(ctx, req.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspace lookup failed: %w", err)
	}

	providers := o.registry.Resolve(req.Options.Providers, req.Type)

	gws := guardrail.Workspace{
		ID:                  ws.ID,
		Tier:                guardrail.Tier(ws.SubscriptionTier),
		Privileged:          ws.Privileged,
		ScansUsedMonthly:    ws.ScansUsedMonthly,
		ScanLimitMonthly:    ws.ScanLimitMonthly,
		ConsentedCategories: []string(ws.ConsentedCategories),
	}
	if err := o.guard.Evaluate(ctx, gws, req, len(providers)); err != nil {
		return nil, err
	}

	scanID := req.ScanID
	if scanID == "" {
		scanID = uuid.New().String()
	}

	// Whole-scan reuse applies to username scans only: username footprints
	// are stable over days, while breach and infrastructure data are not.
	if req.Type == exposure.ScanTypeUsername && !req.Options.NoCache {
		if resp, ok := o.serveFromWholeScanCache(ctx, scanID, ws.ID, req.Type, target); ok {
			return resp, nil
		}
	}

	now := time.Now().UTC()
	record := &models.Scan{
		ID:          scanID,
		WorkspaceID: ws.ID,
		ScanType:    string(req.Type),
		Target:      target,
		Status:      models.ScanStatusPending,
		CreatedAt:   now,
	}
	if err := o.repo.CreateScan(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create scan: %w", err)
	}

	if err := o.repo.IncrementMonthlyUsage(ctx, ws.ID); err != nil {
		// Quota drift is tolerable; a lost scan is not.
		slog.Warn("Failed to increment monthly usage", "workspace", ws.ID, "error", err)
	}

	if err := o.repo.UpdateScan(ctx, scanID, map[string]any{
		"status":     models.ScanStatusRunning,
		"started_at": now,
	}); err != nil {
		slog.Warn("Failed to mark scan running", "scan_id", scanID, "error", err)
	}

	o.logger.LogScanEvent(scanID, "scan_started", "Scan accepted", map[string]any{
		"type":      string(req.Type),
		"providers": providers,
		"workspace": ws.ID,
	})

	run := &scanRun{
		scanID:    scanID,
		workspace: ws,
		scanType:  req.Type,
		target:    target,
		providers: providers,
		noCache:   req.Options.NoCache,
		premium:   req.Options.Premium,
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Scan goroutine panicked", "scan_id", scanID, "panic", r)
				o.writeTerminal(scanID, exposure.ScanError, nil, fmt.Sprintf("internal error: %v", r))
			}
		}()
		o.run(run)
	}()

	return &StartResponse{
		ScanID:        scanID,
		Status:        exposure.ScanRunning,
		ProviderCount: len(providers),
	}, nil
}

// Wait blocks until all in-flight scans finish. For shutdown and tests.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// scanRun is the per-scan execution state carried onto the background
// goroutine.
type scanRun struct {
	scanID    string
	workspace *models.Workspace
	scanType  exposure.ScanType
	target    string
	providers []string
	noCache   bool
	premium   *exposure.PremiumOptions
}

// serveFromWholeScanCache checks the whole-scan cache and, on a hit, creates
// a completed scan record cloned from the prior scan's findings: zero
// provider calls, zero credits. Returns false on a miss.
func (o *Orchestrator) serveFromWholeScanCache(ctx context.Context, scanID, workspaceID string, scanType exposure.ScanType, target string) (*StartResponse, bool) {
	key := cache.WholeScanKey(workspaceID, scanType, target)
	priorScanID, findings, ok := cache.LookupWholeScan(ctx, o.kv, key)
	if !ok {
		return nil, false
	}

	counts := exposure.CountBySeverity(findings)
	now := time.Now().UTC()
	record := &models.Scan{
		ID:               scanID,
		WorkspaceID:      workspaceID,
		ScanType:         string(scanType),
		Target:           target,
		Status:           models.ScanStatusCompleted,
		CriticalCount:    counts.Critical,
		HighCount:        counts.High,
		MediumCount:      counts.Medium,
		LowCount:         counts.Low,
		InfoCount:        counts.Info,
		PrivacyScore:     counts.PrivacyScore(),
		TotalFindings:    len(findings),
		ProviderCounts:   providerCountsJSON(findings),
		CacheKey:         &key,
		CachedFromScanID: &priorScanID,
		CreatedAt:        now,
		StartedAt:        &now,
		CompletedAt:      &now,
	}
	if err := o.repo.CreateScan(ctx, record); err != nil {
		slog.Warn("Failed to create cached-scan record, falling through to live scan",
			"scan_id", scanID, "error", err)
		return nil, false
	}
	if err := o.repo.InsertFindings(ctx, scanID, workspaceID, findings); err != nil {
		slog.Warn("Failed to clone cached findings", "scan_id", scanID, "error", err)
	}
	_ = o.repo.UpsertProgress(ctx, &models.ScanProgress{
		ScanID:        scanID,
		Status:        models.ScanStatusCompleted,
		FindingsCount: len(findings),
		Message:       "Served from scan cache",
	})

	o.logger.LogScanEvent(scanID, "cache_hit", "Whole-scan cache hit", map[string]any{
		"cached_from": priorScanID,
		"findings":    len(findings),
	})
	slog.Info("Scan served from whole-scan cache",
		"scan_id", scanID, "cached_from", priorScanID, "findings", len(findings))

	return &StartResponse{
		ScanID:        scanID,
		Status:        exposure.ScanCompleted,
		ProviderCount: 0,
		Cached:        true,
		FindingsCount: len(findings),
	}, true
}

// run executes the provider fan-out for one scan. It owns the scan's
// terminal status: exactly one terminal write happens, with an error
// fallback if finalization itself fails.
func (o *Orchestrator) run(sr *scanRun) {
	runCtx, cancel := context.WithTimeout(context.Background(), o.opts.HardTimeout)
	defer cancel()

	// The total covers every provider that will produce an outcome, premium
	// extras included, so completed can never overrun it.
	total := len(sr.providers) + len(premiumProviders(sr.premium, sr.providers))
	tracker := newProgressTracker(sr.scanID, o.repo, total)
	tracker.publish(runCtx, "Starting provider queries")

	// The provider batch runs under the soft budget; the hard ceiling only
	// guards finalization from a wedged batch.
	batchCtx, batchCancel := context.WithTimeout(runCtx, o.opts.SoftBudget)
	results := o.executeBatch(batchCtx, sr, tracker)
	softExpired := batchCtx.Err() == context.DeadlineExceeded
	batchCancel()

	asyncPending := o.registry.HasAsyncOnly(sr.providers)

	if sr.premium.Any() {
		tracker.publish(runCtx, "Running premium sources")
		premiumResults, premiumAsync := o.executePremium(runCtx, sr, tracker)
		results = append(results, premiumResults...)
		asyncPending = asyncPending || premiumAsync
	}

	var all []exposure.Finding
	for _, res := range results {
		all = append(all, res.Findings...)
	}
	findings := normalize.Finalize(all)

	status := exposure.ScanCompleted
	errMsg := ""
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		status = exposure.ScanTimeout
		errMsg = "scan exceeded the orchestration time ceiling"
	case softExpired:
		status = exposure.ScanCompletedPartial
		errMsg = "scan time budget exceeded; partial results"
	case asyncPending:
		status = exposure.ScanCompletedPartial
	}

	o.writeTerminal(sr.scanID, status, findings, errMsg)
	tracker.finished(context.Background(), string(status), len(findings), terminalMessage(status))

	if status == exposure.ScanCompleted && sr.scanType == exposure.ScanTypeUsername {
		key := cache.WholeScanKey(sr.workspace.ID, sr.scanType, sr.target)
		if err := cache.StoreWholeScan(context.Background(), o.kv, key, sr.scanID, findings); err != nil {
			slog.Warn("Failed to store whole-scan cache entry", "scan_id", sr.scanID, "error", err)
		}
	}

	counts := exposure.CountBySeverity(findings)
	queue.PublishAsync(queue.ScanEventsQueue, map[string]any{
		"event":          "scan_finished",
		"scan_id":        sr.scanID,
		"workspace_id":   sr.workspace.ID,
		"status":         string(status),
		"total_findings": len(findings),
		"privacy_score":  counts.PrivacyScore(),
		"timestamp":      time.Now().UTC(),
	})
	o.logger.LogScanEvent(sr.scanID, "scan_finished", "Scan reached terminal status", map[string]any{
		"status":   string(status),
		"findings": len(findings),
	})
	slog.Info("Scan finished",
		"scan_id", sr.scanID, "status", status,
		"findings", len(findings), "providers", len(sr.providers))
}

// executeBatch fans the scan's providers out over the work queue.
// Heavyweight providers run in their own single-worker pool so a long
// crawler cannot starve the fast lookup APIs.
func (o *Orchestrator) executeBatch(ctx context.Context, sr *scanRun, tracker *progressTracker) []exposure.ProviderExecutionResult {
	var standard, heavy []string
	for _, id := range sr.providers {
		if info, ok := o.registry.Lookup(id); ok && info.Heavyweight {
			heavy = append(heavy, id)
			continue
		}
		standard = append(standard, id)
	}

	makeTasks := func(ids []string) []workq.Task[exposure.ProviderExecutionResult] {
		tasks := make([]workq.Task[exposure.ProviderExecutionResult], len(ids))
		for i, id := range ids {
			providerID := id
			tasks[i] = func(taskCtx context.Context) (exposure.ProviderExecutionResult, error) {
				return o.executeProvider(taskCtx, sr, providerID, tracker), nil
			}
		}
		return tasks
	}

	var (
		mu      sync.Mutex
		results []exposure.ProviderExecutionResult
	)
	collect := func(settled []workq.Settled[exposure.ProviderExecutionResult], ids []string) {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range settled {
			if s.Fulfilled {
				results = append(results, s.Value)
				continue
			}
			// Only context cancellation reaches here: provider tasks convert
			// their own failures into results.
			results = append(results, exposure.ProviderExecutionResult{
				Provider:     ids[s.Index],
				Status:       exposure.ExecutionSkipped,
				ErrorMessage: s.Err.Error(),
				Findings: []exposure.Finding{
					exposure.InfoFinding(ids[s.Index], "provider.skipped",
						"Provider was not executed before the scan time budget expired."),
				},
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(standard) > 0 {
		g.Go(func() error {
			q := workq.New[exposure.ProviderExecutionResult](o.opts.QueueOptions)
			collect(q.AddAll(gctx, makeTasks(standard)), standard)
			return nil
		})
	}
	if len(heavy) > 0 {
		g.Go(func() error {
			opts := o.opts.QueueOptions
			opts.Concurrency = 1
			q := workq.New[exposure.ProviderExecutionResult](opts)
			collect(q.AddAll(gctx, makeTasks(heavy)), heavy)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// executeProvider runs one provider end to end: kill-switch check, credit
// charge, cache lookup, execution, and event trail. It never returns an
// error; every failure mode becomes a result, usually carrying an
// informational finding explaining the gap.
func (o *Orchestrator) executeProvider(ctx context.Context, sr *scanRun, providerID string, tracker *progressTracker) exposure.ProviderExecutionResult {
	info, ok := o.registry.Lookup(providerID)
	if !ok {
		// Resolve already filtered unknowns; this is unreachable in practice.
		return exposure.ProviderExecutionResult{Provider: providerID, Status: exposure.ExecutionSkipped}
	}

	if o.kill.IsProviderDisabled(ctx, providerID) {
		o.logger.LogProviderEvent(sr.scanID, providerID, models.ProviderEventSkipped,
			"Provider disabled by kill-switch", 0, 0, nil)
		result := exposure.ProviderExecutionResult{
			Provider: providerID,
			Status:   exposure.ExecutionSkipped,
			Findings: []exposure.Finding{
				exposure.InfoFinding(providerID, "provider.disabled",
					"Provider is temporarily disabled and was skipped."),
			},
		}
		tracker.providerFinished(ctx, providerID, len(result.Findings))
		return result
	}

	tracker.providerStarted(ctx, providerID)
	o.logger.LogProviderEvent(sr.scanID, providerID, models.ProviderEventStart, "Provider query started", 0, 0, nil)

	key := cache.ProviderKey(providerID, sr.scanType, sr.target)
	if info.WorkspaceScopedCache {
		key = cache.WorkspaceProviderKey(sr.workspace.ID, providerID, sr.scanType, sr.target)
	}

	// The charge sits inside the cache closure: cache hits are free, and on
	// a miss the debit lands before the provider call so attempted work is
	// paid work.
	var execResult exposure.ProviderExecutionResult
	start := time.Now()
	findings, fromCache, err := cache.WithCache(ctx, o.kv, key, cache.ProviderTTLSeconds, sr.noCache,
		func(fnCtx context.Context) ([]exposure.Finding, error) {
			if cerr := o.gate.Charge(fnCtx, sr.workspace.ID, info.Cost, sr.workspace.UnlimitedCredits, "provider_call:"+providerID, sr.scanID); cerr != nil {
				return nil, cerr
			}
			execResult = provider.Execute(fnCtx, o.adapter, info, sr.target, sr.scanType, sr.workspace.ID)
			if execResult.Status != exposure.ExecutionSuccess {
				return nil, errProviderExecution
			}
			return execResult.Findings, nil
		})

	result := o.resolveOutcome(providerID, findings, fromCache, err, execResult, time.Since(start))
	o.recordOutcome(sr.scanID, providerID, result, fromCache)
	tracker.providerFinished(ctx, providerID, len(result.Findings))
	return result
}

// resolveOutcome folds the cache/charge/execute outcome into one result.
func (o *Orchestrator) resolveOutcome(providerID string, findings []exposure.Finding, fromCache bool, err error, execResult exposure.ProviderExecutionResult, elapsed time.Duration) exposure.ProviderExecutionResult {
	switch {
	case fromCache:
		return exposure.ProviderExecutionResult{
			Provider:   providerID,
			Status:     exposure.ExecutionSuccess,
			Findings:   findings,
			DurationMs: elapsed.Milliseconds(),
		}
	case err == nil:
		return exposure.ProviderExecutionResult{
			Provider:   providerID,
			Status:     exposure.ExecutionSuccess,
			Findings:   findings,
			DurationMs: elapsed.Milliseconds(),
		}
	case errors.Is(err, credits.ErrInsufficientCredits):
		return exposure.ProviderExecutionResult{
			Provider:     providerID,
			Status:       exposure.ExecutionSkipped,
			ErrorMessage: err.Error(),
			DurationMs:   elapsed.Milliseconds(),
			Findings: []exposure.Finding{
				exposure.InfoFinding(providerID, "provider.insufficient_credits",
					"Provider was skipped: not enough credits to cover its cost."),
			},
		}
	case errors.Is(err, errProviderExecution):
		// Timeout results already carry their informational finding; plain
		// failures get one here so the gap stays visible in the report.
		if execResult.Status == exposure.ExecutionFailed && len(execResult.Findings) == 0 {
			execResult.Findings = []exposure.Finding{
				exposure.InfoFinding(providerID, "provider.error",
					"Provider query failed: "+execResult.ErrorMessage),
			}
		}
		return execResult
	default:
		// Charge infrastructure trouble, not a balance problem.
		return exposure.ProviderExecutionResult{
			Provider:     providerID,
			Status:       exposure.ExecutionFailed,
			ErrorMessage: err.Error(),
			DurationMs:   elapsed.Milliseconds(),
			Findings: []exposure.Finding{
				exposure.InfoFinding(providerID, "provider.error",
					"Provider was not executed due to an internal error."),
			},
		}
	}
}

// recordOutcome writes the provider event trail for a settled result.
func (o *Orchestrator) recordOutcome(scanID, providerID string, result exposure.ProviderExecutionResult, fromCache bool) {
	switch result.Status {
	case exposure.ExecutionSuccess:
		msg := "Provider query completed"
		if fromCache {
			msg = "Provider result served from cache"
		}
		o.logger.LogProviderEvent(scanID, providerID, models.ProviderEventSuccess,
			msg, len(result.Findings), result.DurationMs, nil)
	case exposure.ExecutionSkipped:
		o.logger.LogProviderEvent(scanID, providerID, models.ProviderEventSkipped,
			result.ErrorMessage, len(result.Findings), result.DurationMs, nil)
	default:
		o.logger.LogProviderEvent(scanID, providerID, models.ProviderEventFailed,
			result.ErrorMessage, len(result.Findings), result.DurationMs, errors.New(result.ErrorMessage))
	}
}

// executePremium runs the requested premium actors after the standard batch.
// They share the provider infrastructure but are fanned out with an
// errgroup rather than the retry queue: premium actors are expensive, so a
// single attempt each.
func (o *Orchestrator) executePremium(ctx context.Context, sr *scanRun, tracker *progressTracker) ([]exposure.ProviderExecutionResult, bool) {
	ids := premiumProviders(sr.premium, sr.providers)
	if len(ids) == 0 {
		return nil, false
	}

	asyncPending := o.registry.HasAsyncOnly(ids)
	results := make([]exposure.ProviderExecutionResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = o.executeProvider(gctx, sr, id, tracker)
			return nil
		})
	}
	_ = g.Wait()

	return results, asyncPending
}

// premiumProviders maps the premium option flags to provider ids, skipping
// any already in the standard set.
func premiumProviders(premium *exposure.PremiumOptions, already []string) []string {
	if premium == nil {
		return nil
	}
	seen := make(map[string]bool, len(already))
	for _, id := range already {
		seen[id] = true
	}

	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if premium.SocialMediaFinder {
		add("apify-social")
	}
	if premium.OsintScraper {
		add("apify-osint")
	}
	if premium.DarkwebScraper {
		add("apify-darkweb")
	}
	return ids
}

// writeTerminal persists the finding set and the terminal status. The two
// writes use a fresh context so a dead run context cannot strand the scan in
// running; if finalization fails anyway, the scan is forced to error as the
// fallback terminal status.
func (o *Orchestrator) writeTerminal(scanID string, status exposure.ScanStatus, findings []exposure.Finding, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	terminal := false
	defer func() {
		if terminal {
			return
		}
		// Last-resort fallback: a scan must never be left non-terminal.
		if err := o.repo.UpdateScan(ctx, scanID, map[string]any{
			"status":        models.ScanStatusError,
			"error_message": "finalization failed",
			"completed_at":  time.Now().UTC(),
		}); err != nil {
			slog.Error("Failed to force scan into error state", "scan_id", scanID, "error", err)
		}
	}()

	workspaceID := ""
	if scanRecord, err := o.repo.GetScan(ctx, scanID); err == nil {
		workspaceID = scanRecord.WorkspaceID
	}

	if err := o.repo.InsertFindings(ctx, scanID, workspaceID, findings); err != nil {
		slog.Error("Failed to persist findings", "scan_id", scanID, "error", err)
		o.logger.LogScanError(scanID, "Failed to persist findings", err)
		return
	}

	counts := exposure.CountBySeverity(findings)
	fields := map[string]any{
		"status":          string(status),
		"critical_count":  counts.Critical,
		"high_count":      counts.High,
		"medium_count":    counts.Medium,
		"low_count":       counts.Low,
		"info_count":      counts.Info,
		"privacy_score":   counts.PrivacyScore(),
		"total_findings":  len(findings),
		"provider_counts": providerCountsJSON(findings),
		"completed_at":    time.Now().UTC(),
	}
	if errMsg != "" {
		fields["error_message"] = errMsg
	}
	if err := o.repo.UpdateScan(ctx, scanID, fields); err != nil {
		slog.Error("Failed to write terminal scan status", "scan_id", scanID, "status", status, "error", err)
		o.logger.LogScanError(scanID, "Failed to write terminal status", err)
		return
	}
	terminal = true
}

// providerCountsJSON builds the per-provider finding tally stored on the
// scan record.
func providerCountsJSON(findings []exposure.Finding) models.JSONB {
	counts := exposure.CountByProvider(findings)
	out := make(models.JSONB, len(counts))
	for p, n := range counts {
		out[p] = n
	}
	return out
}

func terminalMessage(status exposure.ScanStatus) string {
	switch status {
	case exposure.ScanCompleted:
		return "Scan completed"
	case exposure.ScanCompletedPartial:
		return "Scan completed with partial results"
	case exposure.ScanTimeout:
		return "Scan timed out"
	default:
		return "Scan failed"
	}
}
