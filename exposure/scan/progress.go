// File: progress.go
package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ExposureScan/go-api/exposure/postgres/models"
	"github.com/ExposureScan/go-api/exposure/queue"
)

// progressEvent is the wire shape published to the scan-progress queue for
// live UI consumers; the database row is the durable fallback for clients
// that poll instead.
type progressEvent struct {
	ScanID             string    `json:"scan_id"`
	Status             string    `json:"status"`
	TotalProviders     int       `json:"total_providers"`
	CompletedProviders int       `json:"completed_providers"`
	CurrentProviders   []string  `json:"current_providers"`
	FindingsCount      int       `json:"findings_count"`
	Message            string    `json:"message"`
	Error              bool      `json:"error"`
	Timestamp          time.Time `json:"timestamp"`
}

// progressTracker maintains one scan's live progress counters and mirrors
// every change to the progress row and the message queue. Progress writes
// are best-effort: a failed update is logged and dropped, never allowed to
// delay or fail the scan itself.
type progressTracker struct {
	scanID string
	repo   Repository

	mu        sync.Mutex
	status    string
	total     int
	completed int
	findings  int
	inFlight  map[string]struct{}
}

func newProgressTracker(scanID string, repo Repository, totalProviders int) *progressTracker {
	return &progressTracker{
		scanID:   scanID,
		repo:     repo,
		status:   models.ScanStatusRunning,
		total:    totalProviders,
		inFlight: make(map[string]struct{}),
	}
}

// providerStarted records a provider entering execution.
func (pt *progressTracker) providerStarted(ctx context.Context, provider string) {
	pt.mu.Lock()
	pt.inFlight[provider] = struct{}{}
	pt.mu.Unlock()
	pt.publish(ctx, "Querying "+provider)
}

// providerFinished records a provider leaving execution, whatever the
// outcome; findingsDelta is how many findings it contributed.
func (pt *progressTracker) providerFinished(ctx context.Context, provider string, findingsDelta int) {
	pt.mu.Lock()
	delete(pt.inFlight, provider)
	pt.completed++
	pt.findings += findingsDelta
	pt.mu.Unlock()
	pt.publish(ctx, provider+" finished")
}

// finished publishes the terminal progress state.
func (pt *progressTracker) finished(ctx context.Context, status string, findingsCount int, message string) {
	pt.mu.Lock()
	pt.status = status
	pt.findings = findingsCount
	pt.inFlight = make(map[string]struct{})
	pt.mu.Unlock()
	pt.publish(ctx, message)
}

// snapshot builds the current progress row under the lock.
func (pt *progressTracker) snapshot() (*models.ScanProgress, progressEvent) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	current := make([]string, 0, len(pt.inFlight))
	for p := range pt.inFlight {
		current = append(current, p)
	}

	isError := pt.status == models.ScanStatusError || pt.status == models.ScanStatusTimeout
	row := &models.ScanProgress{
		ScanID:             pt.scanID,
		Status:             pt.status,
		TotalProviders:     pt.total,
		CompletedProviders: pt.completed,
		CurrentProviders:   models.StringSlice(current),
		FindingsCount:      pt.findings,
		Error:              isError,
	}
	event := progressEvent{
		ScanID:             pt.scanID,
		Status:             pt.status,
		TotalProviders:     pt.total,
		CompletedProviders: pt.completed,
		CurrentProviders:   current,
		FindingsCount:      pt.findings,
		Error:              isError,
		Timestamp:          time.Now().UTC(),
	}
	return row, event
}

func (pt *progressTracker) publish(ctx context.Context, message string) {
	row, event := pt.snapshot()
	row.Message = message
	event.Message = message

	if err := pt.repo.UpsertProgress(ctx, row); err != nil {
		slog.Warn("Failed to persist scan progress", "scan_id", pt.scanID, "error", err)
	}
	queue.PublishAsync(queue.ScanProgressQueue, event)
}
