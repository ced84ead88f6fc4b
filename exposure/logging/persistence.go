package logging

import (
	"log/slog"
	"sync"

	"github.com/ExposureScan/go-api/exposure/postgres"
	"github.com/ExposureScan/go-api/exposure/postgres/models"
)

// EventPersistence mirrors provider execution events into the
// scan_provider_events table. Writes happen on a single background worker so
// the scan path only pays for a channel send; when the channel is full or
// the database is down the event is dropped, not queued unboundedly.
type EventPersistence struct {
	events chan models.ProviderEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewEventPersistence starts the background writer.
func NewEventPersistence() *EventPersistence {
	ep := &EventPersistence{
		events: make(chan models.ProviderEvent, 256),
		done:   make(chan struct{}),
	}
	ep.wg.Add(1)
	go ep.writeLoop()
	return ep
}

// RecordProviderEvent enqueues one event, dropping it if the writer is
// saturated.
func (ep *EventPersistence) RecordProviderEvent(scanID, provider, event, message string, resultCount int, durationMs int64, execErr error) {
	row := models.ProviderEvent{
		ScanID:      scanID,
		Provider:    provider,
		Event:       event,
		Message:     message,
		ResultCount: resultCount,
		DurationMs:  durationMs,
	}
	if execErr != nil {
		row.Error = models.JSONB{"message": execErr.Error()}
	}

	select {
	case ep.events <- row:
	default:
		slog.Debug("Provider event writer saturated, dropping event",
			"scan_id", scanID, "provider", provider, "event", event)
	}
}

// writeLoop drains the channel into Postgres.
func (ep *EventPersistence) writeLoop() {
	defer ep.wg.Done()
	for {
		select {
		case row := <-ep.events:
			ep.insert(row)
		case <-ep.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case row := <-ep.events:
					ep.insert(row)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPersistence) insert(row models.ProviderEvent) {
	db := postgres.GetDB()
	if db == nil {
		return
	}
	if err := db.Create(&row).Error; err != nil {
		slog.Debug("Failed to persist provider event",
			"scan_id", row.ScanID, "provider", row.Provider, "error", err)
	}
}

// Close stops the writer after draining pending events.
func (ep *EventPersistence) Close() {
	close(ep.done)
	ep.wg.Wait()
}
