package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanLogger ships structured scan lifecycle entries to the central log API.
// Shipping is asynchronous and strictly best-effort: a full buffer drops the
// oldest entries, and a failed POST is logged locally and forgotten. The
// scan path must never block on observability.
type ScanLogger struct {
	config      *LogConfig
	httpClient  *http.Client
	buffer      []ScanLogEntry
	bufferMux   sync.Mutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
	persistence *EventPersistence
}

// NewScanLogger creates a ScanLogger with default configuration.
func NewScanLogger() *ScanLogger {
	return NewScanLoggerWithConfig(DefaultLogConfig())
}

// NewScanLoggerWithConfig creates a ScanLogger with custom configuration.
func NewScanLoggerWithConfig(config *LogConfig) *ScanLogger {
	client := &ScanLogger{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		buffer:   make([]ScanLogEntry, 0, config.BufferSize),
		stopChan: make(chan struct{}),
	}

	if config.PersistProviderEvents {
		client.persistence = NewEventPersistence()
	}

	if config.Async {
		client.wg.Add(1)
		go client.flushRoutine()
	}

	return client
}

// Log buffers (or immediately submits) one entry.
func (sl *ScanLogger) Log(entry ScanLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Service == "" {
		entry.Service = "scan-engine"
	}

	if sl.config.Async {
		sl.bufferLog(entry)
	} else {
		sl.submitBatch([]ScanLogEntry{entry})
	}
}

// LogScanEvent logs a scan lifecycle event (created, cache_hit, completed, ...).
func (sl *ScanLogger) LogScanEvent(scanID, eventType, message string, metadata map[string]interface{}) {
	sl.Log(ScanLogEntry{
		ScanID:   scanID,
		Event:    eventType,
		Level:    LogLevelInfo,
		Message:  message,
		Metadata: metadata,
	})
}

// LogScanError logs a scan-fatal error.
func (sl *ScanLogger) LogScanError(scanID, message string, err error) {
	metadata := map[string]interface{}{}
	if err != nil {
		metadata["error"] = err.Error()
	}
	sl.Log(ScanLogEntry{
		ScanID:   scanID,
		Event:    "scan_error",
		Level:    LogLevelError,
		Message:  message,
		Metadata: metadata,
	})
}

// LogProviderEvent logs one provider execution event and, when persistence
// is enabled, mirrors it into the scan_provider_events table.
func (sl *ScanLogger) LogProviderEvent(scanID, provider, event, message string, resultCount int, durationMs int64, execErr error) {
	metadata := map[string]interface{}{
		"result_count": resultCount,
		"duration_ms":  durationMs,
	}
	level := LogLevelInfo
	if execErr != nil {
		metadata["error"] = execErr.Error()
		level = LogLevelWarn
	}

	sl.Log(ScanLogEntry{
		ScanID:   scanID,
		Provider: provider,
		Event:    event,
		Level:    level,
		Message:  message,
		Metadata: metadata,
	})

	if sl.persistence != nil {
		sl.persistence.RecordProviderEvent(scanID, provider, event, message, resultCount, durationMs, execErr)
	}
}

// bufferLog appends an entry, dropping the oldest when the buffer is full.
func (sl *ScanLogger) bufferLog(entry ScanLogEntry) {
	sl.bufferMux.Lock()
	defer sl.bufferMux.Unlock()

	if len(sl.buffer) >= sl.config.BufferSize {
		sl.buffer = sl.buffer[1:]
	}
	sl.buffer = append(sl.buffer, entry)
}

// flushRoutine periodically drains the buffer to the log API.
func (sl *ScanLogger) flushRoutine() {
	defer sl.wg.Done()
	ticker := time.NewTicker(sl.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sl.flush()
		case <-sl.stopChan:
			sl.flush()
			return
		}
	}
}

// flush drains and submits the current buffer.
func (sl *ScanLogger) flush() {
	sl.bufferMux.Lock()
	if len(sl.buffer) == 0 {
		sl.bufferMux.Unlock()
		return
	}
	batch := sl.buffer
	sl.buffer = make([]ScanLogEntry, 0, sl.config.BufferSize)
	sl.bufferMux.Unlock()

	sl.submitBatch(batch)
}

// submitBatch POSTs a batch to the log API. Failures are logged and dropped.
func (sl *ScanLogger) submitBatch(batch []ScanLogEntry) {
	data, err := json.Marshal(batch)
	if err != nil {
		slog.Warn("Failed to marshal log batch", "error", err)
		return
	}

	resp, err := sl.httpClient.Post(sl.config.APIBaseURL, "application/json", bytes.NewReader(data))
	if err != nil {
		slog.Debug("Failed to ship log batch", "entries", len(batch), "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Debug("Log API rejected batch", "status", resp.StatusCode, "entries", len(batch))
	}
}

// Close flushes remaining entries and stops the background routine.
func (sl *ScanLogger) Close() error {
	if sl.config.Async {
		close(sl.stopChan)
		sl.wg.Wait()
	} else {
		sl.flush()
	}
	if sl.persistence != nil {
		sl.persistence.Close()
	}
	return nil
}

// Global client instance

var (
	globalLogger *ScanLogger
	loggerMux    sync.RWMutex
)

// Init initializes the global scan logger with default configuration.
func Init() {
	loggerMux.Lock()
	defer loggerMux.Unlock()
	if globalLogger == nil {
		globalLogger = NewScanLogger()
	}
}

// GetLogger returns the global scan logger, initializing it if necessary.
func GetLogger() *ScanLogger {
	loggerMux.RLock()
	if globalLogger != nil {
		loggerMux.RUnlock()
		return globalLogger
	}
	loggerMux.RUnlock()

	Init()

	loggerMux.RLock()
	defer loggerMux.RUnlock()
	return globalLogger
}

// Close closes the global scan logger.
func Close() error {
	loggerMux.Lock()
	defer loggerMux.Unlock()
	if globalLogger != nil {
		err := globalLogger.Close()
		globalLogger = nil
		return err
	}
	return nil
}
