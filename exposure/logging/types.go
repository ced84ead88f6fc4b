package logging

import (
	"os"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ScanLogEntry is a structured scan lifecycle log entry shipped to the
// central log API.
type ScanLogEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	ScanID    string                 `json:"scan_id,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	Event     string                 `json:"event,omitempty"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// LogConfig represents configuration for the scan logging client
type LogConfig struct {
	APIBaseURL    string        `json:"api_base_url"`
	Timeout       time.Duration `json:"timeout"`
	Async         bool          `json:"async"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	// PersistProviderEvents mirrors provider start/success/failed entries
	// into the scan_provider_events table.
	PersistProviderEvents bool `json:"persist_provider_events"`
}

// DefaultLogConfig returns a default configuration, with environment
// overrides for the API endpoint and timeout.
func DefaultLogConfig() *LogConfig {
	config := &LogConfig{
		APIBaseURL:            "http://exposure-logging:9001/api/v1/logs",
		Timeout:               2 * time.Second,
		Async:                 true,
		BufferSize:            100,
		FlushInterval:         5 * time.Second,
		PersistProviderEvents: true,
	}
	if apiURL := os.Getenv("EXPOSURE_LOG_API_URL"); apiURL != "" {
		config.APIBaseURL = apiURL
	}
	if timeout := os.Getenv("EXPOSURE_LOG_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Timeout = d
		}
	}
	return config
}
