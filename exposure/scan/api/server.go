package api

import (
	"log/slog"
	"net/http"
	"time"
)

// ScanAPIServer provides a standalone HTTP server for the scan API
type ScanAPIServer struct {
	server *http.Server
	mux    *http.ServeMux
}

// NewScanAPIServer creates a new scan API server around the given handlers
func NewScanAPIServer(addr string, h *Handlers) *ScanAPIServer {
	mux := http.NewServeMux()

	// Setup scan routes
	SetupScanRoutes(mux, h)

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy","service":"scan-api"}`)); err != nil {
			slog.Error("Failed to write health response", "error", err)
		}
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &ScanAPIServer{
		server: server,
		mux:    mux,
	}
}

// Start starts the scan API server
func (s *ScanAPIServer) Start() error {
	slog.Info("Starting scan API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the scan API server
func (s *ScanAPIServer) Stop() error {
	slog.Info("Stopping scan API server")
	return s.server.Close()
}

// GetMux returns the HTTP mux for custom route additions
func (s *ScanAPIServer) GetMux() *http.ServeMux {
	return s.mux
}
