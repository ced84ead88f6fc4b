package api

import (
	"net/http"
	"strings"
)

// SetupScanRoutes sets up all scan-related HTTP routes
func SetupScanRoutes(mux *http.ServeMux, h *Handlers) {
	// Scan submission and listing
	mux.HandleFunc("/api/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.StartScanHandler(w, r)
		case http.MethodGet:
			h.ListScansHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Per-scan reads: /api/v1/scans/{id}[/progress|/events]
	mux.HandleFunc("/api/v1/scans/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/scans/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			h.GetScanHandler(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "progress":
			h.GetProgressHandler(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "events":
			h.GetEventsHandler(w, r, parts[0])
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	// Provider catalog
	mux.HandleFunc("/api/v1/providers", h.ListProvidersHandler)

	// Usage checkpoints
	mux.HandleFunc("/api/v1/usage/snapshot", h.GetUsageSnapshotHandler)
	mux.HandleFunc("/api/v1/usage/trend", h.GetUsageTrendHandler)
}
