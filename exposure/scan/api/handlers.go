package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/events"
	"github.com/ExposureScan/go-api/exposure/guardrail"
	"github.com/ExposureScan/go-api/exposure/killswitch"
	"github.com/ExposureScan/go-api/exposure/provider"
	"github.com/ExposureScan/go-api/exposure/scan"
	"github.com/ExposureScan/go-api/exposure/snapshot"
)

// Handlers bundles the dependencies the scan HTTP handlers need.
type Handlers struct {
	Orchestrator *scan.Orchestrator
	Repo         scan.Repository
	Registry     *provider.Registry
	Kill         *killswitch.Registry
	Snapshots    *snapshot.SnapshotManager
}

// NewHandlers creates the handler set.
func NewHandlers(orchestrator *scan.Orchestrator, repo scan.Repository, registry *provider.Registry, kill *killswitch.Registry, snapshots *snapshot.SnapshotManager) *Handlers {
	return &Handlers{
		Orchestrator: orchestrator,
		Repo:         repo,
		Registry:     registry,
		Kill:         kill,
		Snapshots:    snapshots,
	}
}

// ScanDetailResponse is the full scan read: the record plus its findings.
type ScanDetailResponse struct {
	Scan     any                `json:"scan"`
	Findings []exposure.Finding `json:"findings"`
}

// StartScanHandler handles scan submission
func (h *Handlers) StartScanHandler(w http.ResponseWriter, r *http.Request) {
	var req exposure.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := h.Orchestrator.StartScan(r.Context(), &req)
	if err != nil {
		var rejection *guardrail.RejectionError
		if errors.As(err, &rejection) {
			status := http.StatusTooManyRequests
			if strings.HasSuffix(rejection.Code, "_consent_required") {
				status = http.StatusForbidden
			}
			writeJSON(w, status, map[string]any{
				"error": rejection.Message,
				"code":  rejection.Code,
			})
			return
		}
		if strings.Contains(err.Error(), "invalid scan") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to start scan: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// GetScanHandler handles single-scan retrieval
func (h *Handlers) GetScanHandler(w http.ResponseWriter, r *http.Request, scanID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	record, err := h.Repo.GetScan(ctx, scanID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Scan not found: %s", scanID), http.StatusNotFound)
		return
	}

	findings, err := h.Repo.GetFindings(ctx, scanID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load findings: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ScanDetailResponse{Scan: record, Findings: findings})
}

// ListScansHandler handles workspace scan listing
func (h *Handlers) ListScansHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace")
	if workspaceID == "" {
		http.Error(w, "Missing required query parameter: workspace", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	scans, err := h.Repo.ListScans(ctx, workspaceID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list scans: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scans": scans,
		"total": len(scans),
	})
}

// GetProgressHandler handles live progress reads
func (h *Handlers) GetProgressHandler(w http.ResponseWriter, r *http.Request, scanID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	progress, err := h.Repo.GetProgress(ctx, scanID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Progress not found for scan: %s", scanID), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// GetEventsHandler handles the per-scan provider event timeline
func (h *Handlers) GetEventsHandler(w http.ResponseWriter, r *http.Request, scanID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := events.GetScanEvents(scanID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load events: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": rows,
		"total":  len(rows),
	})
}

// providerView is the catalog entry exposed to clients; internal scheduling
// flags stay internal.
type providerView struct {
	ID       string   `json:"id"`
	Types    []string `json:"types"`
	Cost     int      `json:"cost"`
	Disabled bool     `json:"disabled"`
}

// ListProvidersHandler handles the provider catalog read
func (h *Handlers) ListProvidersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.Registry.List()
	out := make([]providerView, len(infos))
	for i, info := range infos {
		types := make([]string, len(info.Types))
		for j, t := range info.Types {
			types[j] = string(t)
		}
		out[i] = providerView{
			ID:       info.ID,
			Types:    types,
			Cost:     info.Cost,
			Disabled: h.Kill.IsProviderDisabled(r.Context(), info.ID),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// GetUsageSnapshotHandler handles the latest-usage-checkpoint read
func (h *Handlers) GetUsageSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.Snapshots.GetLatestSnapshot(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("No usage snapshot available: %v", err), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetUsageTrendHandler handles the usage trend read
func (h *Handlers) GetUsageTrendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	points, err := h.Snapshots.GetTrendData(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load usage trend: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trend": points,
		"total": len(points),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
