// Package api is the Go client for the scan API: a thin HTTP wrapper for
// services that submit scans and read results without importing the engine.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/postgres/models"
	"github.com/ExposureScan/go-api/exposure/scan"
)

// Client talks to a scan API server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL, e.g.
// "http://exposure-api:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ScanDetail is the full scan read returned by GetScan.
type ScanDetail struct {
	Scan     models.Scan        `json:"scan"`
	Findings []exposure.Finding `json:"findings"`
}

// StartScan submits a scan request and returns the accepted scan's id and
// initial status.
func (c *Client) StartScan(ctx context.Context, req *exposure.ScanRequest) (*scan.StartResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan request: %w", err)
	}

	var resp scan.StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/scans", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetScan fetches a scan record with its findings.
func (c *Client) GetScan(ctx context.Context, scanID string) (*ScanDetail, error) {
	var detail ScanDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/scans/"+url.PathEscape(scanID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetProgress fetches the live progress row for a scan.
func (c *Client) GetProgress(ctx context.Context, scanID string) (*models.ScanProgress, error) {
	var progress models.ScanProgress
	if err := c.do(ctx, http.MethodGet, "/api/v1/scans/"+url.PathEscape(scanID)+"/progress", nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListScans fetches a workspace's scans, newest first.
func (c *Client) ListScans(ctx context.Context, workspaceID string, limit int) ([]models.Scan, error) {
	path := fmt.Sprintf("/api/v1/scans?workspace=%s&limit=%d", url.QueryEscape(workspaceID), limit)
	var out struct {
		Scans []models.Scan `json:"scans"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Scans, nil
}

// WaitForScan polls until the scan reaches a terminal status or ctx expires.
func (c *Client) WaitForScan(ctx context.Context, scanID string, pollInterval time.Duration) (*ScanDetail, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		detail, err := c.GetScan(ctx, scanID)
		if err != nil {
			return nil, err
		}
		if exposure.ScanStatus(detail.Scan.Status).IsTerminal() {
			return detail, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("scan API returned %d for %s: %s", resp.StatusCode, path, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
