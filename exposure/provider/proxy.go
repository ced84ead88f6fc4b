package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/normalize"
	"github.com/ExposureScan/go-api/exposure/store"
)

// =============== Types ===============

// proxyRequest is the body sent to the provider-proxy service.
type proxyRequest struct {
	Provider    string `json:"provider"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId"`
}

// proxyFinding is the wire shape of one finding as the proxy returns it.
// Confidence is untyped on the wire: providers report floats, percentages,
// or labels, and normalization happens here.
type proxyFinding struct {
	Provider   string              `json:"provider"`
	Kind       string              `json:"kind"`
	Severity   string              `json:"severity"`
	Confidence any                 `json:"confidence"`
	ObservedAt string              `json:"observedAt"`
	Evidence   []exposure.Evidence `json:"evidence"`
	Meta       map[string]any      `json:"meta"`
}

// proxyResponse is the top-level provider-proxy response.
type proxyResponse struct {
	Findings []proxyFinding `json:"findings"`
	Error    string         `json:"error,omitempty"`
}

// ProxyAdapter calls providers through the unified provider-proxy service,
// which owns the upstream API request/response shapes. Credentials for the
// upstream providers are fetched from the KV credential store per call so a
// rotation takes effect without a restart.
type ProxyAdapter struct {
	baseURL string
	client  *http.Client
	kv      store.KVStore
}

// NewProxyAdapter creates an adapter for the proxy at
// EXPOSURE_PROVIDER_PROXY_URL (default http://exposure-proxy:8090). kv may be
// a NullStore when no per-provider credentials are configured.
func NewProxyAdapter(kv store.KVStore) *ProxyAdapter {
	baseURL := os.Getenv("EXPOSURE_PROVIDER_PROXY_URL")
	if baseURL == "" {
		baseURL = "http://exposure-proxy:8090"
	}
	return &ProxyAdapter{
		baseURL: baseURL,
		// No client-level timeout: the execution wrapper owns the budget via
		// the request context.
		client: &http.Client{},
		kv:     kv,
	}
}

// Invoke implements Adapter.
func (a *ProxyAdapter) Invoke(ctx context.Context, providerID, target string, scanType exposure.ScanType, workspaceID string) ([]exposure.Finding, error) {
	body, err := json.Marshal(proxyRequest{
		Provider:    providerID,
		Target:      target,
		Type:        string(scanType),
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proxy request: %w", err)
	}

	url := a.baseURL + "/v1/providers/" + providerID + "/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if cred, err := store.GetProviderCredential(ctx, a.kv, providerID); err == nil && cred.APIKey != "" {
		req.Header.Set("X-Provider-Key", cred.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d from provider proxy for %s", resp.StatusCode, providerID)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded proxyResponse
	if err := json.Unmarshal(bodyBytes, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("provider %s error: %s", providerID, decoded.Error)
	}

	findings := make([]exposure.Finding, 0, len(decoded.Findings))
	for _, pf := range decoded.Findings {
		findings = append(findings, fromWire(providerID, pf))
	}
	return findings, nil
}

// fromWire converts one wire finding into the UFM, normalizing confidence
// and timestamps.
func fromWire(providerID string, pf proxyFinding) exposure.Finding {
	f := exposure.Finding{
		Provider:   pf.Provider,
		Kind:       pf.Kind,
		Severity:   exposure.Severity(pf.Severity),
		Confidence: normalize.Confidence(pf.Confidence),
		Evidence:   pf.Evidence,
		Meta:       pf.Meta,
	}
	if f.Provider == "" {
		f.Provider = providerID
	}
	if f.Severity.Rank() == 0 {
		f.Severity = exposure.SeverityInfo
	}
	if ts, err := time.Parse(time.RFC3339, pf.ObservedAt); err == nil {
		f.ObservedAt = ts
	} else {
		f.ObservedAt = time.Now().UTC()
	}
	return f
}
