// Package provider defines the adapter contract for third-party intelligence
// providers and the registry of provider metadata: type compatibility, credit
// cost, latency profile, and scheduling class. Adapters are opaque
// asynchronous operations; everything the orchestrator knows about a
// provider lives here.
package provider

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ExposureScan/go-api/exposure"
)

// Adapter is the external-collaborator contract: given a provider id and a
// target, return zero or more normalized findings or fail. The orchestrator
// assumes no idempotency beyond what the single in-wrapper retry requires.
type Adapter interface {
	Invoke(ctx context.Context, providerID string, target string, scanType exposure.ScanType, workspaceID string) ([]exposure.Finding, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, providerID, target string, scanType exposure.ScanType, workspaceID string) ([]exposure.Finding, error)

func (f AdapterFunc) Invoke(ctx context.Context, providerID, target string, scanType exposure.ScanType, workspaceID string) ([]exposure.Finding, error) {
	return f(ctx, providerID, target, scanType, workspaceID)
}

// DefaultTimeout is the wrapper timeout for providers without a profile entry.
const DefaultTimeout = 30 * time.Second

// Info is the registry metadata for one provider.
type Info struct {
	ID    string
	Types []exposure.ScanType
	// Cost is the fixed credit cost per call.
	Cost int
	// Timeout is the per-provider execution budget, reflecting known latency
	// profiles (15s for fast lookup APIs up to 90s for crawler-backed tools).
	Timeout time.Duration
	// Idempotent marks side-effect-free reads eligible for the in-wrapper
	// best-effort retry.
	Idempotent bool
	// Heavyweight providers are stateful or rate-sensitive and run with a
	// dedicated concurrency of 1.
	Heavyweight bool
	// WorkspaceScopedCache marks tenant-sensitive providers whose results
	// must be cached per workspace.
	WorkspaceScopedCache bool
	// AsyncOnly providers deliver their results via a later callback; a scan
	// that requests one finishes as completed_partial.
	AsyncOnly bool
}

// SupportsType reports whether the provider can handle the given scan type.
func (i Info) SupportsType(t exposure.ScanType) bool {
	for _, st := range i.Types {
		if st == t {
			return true
		}
	}
	return false
}

// Registry is the provider metadata catalog.
type Registry struct {
	infos    map[string]Info
	defaults map[exposure.ScanType][]string
}

// NewRegistry builds the default catalog of implemented providers.
func NewRegistry() *Registry {
	infos := []Info{
		{ID: "hibp", Types: types(exposure.ScanTypeEmail), Cost: 1, Timeout: 15 * time.Second, Idempotent: true},
		{ID: "dehashed", Types: types(exposure.ScanTypeEmail, exposure.ScanTypeUsername), Cost: 2, Timeout: 20 * time.Second, Idempotent: true, WorkspaceScopedCache: true},
		{ID: "clearbit", Types: types(exposure.ScanTypeEmail, exposure.ScanTypeDomain), Cost: 1, Timeout: 15 * time.Second, Idempotent: true},
		{ID: "fullcontact", Types: types(exposure.ScanTypeEmail, exposure.ScanTypePhone, exposure.ScanTypeDomain), Cost: 1, Timeout: 15 * time.Second, Idempotent: true},
		{ID: "holehe", Types: types(exposure.ScanTypeEmail), Cost: 2, Timeout: 45 * time.Second, Idempotent: true},
		{ID: "shodan", Types: types(exposure.ScanTypeDomain), Cost: 1, Timeout: 20 * time.Second, Idempotent: true},
		{ID: "virustotal", Types: types(exposure.ScanTypeDomain), Cost: 1, Timeout: 20 * time.Second, Idempotent: true},
		{ID: "securitytrails", Types: types(exposure.ScanTypeDomain), Cost: 1, Timeout: 20 * time.Second, Idempotent: true},
		{ID: "urlscan", Types: types(exposure.ScanTypeDomain), Cost: 1, Timeout: 30 * time.Second, Idempotent: true},
		{ID: "censys", Types: types(exposure.ScanTypeDomain), Cost: 2, Timeout: 30 * time.Second, Idempotent: true},
		{ID: "binaryedge", Types: types(exposure.ScanTypeDomain), Cost: 2, Timeout: 30 * time.Second, Idempotent: true},
		{ID: "otx", Types: types(exposure.ScanTypeDomain), Cost: 1, Timeout: 20 * time.Second, Idempotent: true},
		{ID: "maigret", Types: types(exposure.ScanTypeUsername), Cost: 5, Timeout: 90 * time.Second, Idempotent: true, Heavyweight: true},
		{ID: "whatsmyname", Types: types(exposure.ScanTypeUsername), Cost: 2, Timeout: 60 * time.Second, Idempotent: true},
		{ID: "gosearch", Types: types(exposure.ScanTypeUsername), Cost: 2, Timeout: 60 * time.Second, Idempotent: true},
		{ID: "apify-social", Types: types(exposure.ScanTypeUsername), Cost: 10, Timeout: 90 * time.Second, WorkspaceScopedCache: true},
		{ID: "apify-osint", Types: types(exposure.ScanTypeEmail, exposure.ScanTypeUsername), Cost: 10, Timeout: 90 * time.Second, WorkspaceScopedCache: true},
		{ID: "apify-darkweb", Types: types(exposure.ScanTypeEmail, exposure.ScanTypeUsername), Cost: 10, Timeout: 90 * time.Second, Heavyweight: true, WorkspaceScopedCache: true, AsyncOnly: true},
	}

	m := make(map[string]Info, len(infos))
	for _, info := range infos {
		m[info.ID] = info
	}

	return &Registry{
		infos: m,
		defaults: map[exposure.ScanType][]string{
			exposure.ScanTypeEmail:    {"hibp", "dehashed", "clearbit", "fullcontact"},
			exposure.ScanTypeUsername: {"maigret", "whatsmyname", "gosearch"},
			exposure.ScanTypeDomain:   {"urlscan", "securitytrails", "shodan", "virustotal"},
			exposure.ScanTypePhone:    {"fullcontact"},
		},
	}
}

func types(ts ...exposure.ScanType) []exposure.ScanType { return ts }

// List returns every registered provider, ordered by id.
func (r *Registry) List() []Info {
	ids := make([]string, 0, len(r.infos))
	for id := range r.infos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Info, len(ids))
	for i, id := range ids {
		out[i] = r.infos[id]
	}
	return out
}

// Lookup returns the metadata for a provider id.
func (r *Registry) Lookup(id string) (Info, bool) {
	info, ok := r.infos[id]
	return info, ok
}

// DefaultsFor returns the default provider set for a scan type.
func (r *Registry) DefaultsFor(t exposure.ScanType) []string {
	out := make([]string, len(r.defaults[t]))
	copy(out, r.defaults[t])
	return out
}

// Resolve turns a caller-requested provider list into the executable set for
// a scan type. Unknown providers are dropped with a warning, never a hard
// failure; so are type-incompatible ones. An empty request — or a request
// the filters empty out — falls back to the per-type defaults.
func (r *Registry) Resolve(requested []string, t exposure.ScanType) []string {
	selected := requested
	if len(selected) == 0 {
		selected = r.DefaultsFor(t)
	}

	var unknown, incompatible []string
	out := make([]string, 0, len(selected))
	for _, id := range selected {
		info, ok := r.infos[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if !info.SupportsType(t) {
			incompatible = append(incompatible, id)
			continue
		}
		out = append(out, id)
	}

	if len(unknown) > 0 {
		slog.Warn("Ignoring unknown providers", "providers", unknown)
	}
	if len(incompatible) > 0 {
		slog.Warn("Dropping type-incompatible providers", "providers", incompatible, "type", t)
	}

	if len(out) == 0 {
		slog.Warn("No compatible providers after filtering, using defaults", "type", t)
		out = r.DefaultsFor(t)
	}
	return out
}

// Timeout returns the provider's execution budget, or DefaultTimeout.
func (r *Registry) Timeout(id string) time.Duration {
	if info, ok := r.infos[id]; ok && info.Timeout > 0 {
		return info.Timeout
	}
	return DefaultTimeout
}

// Cost returns the provider's credit cost; unknown providers cost nothing.
func (r *Registry) Cost(id string) int {
	if info, ok := r.infos[id]; ok {
		return info.Cost
	}
	return 0
}

// HasAsyncOnly reports whether any provider in the set is async-only.
func (r *Registry) HasAsyncOnly(ids []string) bool {
	for _, id := range ids {
		if info, ok := r.infos[id]; ok && info.AsyncOnly {
			return true
		}
	}
	return false
}
