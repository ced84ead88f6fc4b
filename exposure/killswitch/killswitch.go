// Package killswitch tracks providers disabled at runtime without a
// deployment. The disabled set is read from a configuration source (by
// default the providers:disabled key in the KV store) and cached
// process-wide; lookups between refreshes never touch the network.
package killswitch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ExposureScan/go-api/exposure/store"
)

const (
	// DisabledProvidersKey is the KV key holding the JSON array of disabled
	// provider ids.
	DisabledProvidersKey = "providers:disabled"
	// DefaultRefreshWindow bounds how often the disabled set is recomputed.
	DefaultRefreshWindow = 30 * time.Second
)

// Source supplies the current set of disabled provider ids.
type Source func(ctx context.Context) ([]string, error)

// Registry is a time-cached view over a Source. It is an eventually
// consistent read cache, not a source of truth: races around refresh are
// benign, and a failed refresh keeps serving the previous snapshot.
type Registry struct {
	source  Source
	window  time.Duration
	now     func() time.Time
	backoff time.Duration

	mu        sync.Mutex
	disabled  map[string]struct{}
	expiresAt time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRefreshWindow overrides the refresh window.
func WithRefreshWindow(d time.Duration) Option {
	return func(r *Registry) { r.window = d }
}

// New creates a Registry over an arbitrary source.
func New(source Source, opts ...Option) *Registry {
	r := &Registry{
		source:   source,
		window:   DefaultRefreshWindow,
		now:      time.Now,
		disabled: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromStore creates a Registry reading the providers:disabled key from the
// KV store. A missing key means nothing is disabled.
func NewFromStore(kv store.KVStore, opts ...Option) *Registry {
	return New(func(ctx context.Context) ([]string, error) {
		resp, err := kv.GetValue(ctx, DisabledProvidersKey)
		if err != nil {
			return nil, nil // unset key: empty disabled set
		}
		var ids []string
		if uerr := json.Unmarshal([]byte(resp.Message.Value), &ids); uerr != nil {
			slog.Warn("Malformed disabled-providers entry, ignoring", "error", uerr)
			return nil, nil
		}
		return ids, nil
	}, opts...)
}

// IsProviderDisabled reports whether the provider is currently killed. The
// cached snapshot is recomputed at most once per refresh window.
func (r *Registry) IsProviderDisabled(ctx context.Context, provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.After(r.expiresAt) {
		r.refreshLocked(ctx, now)
	}

	_, off := r.disabled[provider]
	return off
}

// Disabled returns a copy of the current disabled set, refreshing if stale.
func (r *Registry) Disabled(ctx context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.After(r.expiresAt) {
		r.refreshLocked(ctx, now)
	}

	out := make([]string, 0, len(r.disabled))
	for id := range r.disabled {
		out = append(out, id)
	}
	return out
}

// refreshLocked recomputes the snapshot. On source failure the previous set
// is kept and the next refresh is pushed out a short backoff so a broken
// source is not hammered on every lookup.
func (r *Registry) refreshLocked(ctx context.Context, now time.Time) {
	ids, err := r.source(ctx)
	if err != nil {
		if r.backoff == 0 {
			r.backoff = 5 * time.Second
		}
		r.expiresAt = now.Add(r.backoff)
		slog.Warn("Kill-switch refresh failed, keeping previous snapshot",
			"disabled", len(r.disabled), "error", err)
		return
	}

	fresh := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}
	r.disabled = fresh
	r.expiresAt = now.Add(r.window)
	r.backoff = 0

	if len(fresh) > 0 {
		slog.Info("Kill-switch snapshot refreshed", "disabled", ids)
	}
}
