package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// providerCredPrefix is the Valkey key prefix for per-provider API credentials.
	providerCredPrefix = "provider_cred:"
)

// ProviderCredential holds the upstream API credential for one intelligence
// provider. Credentials live in Valkey only; they are never written to
// Postgres and never appear in findings or logs.
type ProviderCredential struct {
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	UpdatedAt string `json:"updated_at"`
	LastUsed  string `json:"last_used,omitempty"`
}

// providerCredKey returns the Valkey key for a given provider id.
func providerCredKey(provider string) string {
	return providerCredPrefix + provider
}

// StoreProviderCredential persists a provider credential keyed by provider id.
func StoreProviderCredential(ctx context.Context, s KVStore, cred ProviderCredential) error {
	if cred.Provider == "" {
		return fmt.Errorf("provider id is required")
	}
	cred.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential for %s: %w", cred.Provider, err)
	}

	return s.SetValue(ctx, providerCredKey(cred.Provider), string(data))
}

// GetProviderCredential retrieves the stored credential for a provider and
// updates its LastUsed timestamp (best-effort).
func GetProviderCredential(ctx context.Context, s KVStore, provider string) (ProviderCredential, error) {
	resp, err := s.GetValue(ctx, providerCredKey(provider))
	if err != nil {
		return ProviderCredential{}, fmt.Errorf("no credential found for provider %s: %w", provider, err)
	}

	var cred ProviderCredential
	if err := json.Unmarshal([]byte(resp.Message.Value), &cred); err != nil {
		return ProviderCredential{}, fmt.Errorf("failed to unmarshal credential for %s: %w", provider, err)
	}

	cred.LastUsed = time.Now().UTC().Format(time.RFC3339)
	if data, err := json.Marshal(cred); err == nil {
		_ = s.SetValue(ctx, providerCredKey(provider), string(data))
	}

	return cred, nil
}

// HasProviderCredential returns true if a credential exists for the provider.
func HasProviderCredential(ctx context.Context, s KVStore, provider string) bool {
	_, err := s.GetValue(ctx, providerCredKey(provider))
	return err == nil
}

// ListProviderCredentials returns credentials for every configured provider.
// API secrets are blanked in the returned slice; callers listing credentials
// want inventory, not secrets.
func ListProviderCredentials(ctx context.Context, s KVStore) ([]ProviderCredential, error) {
	keys, err := s.ListKeys(ctx, providerCredPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list provider credentials: %w", err)
	}

	var result []ProviderCredential
	for _, k := range keys {
		resp, err := s.GetValue(ctx, k)
		if err != nil {
			continue // key may have been deleted between list and get
		}
		var cred ProviderCredential
		if err := json.Unmarshal([]byte(resp.Message.Value), &cred); err != nil {
			continue
		}
		cred.APIKey = redact(cred.APIKey)
		cred.APISecret = ""
		result = append(result, cred)
	}
	return result, nil
}

// DeleteProviderCredential removes the credential for a provider.
func DeleteProviderCredential(ctx context.Context, s KVStore, provider string) error {
	if err := s.DeleteValue(ctx, providerCredKey(provider)); err != nil {
		return fmt.Errorf("failed to delete credential for %s: %w", provider, err)
	}
	return nil
}

// redact keeps the first 4 characters of a key for recognisability.
func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "..."
}
