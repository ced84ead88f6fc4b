package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/ExposureScan/go-api/exposure"
)

// fakeUsage is a canned UsageReader.
type fakeUsage struct {
	today   int
	running int
}

func (f *fakeUsage) ScansToday(ctx context.Context, workspaceID string) (int, error) {
	return f.today, nil
}

func (f *fakeUsage) RunningScans(ctx context.Context) (int, error) {
	return f.running, nil
}

func basicRequest() *exposure.ScanRequest {
	return &exposure.ScanRequest{
		Type:        exposure.ScanTypeEmail,
		Target:      "user@example.com",
		WorkspaceID: "ws-1",
	}
}

func rejectionCode(t *testing.T, err error) string {
	t.Helper()
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("❌ Expected a RejectionError, got %v", err)
	}
	return rejection.Code
}

func TestProviderCeilingPerTier(t *testing.T) {
	t.Log("\n🔍 Testing the per-tier provider ceiling...")

	ev := New(&fakeUsage{})
	ctx := context.Background()

	ws := Workspace{ID: "ws-1", Tier: TierFree}
	if err := ev.Evaluate(ctx, ws, basicRequest(), 5); err != nil {
		t.Errorf("❌ 5 providers should pass on free tier: %v", err)
	}
	err := ev.Evaluate(ctx, ws, basicRequest(), 8)
	if err == nil {
		t.Fatalf("❌ 8 providers should exceed the free-tier ceiling of 5")
	}
	if code := rejectionCode(t, err); code != "provider_limit" {
		t.Errorf("❌ Expected provider_limit code, got %s", code)
	}

	ws.Tier = TierPro
	if err := ev.Evaluate(ctx, ws, basicRequest(), 8); err != nil {
		t.Errorf("❌ 8 providers should pass on pro tier: %v", err)
	}
	t.Log("✅ Provider ceiling follows the tier")
}

func TestMonthlyQuota(t *testing.T) {
	t.Log("\n🔍 Testing the monthly scan quota...")

	ev := New(&fakeUsage{})
	ctx := context.Background()

	ws := Workspace{ID: "ws-1", Tier: TierFree, ScansUsedMonthly: 10}
	err := ev.Evaluate(ctx, ws, basicRequest(), 3)
	if err == nil {
		t.Fatalf("❌ Free tier at 10/10 monthly scans should be rejected")
	}
	if code := rejectionCode(t, err); code != "monthly_limit" {
		t.Errorf("❌ Expected monthly_limit code, got %s", code)
	}

	// Per-workspace override beats the tier default.
	ws.ScanLimitMonthly = 50
	if err := ev.Evaluate(ctx, ws, basicRequest(), 3); err != nil {
		t.Errorf("❌ Workspace override of 50 should admit the scan: %v", err)
	}

	// Business tier is unlimited monthly.
	ws = Workspace{ID: "ws-2", Tier: TierBusiness, ScansUsedMonthly: 100000}
	if err := ev.Evaluate(ctx, ws, basicRequest(), 3); err != nil {
		t.Errorf("❌ Business tier has no monthly limit: %v", err)
	}
	t.Log("✅ Monthly quota enforced with workspace override and unlimited business tier")
}

func TestDailyCeiling(t *testing.T) {
	t.Log("\n🔍 Testing the daily scan ceiling...")

	ev := New(&fakeUsage{today: 10})
	ctx := context.Background()

	ws := Workspace{ID: "ws-1", Tier: TierFree}
	err := ev.Evaluate(ctx, ws, basicRequest(), 3)
	if err == nil {
		t.Fatalf("❌ Free tier at 10 scans today should be rejected")
	}
	if code := rejectionCode(t, err); code != "daily_limit" {
		t.Errorf("❌ Expected daily_limit code, got %s", code)
	}
	t.Log("✅ Daily ceiling enforced from live usage")
}

func TestGlobalConcurrencyCeiling(t *testing.T) {
	t.Log("\n🔍 Testing the global concurrency ceiling...")

	ev := New(&fakeUsage{running: GlobalConcurrentScanCeiling})
	ctx := context.Background()

	ws := Workspace{ID: "ws-1", Tier: TierBusiness}
	err := ev.Evaluate(ctx, ws, basicRequest(), 3)
	if err == nil {
		t.Fatalf("❌ Scan should be rejected at the global ceiling")
	}
	if code := rejectionCode(t, err); code != "system_busy" {
		t.Errorf("❌ Expected system_busy code, got %s", code)
	}
	t.Log("✅ System-wide concurrency cap applies to all tiers")
}

func TestPrivilegedBypassesLimitsButNotConsent(t *testing.T) {
	t.Log("\n🔍 Testing privileged workspace semantics...")

	ev := New(&fakeUsage{today: 1000, running: 1000})
	ctx := context.Background()

	ws := Workspace{ID: "ws-1", Tier: TierFree, Privileged: true, ScansUsedMonthly: 1000}
	if err := ev.Evaluate(ctx, ws, basicRequest(), 20); err != nil {
		t.Errorf("❌ Privileged workspace should bypass all limit checks: %v", err)
	}

	req := basicRequest()
	req.Options.IncludeDarkweb = true
	err := ev.Evaluate(ctx, ws, req, 3)
	if err == nil {
		t.Fatalf("❌ Privileged workspaces must still record darkweb consent")
	}
	if code := rejectionCode(t, err); code != "darkweb_consent_required" {
		t.Errorf("❌ Expected darkweb_consent_required code, got %s", code)
	}
	t.Log("✅ Privilege bypasses limits, never consent")
}

func TestConsentCategories(t *testing.T) {
	t.Log("\n🔍 Testing sensitive-category consent gates...")

	ev := New(&fakeUsage{})
	ctx := context.Background()

	cases := []struct {
		name    string
		set     func(*exposure.ScanOptions)
		consent string
		code    string
	}{
		{"dating", func(o *exposure.ScanOptions) { o.IncludeDating = true }, "dating", "dating_consent_required"},
		{"nsfw", func(o *exposure.ScanOptions) { o.IncludeNsfw = true }, "nsfw", "nsfw_consent_required"},
		{"darkweb", func(o *exposure.ScanOptions) { o.IncludeDarkweb = true }, "darkweb", "darkweb_consent_required"},
	}

	for _, tc := range cases {
		req := basicRequest()
		tc.set(&req.Options)

		ws := Workspace{ID: "ws-1", Tier: TierPro}
		err := ev.Evaluate(ctx, ws, req, 3)
		if err == nil {
			t.Errorf("❌ %s: expected rejection without consent", tc.name)
			continue
		}
		if code := rejectionCode(t, err); code != tc.code {
			t.Errorf("❌ %s: expected code %s, got %s", tc.name, tc.code, code)
		}

		ws.ConsentedCategories = []string{tc.consent}
		if err := ev.Evaluate(ctx, ws, req, 3); err != nil {
			t.Errorf("❌ %s: recorded consent should admit the scan: %v", tc.name, err)
		}
	}
	t.Log("✅ Each sensitive category requires its own recorded consent")
}
