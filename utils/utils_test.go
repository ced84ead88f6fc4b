package utils

import (
	"testing"

	"github.com/ExposureScan/go-api/exposure"
)

func TestNormalizeTarget(t *testing.T) {
	t.Log("\n🔍 Testing target normalization...")

	cases := []struct {
		name    string
		typ     exposure.ScanType
		in      string
		want    string
		wantErr bool
	}{
		{"email lowercased", exposure.ScanTypeEmail, "User@Example.COM", "user@example.com", false},
		{"email trimmed", exposure.ScanTypeEmail, "  user@example.com  ", "user@example.com", false},
		{"email missing at", exposure.ScanTypeEmail, "userexample.com", "", true},
		{"email double at", exposure.ScanTypeEmail, "a@b@example.com", "", true},
		{"email bare domain", exposure.ScanTypeEmail, "user@localhost", "", true},
		{"username lowercased", exposure.ScanTypeUsername, "JohnDoe", "johndoe", false},
		{"username with at", exposure.ScanTypeUsername, "@johndoe", "", true},
		{"username with space", exposure.ScanTypeUsername, "john doe", "", true},
		{"domain lowercased", exposure.ScanTypeDomain, "Example.COM", "example.com", false},
		{"domain strips scheme", exposure.ScanTypeDomain, "https://example.com", "example.com", false},
		{"domain strips path", exposure.ScanTypeDomain, "http://example.com/about", "example.com", false},
		{"domain strips trailing dot", exposure.ScanTypeDomain, "example.com.", "example.com", false},
		{"domain without dot", exposure.ScanTypeDomain, "localhost", "", true},
		{"phone formatted", exposure.ScanTypePhone, "+1 (555) 123-4567", "+15551234567", false},
		{"phone digits only", exposure.ScanTypePhone, "5551234567", "5551234567", false},
		{"phone too short", exposure.ScanTypePhone, "12345", "", true},
		{"empty target", exposure.ScanTypeEmail, "", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizeTarget(tc.typ, tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("❌ %s: expected error for %q, got %q", tc.name, tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("❌ %s: unexpected error: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("❌ %s: got %q, want %q", tc.name, got, tc.want)
		}
	}
	t.Log("✅ Targets canonicalize per type")
}
