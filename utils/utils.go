// Package utils holds small target-handling helpers shared by the scan
// engine and its API surfaces.
package utils

import (
	"fmt"
	"strings"

	"github.com/ExposureScan/go-api/exposure"
)

// NormalizeTarget canonicalizes a scan target for its type so that cache
// keys and dedup behave: emails and usernames are lowercased, domains are
// lowercased and stripped of a scheme and trailing dot, phones are reduced
// to a leading + and digits.
func NormalizeTarget(t exposure.ScanType, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty target")
	}

	switch t {
	case exposure.ScanTypeEmail:
		lower := strings.ToLower(target)
		if !validEmail(lower) {
			return "", fmt.Errorf("invalid email address %q", target)
		}
		return lower, nil
	case exposure.ScanTypeUsername:
		lower := strings.ToLower(target)
		if strings.ContainsAny(lower, " \t@/") {
			return "", fmt.Errorf("invalid username %q", target)
		}
		return lower, nil
	case exposure.ScanTypeDomain:
		lower := strings.ToLower(target)
		lower = strings.TrimPrefix(lower, "https://")
		lower = strings.TrimPrefix(lower, "http://")
		lower = strings.TrimSuffix(strings.SplitN(lower, "/", 2)[0], ".")
		if !strings.Contains(lower, ".") || strings.ContainsAny(lower, " \t@") {
			return "", fmt.Errorf("invalid domain %q", target)
		}
		return lower, nil
	case exposure.ScanTypePhone:
		normalized := normalizePhone(target)
		if normalized == "" {
			return "", fmt.Errorf("invalid phone number %q", target)
		}
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported scan type %q", t)
	}
}

// validEmail is a shape check, not an RFC validator: one @, non-empty local
// part, and a dotted domain.
func validEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") {
		return false
	}
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(s, " \t")
}

// normalizePhone keeps a leading + and digits; returns "" when fewer than 7
// digits remain.
func normalizePhone(s string) string {
	var b strings.Builder
	digits := 0
	for i, c := range s {
		if c == '+' && i == 0 {
			b.WriteRune(c)
			continue
		}
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
			digits++
		}
	}
	if digits < 7 {
		return ""
	}
	return b.String()
}
