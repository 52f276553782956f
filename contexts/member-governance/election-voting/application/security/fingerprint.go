package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"intellicash/contexts/member-governance/election-voting/ports"
)

// SessionFingerprint derives the value bound to a session id on first
// use: a hash over the request signals that should stay stable for the
// lifetime of a legitimate session.
func SessionFingerprint(req ports.RequestContext) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		req.IPAddress,
		req.UserAgent,
		req.AcceptLanguage,
		req.AcceptEncoding,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// ResolveDeviceFingerprint returns the caller-supplied fingerprint when
// it is well formed, otherwise one generated from request headers. The
// second return reports whether the value was generated.
func ResolveDeviceFingerprint(req ports.RequestContext) (string, bool) {
	supplied := strings.ToLower(strings.TrimSpace(req.DeviceFingerprint))
	if isHex64(supplied) {
		return supplied, false
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		req.UserAgent,
		req.AcceptLanguage,
		req.AcceptEncoding,
		req.IPAddress,
	}, "|")))
	return hex.EncodeToString(sum[:]), true
}

func isHex64(value string) bool {
	if len(value) != 64 {
		return false
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// isAdversarialFingerprint rejects the degenerate values abuse tooling
// tends to send.
func isAdversarialFingerprint(fingerprint string) bool {
	return fingerprint == strings.Repeat("0", 64) || fingerprint == strings.Repeat("f", 64)
}
