package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ParseSignatureHeader normalizes the incoming signature header. Both
// "sha256=<hex>" and a bare "<hex>" are accepted. Returns "" when the header
// is unusable.
func ParseSignatureHeader(header string) string {
	s := strings.TrimSpace(header)
	return strings.TrimPrefix(s, "sha256=")
}

// ComputeSignature returns the hex HMAC-SHA256 of raw under secret.
func ComputeSignature(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the inbound signature against the HMAC of the exact
// bytes received. Re-serializing the body before calling this invalidates the
// signature. The comparison is constant time; a length mismatch fails before
// the compare runs.
func VerifySignature(raw []byte, header, secret string) bool {
	incoming := ParseSignatureHeader(header)
	if incoming == "" {
		return false
	}

	got, err := hex.DecodeString(incoming)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	want := mac.Sum(nil)

	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}
