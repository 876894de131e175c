package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// FingerprintKeyEnv is the env var name for the optional fingerprint HMAC key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	FingerprintKeyEnv = "TASKLANE_TOKEN_FINGERPRINT_KEY"

	// fingerprintHexLen is the number of hex chars kept from the digest.
	fingerprintHexLen = 12
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// FingerprintKeyFromEnv returns the configured key bytes (trimmed).
// A missing key is not an error: (nil, nil) selects plain SHA-256 fingerprints.
func FingerprintKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(FingerprintKeyEnv))
	if raw == "" {
		return nil, nil
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrFingerprintKeyTooShort
	}
	return b, nil
}

// Fingerprint returns a short log-safe digest of tok.
// Empty input yields "" so log lines show the absence of a token explicitly.
func Fingerprint(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}

	var sum string
	if key := strings.TrimSpace(os.Getenv(FingerprintKeyEnv)); key != "" {
		sum = HashHMACSHA256Hex(tok, []byte(key))
	} else {
		sum = HashSHA256Hex(tok)
	}
	return sum[:fingerprintHexLen]
}
