package app

import (
	"errors"
	"fmt"

	"tasklane/cmd/security/token"
)

// ValidateSecurityConfig enforces the token-logging policy at startup.
//
// Tokens are never logged; fingerprints are. Unkeyed SHA-256 fingerprints of
// low-entropy test tokens are guessable, so deployments may require a key.
func ValidateSecurityConfig(cfg Config) error {
	key, err := token.FingerprintKeyFromEnv(32)
	if err != nil {
		if errors.Is(err, token.ErrFingerprintKeyTooShort) {
			return fmt.Errorf("security policy: TASKLANE_TOKEN_FINGERPRINT_KEY is too short (min 32 bytes)")
		}
		return err
	}
	if cfg.RequireFingerprintKey && key == nil {
		return errors.New("security policy: TASKLANE_REQUIRE_FINGERPRINT_KEY=true but TASKLANE_TOKEN_FINGERPRINT_KEY is missing")
	}
	return nil
}
