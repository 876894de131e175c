package token

import "errors"

// ErrFingerprintKeyTooShort is returned when the configured fingerprint key is below the minimum size.
var ErrFingerprintKeyTooShort = errors.New("token fingerprint key too short")
