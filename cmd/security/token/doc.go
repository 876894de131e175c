// Package token provides log-safe handling of bearer and refresh tokens.
//
// Raw tokens never reach a log line. Callers log a Fingerprint instead:
// a short, stable digest that lets operators correlate events for the same
// credential without being able to replay it.
//
// Environment:
//   - TASKLANE_TOKEN_FINGERPRINT_KEY: when set, fingerprints are HMAC-SHA256 keyed
//     so digests cannot be precomputed from leaked token lists.
package token
