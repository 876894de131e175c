// Package credential stores bearer/refresh tokens across two storage tiers.
//
// The per-tab tier lives as long as the process. The durable tier survives
// restarts and is only written when the user asked to be remembered.
// All tier-selection policy lives in Store so callers never branch on scope.
package credential
