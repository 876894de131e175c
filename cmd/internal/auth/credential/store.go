package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Storage keys. Identical in both tiers.
const (
	keyBearer          = "token"
	keyRefresh         = "refreshToken"
	keyIdentity        = "user"
	keyLegacyProject   = "lastProject"
	keyProjectByUserPx = "lastProject:"
)

// Scope selects the tiers a session's credentials are persisted to.
type Scope string

const (
	// ScopePerTab persists to the per-tab tier only.
	ScopePerTab Scope = "per_tab"
	// ScopeDurable persists to both tiers ("remember me").
	ScopeDurable Scope = "durable"
)

// ScopeFor maps the "remember me" choice to a Scope.
func ScopeFor(rememberMe bool) Scope {
	if rememberMe {
		return ScopeDurable
	}
	return ScopePerTab
}

// CandidateKind classifies what LoadBootCandidate found.
type CandidateKind int

const (
	// CandidateNone means no stored credential.
	CandidateNone CandidateKind = iota
	// CandidateBearer means a bearer token is available for local decode.
	CandidateBearer
	// CandidateRefreshOnly means only a durable refresh token survived.
	CandidateRefreshOnly
)

func (k CandidateKind) String() string {
	switch k {
	case CandidateBearer:
		return "bearer"
	case CandidateRefreshOnly:
		return "refresh_only"
	default:
		return "none"
	}
}

// Candidate is the credential selected for boot-time hydration.
type Candidate struct {
	Kind         CandidateKind
	BearerToken  string
	RefreshToken string
	// Scope is the tier the candidate was read from; refreshed tokens are written back to it.
	Scope Scope
}

var (
	// ErrEmptyToken is returned by Save when no bearer token is given.
	ErrEmptyToken = errors.New("credential: empty bearer token")
	// ErrUnknownScope is returned for an unrecognised Scope.
	ErrUnknownScope = errors.New("credential: unknown scope")
)

// Store is the single owner of the two-tier persistence policy.
type Store struct {
	perTab  Tier
	durable Tier
}

// NewStore constructs a Store over the given tiers.
func NewStore(perTab, durable Tier) *Store {
	if perTab == nil {
		perTab = NewMemoryTier()
	}
	if durable == nil {
		durable = NewMemoryTier()
	}
	return &Store{perTab: perTab, durable: durable}
}

// Save writes the token pair to the per-tab tier, and to the durable tier iff scope is ScopeDurable.
func (s *Store) Save(ctx context.Context, bearer, refresh string, scope Scope) error {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return ErrEmptyToken
	}
	if scope != ScopePerTab && scope != ScopeDurable {
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}

	kv := map[string]string{
		keyBearer:  bearer,
		keyRefresh: strings.TrimSpace(refresh),
	}
	if err := s.perTab.SetAll(ctx, kv); err != nil {
		return fmt.Errorf("save per-tab: %w", err)
	}
	if scope == ScopeDurable {
		if err := s.durable.SetAll(ctx, kv); err != nil {
			return fmt.Errorf("save durable: %w", err)
		}
	}
	return nil
}

// LoadBootCandidate returns, in priority order: a per-tab bearer, a durable
// bearer, a durable refresh token alone, or CandidateNone.
func (s *Store) LoadBootCandidate(ctx context.Context) (Candidate, error) {
	if bearer, err := s.get(ctx, s.perTab, keyBearer); err != nil {
		return Candidate{}, err
	} else if bearer != "" {
		refresh, err := s.get(ctx, s.perTab, keyRefresh)
		if err != nil {
			return Candidate{}, err
		}
		return Candidate{Kind: CandidateBearer, BearerToken: bearer, RefreshToken: refresh, Scope: ScopePerTab}, nil
	}

	bearer, err := s.get(ctx, s.durable, keyBearer)
	if err != nil {
		return Candidate{}, err
	}
	refresh, err := s.get(ctx, s.durable, keyRefresh)
	if err != nil {
		return Candidate{}, err
	}

	switch {
	case bearer != "":
		return Candidate{Kind: CandidateBearer, BearerToken: bearer, RefreshToken: refresh, Scope: ScopeDurable}, nil
	case refresh != "":
		return Candidate{Kind: CandidateRefreshOnly, RefreshToken: refresh, Scope: ScopeDurable}, nil
	default:
		return Candidate{Kind: CandidateNone}, nil
	}
}

// Clear removes tokens and the cached identity from both tiers unconditionally.
// Both tiers are attempted even if the first fails.
func (s *Store) Clear(ctx context.Context) error {
	keys := []string{keyBearer, keyRefresh, keyIdentity}

	var errs []error
	if err := s.perTab.Delete(ctx, keys...); err != nil {
		errs = append(errs, fmt.Errorf("clear per-tab: %w", err))
	}
	if err := s.durable.Delete(ctx, keys...); err != nil {
		errs = append(errs, fmt.Errorf("clear durable: %w", err))
	}
	return errors.Join(errs...)
}

// CacheIdentity stores the encoded identity next to the tokens of the given scope.
func (s *Store) CacheIdentity(ctx context.Context, encoded string, scope Scope) error {
	kv := map[string]string{keyIdentity: encoded}
	if err := s.perTab.SetAll(ctx, kv); err != nil {
		return fmt.Errorf("cache identity per-tab: %w", err)
	}
	if scope == ScopeDurable {
		if err := s.durable.SetAll(ctx, kv); err != nil {
			return fmt.Errorf("cache identity durable: %w", err)
		}
	}
	return nil
}

// CachedIdentity returns the encoded identity, per-tab first.
func (s *Store) CachedIdentity(ctx context.Context) (string, bool, error) {
	for _, t := range []Tier{s.perTab, s.durable} {
		v, err := s.get(ctx, t, keyIdentity)
		if err != nil {
			return "", false, err
		}
		if v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) get(ctx context.Context, t Tier, key string) (string, error) {
	v, ok, err := t.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(v), nil
}
