package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *MemoryTier, *MemoryTier) {
	perTab, durable := NewMemoryTier(), NewMemoryTier()
	return NewStore(perTab, durable), perTab, durable
}

func TestSave_PerTabScopeSkipsDurable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, perTab, durable := newTestStore()

	require.NoError(t, s.Save(ctx, "bearer-1", "refresh-1", ScopePerTab))

	v, ok, _ := perTab.Get(ctx, keyBearer)
	assert.True(t, ok)
	assert.Equal(t, "bearer-1", v)
	assert.Equal(t, 0, durable.Len())
}

func TestSave_DurableScopeWritesBothTiers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, perTab, durable := newTestStore()

	require.NoError(t, s.Save(ctx, "bearer-1", "refresh-1", ScopeDurable))
	require.NoError(t, s.Save(ctx, "bearer-1", "refresh-1", ScopeDurable))

	for _, tier := range []*MemoryTier{perTab, durable} {
		b, _, _ := tier.Get(ctx, keyBearer)
		r, _, _ := tier.Get(ctx, keyRefresh)
		assert.Equal(t, "bearer-1", b)
		assert.Equal(t, "refresh-1", r)
		assert.Equal(t, 2, tier.Len())
	}
}

func TestSave_RejectsBadInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _ := newTestStore()

	assert.ErrorIs(t, s.Save(ctx, " ", "r", ScopePerTab), ErrEmptyToken)
	assert.ErrorIs(t, s.Save(ctx, "b", "r", Scope("cookie")), ErrUnknownScope)
}

func TestLoadBootCandidate_Priority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		perTab      map[string]string
		durable     map[string]string
		wantKind    CandidateKind
		wantBearer  string
		wantRefresh string
		wantScope   Scope
	}{
		{
			name:     "nothing stored",
			wantKind: CandidateNone,
		},
		{
			name:        "per-tab wins over durable",
			perTab:      map[string]string{keyBearer: "tab", keyRefresh: "tab-r"},
			durable:     map[string]string{keyBearer: "disk", keyRefresh: "disk-r"},
			wantKind:    CandidateBearer,
			wantBearer:  "tab",
			wantRefresh: "tab-r",
			wantScope:   ScopePerTab,
		},
		{
			name:        "durable bearer",
			durable:     map[string]string{keyBearer: "disk", keyRefresh: "disk-r"},
			wantKind:    CandidateBearer,
			wantBearer:  "disk",
			wantRefresh: "disk-r",
			wantScope:   ScopeDurable,
		},
		{
			name:        "durable refresh only",
			durable:     map[string]string{keyRefresh: "disk-r"},
			wantKind:    CandidateRefreshOnly,
			wantRefresh: "disk-r",
			wantScope:   ScopeDurable,
		},
		{
			name:     "per-tab refresh alone is not a candidate",
			perTab:   map[string]string{keyRefresh: "tab-r"},
			wantKind: CandidateNone,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, perTab, durable := newTestStore()
			require.NoError(t, perTab.SetAll(ctx, tc.perTab))
			require.NoError(t, durable.SetAll(ctx, tc.durable))

			c, err := s.LoadBootCandidate(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, c.Kind)
			assert.Equal(t, tc.wantBearer, c.BearerToken)
			assert.Equal(t, tc.wantRefresh, c.RefreshToken)
			assert.Equal(t, tc.wantScope, c.Scope)
		})
	}
}

func TestPerTabLoginDoesNotSurviveNewTab(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	durable := NewMemoryTier()
	first := NewStore(NewMemoryTier(), durable)
	require.NoError(t, first.Save(ctx, "bearer", "refresh", ScopeFor(false)))

	reopened := NewStore(NewMemoryTier(), durable)
	c, err := reopened.LoadBootCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, CandidateNone, c.Kind)
}

func TestClear_RemovesBothTiers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, perTab, durable := newTestStore()

	require.NoError(t, s.Save(ctx, "b", "r", ScopeDurable))
	require.NoError(t, s.CacheIdentity(ctx, `{"id":"u"}`, ScopeDurable))
	require.NoError(t, s.RememberProject(ctx, "u", "p1"))

	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, 0, perTab.Len())
	// Only the project pointer remains; it is not a credential.
	assert.Equal(t, 1, durable.Len())

	_, ok, err := s.CachedIdentity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingTier struct{ *MemoryTier }

func (failingTier) Delete(context.Context, ...string) error { return errors.New("boom") }

func TestClear_AttemptsBothTiersOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	durable := NewMemoryTier()
	s := NewStore(failingTier{NewMemoryTier()}, durable)

	require.NoError(t, durable.SetAll(ctx, map[string]string{keyBearer: "b"}))

	err := s.Clear(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, durable.Len())
}

func TestProjectPointers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _ := newTestStore()

	require.NoError(t, s.RememberProject(ctx, "alice", "p-a"))
	require.NoError(t, s.RememberProject(ctx, "bob", "p-b"))
	require.NoError(t, s.SetLegacyProject(ctx, "p-legacy"))

	got, legacy, err := s.LastProject(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "p-a", got)
	assert.False(t, legacy)

	got, legacy, err = s.LastProject(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "p-legacy", got)
	assert.True(t, legacy)

	require.NoError(t, s.ForgetProject(ctx, "alice"))
	require.NoError(t, s.ForgetLegacyProject(ctx))

	got, _, err = s.LastProject(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, _, err = s.LastProject(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "p-b", got)

	assert.ErrorIs(t, s.RememberProject(ctx, "", "p"), ErrEmptyUser)
}
