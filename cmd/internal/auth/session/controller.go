package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tasklane/cmd/internal/access"
	authapi "tasklane/cmd/internal/auth/api"
	"tasklane/cmd/internal/auth/claims"
	"tasklane/cmd/internal/auth/credential"
	"tasklane/cmd/security/token"
)

// Authenticator is the subset of the auth API the controller drives.
// *authapi.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, username, password string, rememberMe bool) (authapi.TokenPair, error)
	Refresh(ctx context.Context, bearer, refresh string, rememberMe bool) (authapi.TokenPair, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		if cfg.RefreshLead >= 0 {
			c.cfg.RefreshLead = cfg.RefreshLead
		}
		if cfg.MinRefreshGap > 0 {
			c.cfg.MinRefreshGap = cfg.MinRefreshGap
		}
	}
}

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics records transitions to m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller owns the Session state machine. Safe for concurrent use.
//
// mu guards state only and is never held across network or storage I/O, so
// readers such as Status and BearerToken never wait on Redis. storeMu
// serialises credential writes; it is taken before mu, and a writer checks the
// epoch under it before touching the store. Results are committed only if
// epoch is unchanged, so a logout or Close that happens mid-flight wins over a
// late response.
type Controller struct {
	log     *slog.Logger
	store   *credential.Store
	decode  claims.Decoder
	api     Authenticator
	access  access.Verifier
	metrics *Metrics
	cfg     Config
	now     func() time.Time

	mu             sync.Mutex
	sess           Session
	hydrateStarted bool
	hydrated       chan struct{}
	loginInFlight  bool
	closed         bool
	epoch          uint64
	changed        chan struct{}

	storeMu sync.Mutex

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]func(Session)
	nextObs   int
}

// NewController builds a controller in the Anonymous state. Hydrate must run
// before Login is accepted.
//
// decode may be nil (claims.Decode is used). verifier may be nil, in which case
// no remembered project is ever trusted.
func NewController(log *slog.Logger, store *credential.Store, decode claims.Decoder, api Authenticator, verifier access.Verifier, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if decode == nil {
		decode = claims.Decode
	}
	c := &Controller{
		log:       log,
		store:     store,
		decode:    decode,
		api:       api,
		access:    verifier,
		cfg:       DefaultConfig(),
		now:       time.Now,
		sess:      Session{Status: StatusAnonymous},
		hydrated:  make(chan struct{}),
		changed:   make(chan struct{}),
		observers: make(map[int]func(Session)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Hydrate reconciles stored credentials into an initial Session. It runs once;
// failures are absorbed into the Anonymous state and only logged.
func (c *Controller) Hydrate(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.hydrateStarted {
		c.mu.Unlock()
		return ErrAlreadyHydrated
	}
	c.hydrateStarted = true
	epoch := c.epoch
	c.setLocked(Session{Status: StatusHydrating})
	c.mu.Unlock()
	c.notify()

	defer close(c.hydrated)

	cand, err := c.store.LoadBootCandidate(ctx)
	if err != nil {
		c.log.Warn("session.hydrate.load_failed", "err", err)
		c.commitAnonymous(epoch)
		return nil
	}

	switch cand.Kind {
	case credential.CandidateBearer:
		id, err := c.decode(cand.BearerToken)
		if err != nil {
			c.log.Warn("session.hydrate.decode_failed",
				"scope", cand.Scope,
				"token_fp", token.Fingerprint(cand.BearerToken),
				"err", err,
			)
			c.clearAndCommitAnonymous(ctx, epoch)
			return nil
		}
		c.commitAuthenticated(epoch, Session{
			Status:       StatusAuthenticated,
			Identity:     &id,
			BearerToken:  cand.BearerToken,
			RefreshToken: cand.RefreshToken,
			Scope:        cand.Scope,
		})
		c.log.Info("session.hydrate.ok", "source", "bearer", "scope", cand.Scope, "user", id.Subject())
		return nil

	case credential.CandidateRefreshOnly:
		pair, err := c.api.Refresh(ctx, "", cand.RefreshToken, cand.Scope == credential.ScopeDurable)
		if c.isStale(epoch) {
			c.log.Info("session.hydrate.discarded")
			return nil
		}
		if err != nil {
			c.log.Warn("session.hydrate.refresh_failed", "err", err)
			if ctx.Err() != nil {
				c.commitAnonymous(epoch)
				return nil
			}
			c.clearAndCommitAnonymous(ctx, epoch)
			return nil
		}
		if !c.commitRefreshed(ctx, epoch, pair, cand.Scope) {
			c.clearAndCommitAnonymous(ctx, epoch)
			return nil
		}
		c.log.Info("session.hydrate.ok", "source", "refresh", "scope", cand.Scope)
		return nil

	default:
		c.commitAnonymous(epoch)
		c.log.Info("session.hydrate.none")
		return nil
	}
}

// Hydrated is closed once Hydrate has finished.
func (c *Controller) Hydrated() <-chan struct{} { return c.hydrated }

// Login authenticates interactively and returns where the UI should go next.
//
// Credential and transport failures return *UserError and leave the session Anonymous.
func (c *Controller) Login(ctx context.Context, username, password string, rememberMe bool) (Destination, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Destination{}, &UserError{Message: "Username and password are required."}
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return Destination{}, ErrClosed
	case !c.isHydratedLocked():
		c.mu.Unlock()
		return Destination{}, ErrNotHydrated
	case c.sess.Status.HasIdentity():
		c.mu.Unlock()
		return Destination{}, ErrAlreadyAuthenticated
	case c.loginInFlight:
		c.mu.Unlock()
		return Destination{}, ErrLoginInProgress
	}
	c.loginInFlight = true
	epoch := c.epoch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loginInFlight = false
		c.mu.Unlock()
	}()

	pair, err := c.api.Login(ctx, username, password, rememberMe)
	if err != nil {
		c.log.Info("session.login.failed", "username", username, "err", err)
		return Destination{}, &UserError{Message: authapi.UserMessage(err), Err: err}
	}

	scope := credential.ScopeFor(rememberMe)
	id, err := c.decode(pair.BearerToken)
	if err != nil {
		c.log.Warn("session.login.decode_failed",
			"username", username,
			"token_fp", token.Fingerprint(pair.BearerToken),
			"err", err,
		)
		id = claims.Fallback(username)
	}

	c.storeMu.Lock()
	if c.isStale(epoch) {
		c.storeMu.Unlock()
		return Destination{}, ErrStale
	}
	if err := c.store.Save(ctx, pair.BearerToken, pair.RefreshToken, scope); err != nil {
		c.storeMu.Unlock()
		c.log.Error("session.login.save_failed", "err", err)
		return Destination{}, &UserError{Message: "We couldn't save your session. Please try again.", Err: err}
	}
	installed := c.install(epoch, Session{
		Status:       StatusAuthenticated,
		Identity:     &id,
		BearerToken:  pair.BearerToken,
		RefreshToken: pair.RefreshToken,
		Scope:        scope,
	})
	if installed {
		c.cacheIdentity(ctx, id, scope)
	}
	c.storeMu.Unlock()
	if !installed {
		return Destination{}, ErrStale
	}
	c.notify()

	c.log.Info("session.login.ok", "user", id.Subject(), "scope", scope, "admin", id.IsAdmin())

	return c.route(ctx, id), nil
}

// Logout tears the session down. Valid in any state. The returned error reports
// storage failures only; the in-memory session is Anonymous regardless.
func (c *Controller) Logout(ctx context.Context) error {
	c.storeMu.Lock()
	c.mu.Lock()
	prev := c.sess
	c.epoch++
	c.setLocked(Session{Status: StatusAnonymous})
	c.mu.Unlock()

	var errs []error
	if err := c.store.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if prev.Identity != nil {
		if err := c.store.ForgetProject(ctx, prev.Identity.Subject()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.store.ForgetLegacyProject(ctx); err != nil {
		errs = append(errs, err)
	}
	c.storeMu.Unlock()
	c.notify()

	err := errors.Join(errs...)
	if err != nil {
		c.log.Warn("session.logout.storage_failed", "err", err)
	}
	if prev.Identity != nil {
		c.log.Info("session.logout", "user", prev.Identity.Subject())
	}
	return err
}

// Refresh renews the bearer token of an Authenticated session. On failure the
// session becomes Expired and stored credentials are cleared.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sess.Status != StatusAuthenticated {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	prev := c.sess
	epoch := c.epoch
	c.setLocked(Session{
		Status:       StatusRefreshing,
		Identity:     prev.Identity,
		BearerToken:  prev.BearerToken,
		RefreshToken: prev.RefreshToken,
		Scope:        prev.Scope,
	})
	c.mu.Unlock()
	c.notify()

	var (
		pair authapi.TokenPair
		err  error
	)
	if prev.RefreshToken == "" {
		err = errors.New("no refresh token")
	} else {
		pair, err = c.api.Refresh(ctx, prev.BearerToken, prev.RefreshToken, prev.Scope == credential.ScopeDurable)
	}

	if c.isStale(epoch) {
		return ErrStale
	}

	if err != nil && ctx.Err() != nil {
		// Cancelled, not rejected: keep the session as it was.
		c.mu.Lock()
		if c.epoch == epoch && !c.closed {
			c.setLocked(prev)
		}
		c.mu.Unlock()
		c.notify()
		return ctx.Err()
	}

	if err == nil && c.commitRefreshed(ctx, epoch, pair, prev.Scope) {
		c.log.Info("session.refresh.ok", "user", prev.Identity.Subject())
		return nil
	}
	if err == nil {
		err = errors.New("refreshed token rejected")
	}

	c.storeMu.Lock()
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		c.storeMu.Unlock()
		return ErrStale
	}
	c.epoch++
	c.setLocked(Session{Status: StatusExpired})
	c.mu.Unlock()
	clearErr := c.store.Clear(ctx)
	c.storeMu.Unlock()
	c.notify()

	c.log.Warn("session.refresh.failed", "user", prev.Identity.Subject(), "err", err)
	if clearErr != nil {
		c.log.Warn("session.refresh.clear_failed", "err", clearErr)
	}
	return errors.Join(ErrRefreshFailed, err)
}

// RememberProject records projectID as the current user's last active project.
func (c *Controller) RememberProject(ctx context.Context, projectID string) error {
	id := c.Identity()
	if id == nil {
		return ErrNotAuthenticated
	}
	return c.store.RememberProject(ctx, id.Subject(), projectID)
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.clone()
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Status
}

// Identity returns a copy of the current identity, or nil.
func (c *Controller) Identity() *claims.Identity {
	return c.Snapshot().Identity
}

// BearerToken returns the current bearer token, or "" when there is no identity.
// The channel manager reads it at every connection attempt.
func (c *Controller) BearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sess.Status.HasIdentity() {
		return ""
	}
	return c.sess.BearerToken
}

// RequestContext returns the credentials to attach to the next REST call.
func (c *Controller) RequestContext() authapi.RequestContext {
	s := c.Snapshot()
	if !s.Status.HasIdentity() {
		return authapi.RequestContext{}
	}
	return authapi.RequestContext{BearerToken: s.BearerToken, UserID: s.Identity.Subject()}
}

// Subscribe registers fn to receive the session after every transition.
// Observers are called sequentially, outside the state lock, and must not
// trigger transitions synchronously. The returned func removes the observer.
func (c *Controller) Subscribe(fn func(Session)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// Close marks the controller replaced. In-flight network results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
}

func (c *Controller) isHydratedLocked() bool {
	select {
	case <-c.hydrated:
		return true
	default:
		return false
	}
}

func (c *Controller) isStale(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.epoch != epoch
}

// setLocked installs s and wakes waiters. Caller holds mu.
func (c *Controller) setLocked(s Session) {
	from := c.sess.Status
	c.sess = s
	close(c.changed)
	c.changed = make(chan struct{})
	if c.metrics != nil && from != s.Status {
		c.metrics.transition(s.Status)
	}
}

func (c *Controller) changes() (Session, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.clone(), c.changed
}

// notify delivers the latest snapshot to observers. notifyMu keeps deliveries
// from concurrent transitions from interleaving.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.obsMu.Lock()
	fns := make([]func(Session), 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if fn, ok := c.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.obsMu.Unlock()

	s := c.Snapshot()
	for _, fn := range fns {
		fn(s)
	}
}

func (c *Controller) commitAnonymous(epoch uint64) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.setLocked(Session{Status: StatusAnonymous})
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) clearAndCommitAnonymous(ctx context.Context, epoch uint64) {
	c.storeMu.Lock()
	if c.isStale(epoch) {
		c.storeMu.Unlock()
		return
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("session.clear_failed", "err", err)
	}
	installed := c.install(epoch, Session{Status: StatusAnonymous})
	c.storeMu.Unlock()
	if installed {
		c.notify()
	}
}

func (c *Controller) commitAuthenticated(epoch uint64, s Session) bool {
	if !c.install(epoch, s) {
		return false
	}
	c.notify()
	return true
}

// install sets s if epoch is still current. It does not notify.
func (c *Controller) install(epoch uint64, s Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		return false
	}
	c.setLocked(s)
	return true
}

// commitRefreshed decodes and persists a refreshed pair. Returns false if the
// pair is unusable; the caller decides what state follows.
func (c *Controller) commitRefreshed(ctx context.Context, epoch uint64, pair authapi.TokenPair, scope credential.Scope) bool {
	id, err := c.decode(pair.BearerToken)
	if err != nil {
		c.log.Warn("session.refresh.decode_failed", "token_fp", token.Fingerprint(pair.BearerToken), "err", err)
		return false
	}

	c.storeMu.Lock()
	if c.isStale(epoch) {
		c.storeMu.Unlock()
		return true
	}
	if err := c.store.Save(ctx, pair.BearerToken, pair.RefreshToken, scope); err != nil {
		c.storeMu.Unlock()
		c.log.Warn("session.refresh.save_failed", "err", err)
		return false
	}
	installed := c.install(epoch, Session{
		Status:       StatusAuthenticated,
		Identity:     &id,
		BearerToken:  pair.BearerToken,
		RefreshToken: pair.RefreshToken,
		Scope:        scope,
	})
	if installed {
		c.cacheIdentity(ctx, id, scope)
	}
	c.storeMu.Unlock()
	if installed {
		c.notify()
	}
	return true
}

func (c *Controller) cacheIdentity(ctx context.Context, id claims.Identity, scope credential.Scope) {
	b, err := json.Marshal(id)
	if err != nil {
		return
	}
	if err := c.store.CacheIdentity(ctx, string(b), scope); err != nil {
		c.log.Warn("session.identity_cache_failed", "err", err)
	}
}
