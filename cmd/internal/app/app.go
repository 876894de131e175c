// Package app wires the tasklane runtime: config, logging, the session
// controller, the hub connection and the local status HTTP surface.
//
// The App is the composition root. It owns exactly one credential store, one
// session controller and one channel manager and hands them to consumers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tasklane/cmd/internal/access"
	authapi "tasklane/cmd/internal/auth/api"
	"tasklane/cmd/internal/auth/claims"
	"tasklane/cmd/internal/auth/credential"
	"tasklane/cmd/internal/auth/session"
	"tasklane/cmd/internal/realtime"
	hubv1 "tasklane/shared/contracts/hub/v1"
)

// ErrProjectForbidden is returned when the caller cannot read the requested project.
var ErrProjectForbidden = errors.New("project access denied")

// Option customizes New. Tests use these to replace network-facing parts.
type Option func(*options)

type options struct {
	durable    credential.Tier
	verifier   access.Verifier
	dialer     realtime.Dialer
	httpClient *http.Client
}

// WithDurableTier replaces the Redis/memory durable tier selection.
func WithDurableTier(t credential.Tier) Option {
	return func(o *options) { o.durable = t }
}

// WithVerifier replaces the Postgres/API project-access verifier selection.
func WithVerifier(v access.Verifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithDialer replaces the WebSocket hub dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHTTPClient sets the HTTP client used by the auth API client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// App is the tasklane runtime.
type App struct {
	cfg Config
	log Logger
	reg *prometheus.Registry

	pool  *pgxpool.Pool
	redis *credential.RedisTier

	store    *credential.Store
	verifier access.Verifier
	session  *session.Controller
	hub      *realtime.Manager
	inbox    *inbox

	reconcile chan struct{}

	mu            sync.Mutex
	activeProject string
	unsubscribe   func()
	closeOnce     sync.Once
}

// New constructs a fully wired App. Nothing touches the network until Run,
// Hydrate or Login is called, except the optional Postgres pool and Redis
// tier which are pinged on construction.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		reg:       prometheus.NewRegistry(),
		inbox:     newInbox(inboxSize),
		reconcile: make(chan struct{}, 1),
	}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	durable, err := a.durableTier(ctx, o.durable)
	if err != nil {
		return nil, err
	}
	a.store = credential.NewStore(credential.NewMemoryTier(), durable)

	var clientOpts []authapi.ClientOption
	if o.httpClient != nil {
		clientOpts = append(clientOpts, authapi.WithHTTPClient(o.httpClient))
	}
	api, err := authapi.NewClient(log.With("component", "authapi"), cfg.API, clientOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.verifier, err = a.projectVerifier(ctx, o.verifier, api)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.session = session.NewController(
		log.With("component", "session"),
		a.store,
		claims.Decode,
		api,
		a.verifier,
		session.WithConfig(cfg.Session),
		session.WithMetrics(session.NewMetrics(a.reg)),
	)

	dialer := o.dialer
	if dialer == nil {
		dialer = realtime.NewWSDialer(log.With("component", "channel"), cfg.Hub)
	}
	a.hub = realtime.NewManager(
		log.With("component", "channel"),
		cfg.Hub,
		dialer,
		a.session,
		realtime.NewDispatcher(log.With("component", "dispatcher")),
		realtime.WithMetrics(realtime.NewMetrics(a.reg)),
	)
	a.hub.On(realtime.EventConnected, a.onConnected)
	a.hub.On(hubv1.EventReceiveNotification, a.onNotification)

	a.unsubscribe = a.session.Subscribe(a.onSession)

	log.Info("app.ready",
		"durable_tier", tierName(durable),
		"verifier", verifierName(a.verifier),
		"hub_enabled", cfg.Hub.Enabled,
		"profile", cfg.Profile,
	)
	return a, nil
}

func (a *App) durableTier(ctx context.Context, override credential.Tier) (credential.Tier, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.RedisURL == "" {
		a.log.Info("credential.durable.memory")
		return credential.NewMemoryTier(), nil
	}
	rt, err := credential.NewRedisTier(ctx, a.cfg.RedisURL, a.cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("redis tier: %w", err)
	}
	a.redis = rt
	a.log.Info("credential.durable.redis", "profile", a.cfg.Profile)
	return rt, nil
}

func (a *App) projectVerifier(ctx context.Context, override access.Verifier, api *authapi.Client) (access.Verifier, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.DatabaseURL == "" {
		return api, nil
	}
	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("db pool: %w", err)
	}
	a.pool = pool
	v, err := access.NewPostgresVerifier(pool, access.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Session returns the session controller.
func (a *App) Session() *session.Controller { return a.session }

// Hub returns the channel manager.
func (a *App) Hub() *realtime.Manager { return a.hub }

// Registry returns the metrics registry served on /metrics.
func (a *App) Registry() *prometheus.Registry { return a.reg }

// Hydrate restores the stored session and, when authenticated, the last
// active project. It must run before Login.
func (a *App) Hydrate(ctx context.Context) error {
	if err := a.session.Hydrate(ctx); err != nil {
		return err
	}
	id := a.session.Identity()
	if id == nil {
		return nil
	}
	pid, _, err := a.store.LastProject(ctx, id.Subject())
	if err != nil {
		a.log.Warn("app.project.restore_failed", "err", err)
		return nil
	}
	if pid != "" {
		a.setActiveProject(ctx, pid)
	}
	return nil
}

// Login authenticates and applies the routing decision.
func (a *App) Login(ctx context.Context, username, password string, rememberMe bool) (session.Destination, error) {
	dest, err := a.session.Login(ctx, username, password, rememberMe)
	if err != nil {
		return session.Destination{}, err
	}
	if dest.Kind == session.DestinationProject {
		a.setActiveProject(ctx, dest.ProjectID)
	}
	return dest, nil
}

// Logout ends the session. The channel is torn down by the session observer.
func (a *App) Logout(ctx context.Context) error {
	return a.session.Logout(ctx)
}

// SelectProject verifies access to projectID, remembers it as the last active
// project and moves the channel's group membership to it.
func (a *App) SelectProject(ctx context.Context, projectID string) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return errors.New("project id is required")
	}
	rc := a.session.RequestContext()
	if !rc.Authenticated() {
		return session.ErrNotAuthenticated
	}

	ok, err := a.verifier.CanAccessProject(ctx, rc, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProjectForbidden
	}
	if err := a.session.RememberProject(ctx, projectID); err != nil {
		return err
	}
	a.setActiveProject(ctx, projectID)
	return nil
}

// ActiveProject returns the project whose group the channel should be in.
func (a *App) ActiveProject() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeProject
}

// Notifications returns the most recent hub notifications, newest first.
func (a *App) Notifications() []hubv1.Notification {
	return a.inbox.list()
}

// setActiveProject records pid before joining so a connect racing with it
// still joins through onConnected.
func (a *App) setActiveProject(ctx context.Context, pid string) {
	a.mu.Lock()
	prev := a.activeProject
	a.activeProject = pid
	a.mu.Unlock()

	if prev != "" && prev != pid {
		if err := a.hub.LeaveGroup(ctx, prev); err != nil {
			a.log.Warn("app.group.leave_failed", "group", prev, "err", err)
		}
	}
	if pid == "" {
		return
	}
	if err := a.hub.JoinGroup(ctx, pid); err != nil {
		a.log.Warn("app.group.join_failed", "group", pid, "err", err)
	}
}

// onSession runs after every session transition.
func (a *App) onSession(s session.Session) {
	if !s.Status.HasIdentity() {
		a.mu.Lock()
		a.activeProject = ""
		a.mu.Unlock()
	}
	select {
	case a.reconcile <- struct{}{}:
	default:
	}
}

// reconcileLoop keeps the channel in line with the session: connected while
// there is an identity, disconnected otherwise. Signals coalesce, and every
// pass reads the latest status.
func (a *App) reconcileLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.reconcile:
		}
		if a.session.Status().HasIdentity() {
			a.hub.Connect(ctx)
		} else {
			a.hub.Disconnect(ctx)
		}
	}
}

func (a *App) onConnected(realtime.Event) {
	pid := a.ActiveProject()
	if pid == "" {
		return
	}
	if err := a.hub.JoinGroup(context.Background(), pid); err != nil {
		a.log.Warn("app.group.rejoin_failed", "group", pid, "err", err)
	}
}

func (a *App) onNotification(ev realtime.Event) {
	var n hubv1.Notification
	if err := ev.Decode(0, &n); err != nil {
		a.log.Warn("channel.notification.bad_args", "err", err)
		return
	}
	a.inbox.add(n)
	a.log.Info("channel.notification",
		"id", n.ID,
		"kind", n.Kind,
		"project_id", n.ProjectID,
	)
}

// Close releases every owned resource. Safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		if a.hub != nil {
			a.hub.Close()
		}
		if a.session != nil {
			a.session.Close()
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.log.Warn("redis.close.fail", "err", err)
			}
		}
		if a.pool != nil {
			a.pool.Close()
		}
	})
}

func tierName(t credential.Tier) string {
	switch t.(type) {
	case *credential.RedisTier:
		return "redis"
	case *credential.MemoryTier:
		return "memory"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func verifierName(v access.Verifier) string {
	switch v.(type) {
	case *access.PostgresVerifier:
		return "postgres"
	case *authapi.Client:
		return "api"
	default:
		return fmt.Sprintf("%T", v)
	}
}
