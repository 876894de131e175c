package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	hubv1 "tasklane/shared/contracts/hub/v1"
)

// EventConnected is dispatched locally after every successful (re)connect.
// Group membership is per connection, so handlers use it to re-issue joins.
const EventConnected = "tasklane.channel.connected"

// TokenSource yields the current bearer token. It is read at every attempt,
// never cached, so a token refreshed after boot is honored on reconnect.
type TokenSource interface {
	BearerToken() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

func (f TokenSourceFunc) BearerToken() string { return f() }

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records state and attempts to m.
func WithMetrics(m *Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// Manager owns the hub connection. Construct one per process in the
// composition root and pass it to consumers. Safe for concurrent use.
//
// Every connection attempt belongs to a generation. Disconnect and Close bump
// the generation; results of attempts from an older generation are closed and
// discarded.
type Manager struct {
	log     *slog.Logger
	cfg     Config
	dialer  Dialer
	tokens  TokenSource
	disp    *Dispatcher
	metrics *Metrics

	mu        sync.Mutex
	state     State
	off       bool // disabled by configuration rather than by exhaustion
	failures  int  // consecutive failed reconnect attempts
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	conn      Conn
	groups    map[string]struct{}
	pending   map[string]bool // group id -> join, for invocations in flight
	timer     *time.Timer
	closed    bool
}

// NewManager builds a manager. With cfg.Enabled false it starts, and stays,
// Disabled. dispatcher may be nil (a private one is created).
func NewManager(log *slog.Logger, cfg Config, dialer Dialer, tokens TokenSource, dispatcher *Dispatcher, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(log)
	}
	if tokens == nil {
		tokens = TokenSourceFunc(func() string { return "" })
	}

	m := &Manager{
		log:    log,
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		tokens: tokens,
		disp:   dispatcher,
		state:  StateDisconnected,
		groups:  make(map[string]struct{}),
		pending: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if !m.cfg.Enabled || m.dialer == nil {
		m.off = true
		m.state = StateDisabled
	}
	m.metrics.setState(m.state)
	return m
}

// Connect opens the hub connection. It is ignored unless the manager is
// Disconnected, so concurrent or repeated calls produce a single attempt.
// Connect returns once the first attempt has finished; failures are never
// returned and schedule retries instead.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.state != StateDisconnected {
		state := m.state
		m.mu.Unlock()
		m.log.Debug("channel.connect.ignored", "state", state)
		return
	}
	m.gen++
	gen := m.gen
	m.genCtx, m.genCancel = context.WithCancel(context.Background())
	genCtx := m.genCtx
	m.failures = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	// The first attempt also honours the caller's ctx.
	actx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(genCtx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	m.attempt(actx, gen, false)
}

// attempt dials once and commits the result if gen is still current. Only
// reconnect attempts count toward MaxReconnectAttempts; a failed initial dial
// moves straight to Reconnecting.
func (m *Manager) attempt(ctx context.Context, gen uint64, reconnect bool) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dctx, m.tokens.BearerToken(), m.disp.Dispatch)

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.log.Debug("channel.attempt.discarded", "gen", gen)
		return
	}

	if err != nil {
		if reconnect {
			m.failures++
		}
		m.metrics.connectResult(false)
		failures := m.failures

		if reconnect && failures >= m.cfg.MaxReconnectAttempts {
			m.disableLocked()
			m.mu.Unlock()
			m.log.Warn("channel.disabled",
				"reason", "reconnect attempts exhausted",
				"attempts", failures,
				"err", err,
			)
			return
		}

		delay := backoffDelay(failures, m.cfg.ReconnectBase)
		m.setStateLocked(StateReconnecting)
		m.scheduleLocked(gen, delay)
		m.mu.Unlock()

		m.log.Info("channel.reconnect.scheduled", "attempt", failures+1, "delay", delay, "err", err)
		return
	}

	m.failures = 0
	m.conn = conn
	m.groups = make(map[string]struct{})
	m.setStateLocked(StateConnected)
	m.metrics.connectResult(true)
	m.mu.Unlock()

	m.log.Info("channel.connected", "gen", gen)
	go m.watch(gen, conn)
	m.disp.Dispatch(Event{Name: EventConnected})
}

// watch waits for conn to end and starts reconnecting if it is still the live connection.
func (m *Manager) watch(gen uint64, conn Conn) {
	<-conn.Done()

	m.mu.Lock()
	if m.closed || m.gen != gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.groups = make(map[string]struct{})
	m.setStateLocked(StateReconnecting)
	delay := backoffDelay(m.failures, m.cfg.ReconnectBase)
	m.scheduleLocked(gen, delay)
	m.mu.Unlock()

	m.log.Warn("channel.connection.lost", "err", conn.Err(), "retry_in", delay)
}

func (m *Manager) scheduleLocked(gen uint64, delay time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	ctx := m.genCtx
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed || m.gen != gen || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.mu.Unlock()

		m.metrics.reconnectAttempt()
		m.attempt(ctx, gen, true)
	})
}

// disableLocked enters the terminal Disabled state.
func (m *Manager) disableLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.genCancel != nil {
		m.genCancel()
	}
	m.groups = make(map[string]struct{})
	m.setStateLocked(StateDisabled)
}

// Disconnect stops retries and closes the socket. A Disabled manager stays Disabled.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateDisabled || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	conn := m.teardownLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.log.Info("channel.disconnected")
}

// teardownLocked invalidates the current generation and returns the socket to close.
func (m *Manager) teardownLocked() Conn {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.genCancel != nil {
		m.genCancel()
		m.genCancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.failures = 0
	m.groups = make(map[string]struct{})
	return conn
}

// Close tears the manager down for good.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	conn := m.teardownLocked()
	m.closed = true
	if m.state != StateDisabled {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// JoinGroup subscribes the connection to group id. It is a logged no-op when
// not Connected or already joined.
func (m *Manager) JoinGroup(ctx context.Context, id string) error {
	return m.membership(ctx, hubv1.MethodJoinGroup, id, true)
}

// LeaveGroup unsubscribes from group id. It is a logged no-op when not
// Connected or not a member.
func (m *Manager) LeaveGroup(ctx context.Context, id string) error {
	return m.membership(ctx, hubv1.MethodLeaveGroup, id, false)
}

func (m *Manager) membership(ctx context.Context, method, id string, join bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%s: empty group id", method)
	}

	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		state := m.state
		m.mu.Unlock()
		m.log.Info("channel.group.skipped", "method", method, "group", id, "state", state)
		return nil
	}
	if _, member := m.groups[id]; member == join {
		m.mu.Unlock()
		return nil
	}
	if inFlight, ok := m.pending[id]; ok && inFlight == join {
		m.mu.Unlock()
		m.log.Debug("channel.group.in_flight", "method", method, "group", id)
		return nil
	}
	m.pending[id] = join
	conn := m.conn
	m.mu.Unlock()

	err := m.invokeOn(ctx, conn, method, id)

	m.mu.Lock()
	if m.pending[id] == join {
		delete(m.pending, id)
	}
	if err == nil && m.conn == conn {
		if join {
			m.groups[id] = struct{}{}
		} else {
			delete(m.groups, id)
		}
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}

	m.log.Info("channel.group.updated", "method", method, "group", id)
	return nil
}

// Invoke calls a hub method. When the hub is turned off by configuration it
// logs and returns nil. Otherwise it returns ErrConnectionUnavailable unless
// Connected, including after reconnect attempts are exhausted.
func (m *Manager) Invoke(ctx context.Context, method string, args ...any) error {
	m.mu.Lock()
	off, state, conn := m.off, m.state, m.conn
	m.mu.Unlock()

	if off {
		m.log.Info("channel.invoke.skipped", "method", method, "reason", "disabled by configuration")
		return nil
	}

	if state != StateConnected || conn == nil {
		m.log.Info("channel.invoke.unavailable", "method", method, "state", state)
		return fmt.Errorf("%w: %s (state %s)", ErrConnectionUnavailable, method, state)
	}
	return m.invokeOn(ctx, conn, method, args...)
}

func (m *Manager) invokeOn(ctx context.Context, conn Conn, method string, args ...any) error {
	ictx, cancel := context.WithTimeout(ctx, m.cfg.InvokeTimeout)
	defer cancel()

	err := conn.Invoke(ictx, method, args...)
	m.metrics.invocation(method, err == nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectionClosed) {
		return fmt.Errorf("%w: %s: %w", ErrConnectionUnavailable, method, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvocationFailed, method, err)
}

// On registers a handler for a hub event. Valid in any state.
func (m *Manager) On(event string, fn Handler) HandlerID { return m.disp.On(event, fn) }

// Off removes one handler.
func (m *Manager) Off(event string, id HandlerID) { m.disp.Off(event, id) }

// OffAll removes every handler for event.
func (m *Manager) OffAll(event string) { m.disp.OffAll(event) }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Groups returns the joined groups, sorted.
func (m *Manager) Groups() []string {
	return m.Snapshot().Groups
}

// Snapshot returns the current state, failure streak and groups.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups := make([]string, 0, len(m.groups))
	for g := range m.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return Snapshot{State: m.state, ReconnectAttempts: m.failures, Groups: groups}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.metrics.setState(s)
}
