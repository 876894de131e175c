package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	hubv1 "tasklane/shared/contracts/hub/v1"
)

// Conn is an open hub connection.
type Conn interface {
	// Invoke calls a hub method and waits for its completion.
	Invoke(ctx context.Context, method string, args ...any) error
	// Done is closed when the connection ends for any reason.
	Done() <-chan struct{}
	// Err reports why the connection ended. nil while open.
	Err() error
	Close() error
}

// Dialer opens hub connections. onEvent is called from the connection's read
// goroutine for every inbound event.
type Dialer interface {
	Dial(ctx context.Context, token string, onEvent func(Event)) (Conn, error)
}

// WSDialer dials the hub over WebSocket using the v1 contract.
type WSDialer struct {
	log *slog.Logger
	cfg Config
	hc  *http.Client
}

// WSDialerOption configures a WSDialer.
type WSDialerOption func(*WSDialer)

// WithDialHTTPClient sets the HTTP client used for the upgrade request.
func WithDialHTTPClient(hc *http.Client) WSDialerOption {
	return func(d *WSDialer) {
		if hc != nil {
			d.hc = hc
		}
	}
}

// NewWSDialer returns a dialer for cfg.HubURL.
func NewWSDialer(log *slog.Logger, cfg Config, opts ...WSDialerOption) *WSDialer {
	if log == nil {
		log = slog.Default()
	}
	d := &WSDialer{log: log, cfg: cfg.withDefaults()}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dial opens the socket, checks the negotiated subprotocol and starts the
// read and heartbeat loops. token is read by the caller at attempt time.
func (d *WSDialer) Dial(ctx context.Context, token string, onEvent func(Event)) (Conn, error) {
	target, err := d.dialURL(token)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	if d.cfg.HeaderAuth && token != "" {
		h.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient:   d.hc,
		HTTPHeader:   h,
		Subprotocols: []string{hubv1.Subprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if ws.Subprotocol() != hubv1.Subprotocol {
		_ = ws.Close(websocket.StatusProtocolError, "subprotocol required")
		return nil, fmt.Errorf("%w: got %q", ErrSubprotocol, ws.Subprotocol())
	}
	ws.SetReadLimit(maxFrameBytes)

	c := newWSConn(d.log, ws, d.cfg, onEvent)
	c.start()
	return c, nil
}

func (d *WSDialer) dialURL(token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(d.cfg.HubURL))
	if err != nil {
		return "", fmt.Errorf("%w: hub url: %v", ErrConfig, err)
	}
	if !d.cfg.HeaderAuth && token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type completion struct {
	err error
}

// wsConn multiplexes invocations over one socket. The read loop owns inbound
// frames; writes are serialized by writeMu.
type wsConn struct {
	log     *slog.Logger
	ws      *websocket.Conn
	cfg     Config
	onEvent func(Event)
	limiter *invocationLimiter

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan completion
	err     error

	done      chan struct{}
	closeOnce sync.Once
	loops     sync.WaitGroup
}

func newWSConn(log *slog.Logger, ws *websocket.Conn, cfg Config, onEvent func(Event)) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &wsConn{
		log:     log,
		ws:      ws,
		cfg:     cfg,
		onEvent: onEvent,
		limiter: newInvocationLimiter(rateLimitEvents, rateLimitWindow),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan completion),
		done:    make(chan struct{}),
	}
}

func (c *wsConn) start() {
	c.loops.Add(2)
	go c.readLoop()
	go c.heartbeatLoop()
}

func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsConn) Close() error {
	c.shutdown(websocket.StatusNormalClosure, "bye", ErrConnectionClosed)

	waited := make(chan struct{})
	go func() {
		c.loops.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(closeGrace):
	}
	return nil
}

// shutdown is idempotent. Pending invocations fail with cause.
func (c *wsConn) shutdown(code websocket.StatusCode, reason string, cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		pending := c.pending
		c.pending = make(map[string]chan completion)
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- completion{err: cause}
		}

		_ = c.ws.Close(code, reason)
		c.cancel()
		close(c.done)
	})
}

func (c *wsConn) Invoke(ctx context.Context, method string, args ...any) error {
	if len(args) > maxInvocationArgs {
		return fmt.Errorf("too many args: %d", len(args))
	}
	if wait, ok := c.limiter.admit(time.Now()); !ok {
		return fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Millisecond))
	}

	raw, err := hubv1.EncodeArgs(args...)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	id, err := NewInvocationID(now)
	if err != nil {
		return err
	}

	ch := make(chan completion, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	env := hubv1.Envelope{
		V:      hubv1.Version,
		Type:   hubv1.TypeInvocation,
		ID:     id,
		Target: method,
		Args:   raw,
		TS:     now,
	}
	if err := c.write(ctx, env); err != nil {
		c.forget(id)
		return err
	}

	select {
	case res := <-ch:
		return res.err
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *wsConn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *wsConn) write(ctx context.Context, env hubv1.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeEnvelope(ctx, c.ws, env, c.cfg.InvokeTimeout)
}

func (c *wsConn) readLoop() {
	defer c.loops.Done()

	for {
		env, err := readEnvelope(c.ctx, c.ws)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrBadJSON:
				c.log.Info("channel.read.bad_json", "err", err)
				continue
			case readErrClose:
				c.shutdown(websocket.StatusNormalClosure, "peer closed", fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			case readErrCtxDone:
				c.shutdown(websocket.StatusNormalClosure, "context done", ErrConnectionClosed)
			default:
				c.shutdown(websocket.StatusAbnormalClosure, "read failed", fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			}
			return
		}

		if err := env.Validate(); err != nil {
			c.log.Info("channel.read.bad_envelope", "err", err)
			continue
		}

		switch env.Type {
		case hubv1.TypeCompletion:
			c.complete(env)
		case hubv1.TypeEvent:
			c.onEvent(Event{Name: env.Target, Args: env.Args})
		case hubv1.TypePing:
			_ = c.write(c.ctx, hubv1.Envelope{V: hubv1.Version, Type: hubv1.TypePing, TS: time.Now().UTC()})
		case hubv1.TypeClose:
			cause := error(ErrConnectionClosed)
			if env.Error != nil {
				cause = fmt.Errorf("%w: %w", ErrConnectionClosed, &HubError{Code: env.Error.Code, Message: env.Error.Message})
			}
			c.shutdown(websocket.StatusNormalClosure, "hub closed", cause)
			return
		default:
			c.log.Info("channel.read.unexpected", "type", env.Type)
		}
	}
}

func (c *wsConn) complete(env hubv1.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("channel.completion.orphan", "id", env.ID)
		return
	}
	var err error
	if env.Error != nil {
		err = &HubError{Code: env.Error.Code, Message: env.Error.Message}
	}
	ch <- completion{err: err}
}

func (c *wsConn) heartbeatLoop() {
	defer c.loops.Done()

	t := time.NewTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(c.ctx, c.cfg.HeartbeatTimeout)
			err := c.ws.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				c.log.Info("channel.ping.fail", "failures", failures, "err", err)
				if failures >= maxPingFailures {
					c.shutdown(websocket.StatusGoingAway, "heartbeat failed", fmt.Errorf("%w: heartbeat failed", ErrConnectionClosed))
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (hubv1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return hubv1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return hubv1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env hubv1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return hubv1.Envelope{}, &badJSONError{err: err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env hubv1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type badJSONError struct{ err error }

func (e *badJSONError) Error() string { return "bad json: " + e.err.Error() }
func (e *badJSONError) Unwrap() error { return e.err }

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bj *badJSONError
	if errors.As(err, &bj) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
