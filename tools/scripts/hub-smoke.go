// Package main is a CI-friendly smoke test for a tasklane notification hub.
//
// It validates:
//   - handshake with bearer auth and subprotocol selection
//   - JoinGroup completes without error
//   - an optional ReceiveNotification arrives within -wait
//   - LeaveGroup completes without error
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	hubv1 "tasklane/shared/contracts/hub/v1"
)

const maxReadBytes = 64 << 10

type smokeClient struct {
	conn  *websocket.Conn
	inbox chan hubv1.Envelope
	errCh chan error
}

func main() {
	var (
		hubURL  = flag.String("url", "ws://127.0.0.1:8080/hubs/notifications", "Hub WebSocket URL")
		token   = flag.String("token", os.Getenv("TASKLANE_SMOKE_TOKEN"), "Bearer token (default $TASKLANE_SMOKE_TOKEN)")
		query   = flag.Bool("query-auth", false, "Send the token as ?access_token= instead of the Authorization header")
		group   = flag.String("group", "smoke-project", "Group (project id) to join")
		wait    = flag.Duration("wait", 0, "Also wait this long for a ReceiveNotification (0 skips)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateHubURL(*hubURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*token) == "" {
		fatalf("a token is required (-token or TASKLANE_SMOKE_TOKEN)")
	}

	root := context.Background()

	c := mustConnect(root, *hubURL, *token, *query, *timeout)
	defer closeWS(c.conn)

	if *verbose {
		fmt.Printf("connected: url=%s subprotocol=%s\n", *hubURL, c.conn.Subprotocol())
	}

	mustInvoke(root, c, hubv1.MethodJoinGroup, *group, *timeout)

	if *wait > 0 {
		n := mustReceiveNotification(root, c, *wait)
		fmt.Printf("notification: id=%s kind=%s project_id=%s\n", n.ID, n.Kind, n.ProjectID)
	}

	mustInvoke(root, c, hubv1.MethodLeaveGroup, *group, *timeout)

	fmt.Printf("OK: group=%s\n", *group)
}

func validateHubURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, hubURL, token string, queryAuth bool, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if queryAuth {
		u, _ := url.Parse(hubURL)
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
		hubURL = u.String()
	} else {
		h.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.Dial(ctx, hubURL, &websocket.DialOptions{
		Subprotocols: []string{hubv1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != hubv1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, hubv1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan hubv1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			var env hubv1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}
			if env.Type == hubv1.TypePing {
				continue
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func mustInvoke(parent context.Context, c *smokeClient, method, arg string, stepTimeout time.Duration) {
	args, err := hubv1.EncodeArgs(arg)
	if err != nil {
		fatalf("encode args: %v", err)
	}
	now := time.Now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()

	mustWriteWithTimeout(parent, c.conn, hubv1.Envelope{
		V:      hubv1.Version,
		Type:   hubv1.TypeInvocation,
		ID:     id,
		Target: method,
		Args:   args,
		TS:     now,
	}, stepTimeout)

	env := c.mustReadUntil(parent, stepTimeout, func(env hubv1.Envelope) bool {
		return env.Type == hubv1.TypeCompletion && env.ID == id
	})
	if env.Error != nil {
		fatalf("%s failed: code=%q msg=%q", method, env.Error.Code, env.Error.Message)
	}
}

func mustReceiveNotification(parent context.Context, c *smokeClient, wait time.Duration) hubv1.Notification {
	env := c.mustReadUntil(parent, wait, func(env hubv1.Envelope) bool {
		return env.Type == hubv1.TypeEvent && env.Target == hubv1.EventReceiveNotification
	})
	if len(env.Args) == 0 {
		fatalf("notification without args")
	}
	var n hubv1.Notification
	if err := json.Unmarshal(env.Args[0], &n); err != nil {
		fatalf("decode notification: %v", err)
	}
	return n
}

func (c *smokeClient) mustReadUntil(parent context.Context, stepTimeout time.Duration, match func(hubv1.Envelope) bool) hubv1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for hub: %v", ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error: %v", err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed")
			}
			if env.Type == hubv1.TypeClose {
				if env.Error != nil {
					fatalf("hub closed: code=%q msg=%q", env.Error.Code, env.Error.Message)
				}
				fatalf("hub closed")
			}
			if match(env) {
				return env
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env hubv1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
