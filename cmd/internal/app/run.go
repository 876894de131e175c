package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Serve builds an App from cfg and runs it until ctx is done.
func Serve(ctx context.Context, cfg Config) error {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// Run hydrates the session, starts the refresh loop and the channel
// reconciler, and serves the status endpoints until ctx is done or the
// server fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.reconcileLoop(ctx)

	if err := a.Hydrate(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	go a.session.RunRefreshLoop(ctx)

	mux := http.NewServeMux()
	a.registerHTTP(mux)

	srv := &http.Server{
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"session", a.session.Status(),
		"channel", a.hub.State(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.Close()
		return err
	}

	a.Close()
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
