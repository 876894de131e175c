package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "tasklane/cmd/internal/auth/api"
	"tasklane/cmd/internal/auth/claims"
	"tasklane/cmd/internal/auth/credential"
	"tasklane/cmd/internal/auth/session"
	"tasklane/cmd/internal/realtime"
)

const maxRequestBytes = 64 << 10

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	Destination session.Destination `json:"destination"`
}

type projectRequest struct {
	ProjectID string `json:"project_id"`
}

// sessionView is the public shape of the session. Tokens never leave the process.
type sessionView struct {
	Status        session.Status    `json:"status"`
	Scope         credential.Scope  `json:"scope,omitempty"`
	Identity      *claims.Identity  `json:"identity,omitempty"`
	ActiveProject string            `json:"active_project,omitempty"`
	Channel       realtime.Snapshot `json:"channel"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", a.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /session", a.handleSession)
	mux.HandleFunc("POST /session/login", a.handleLogin)
	mux.HandleFunc("POST /session/logout", a.handleLogout)
	mux.HandleFunc("PUT /session/project", a.handleProject)
	mux.HandleFunc("GET /notifications", a.handleNotifications)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.session.Hydrated():
	default:
		http.Error(w, "session hydrating", http.StatusServiceUnavailable)
		return
	}

	if a.cfg.ReadinessRequireRedis && a.redis == nil {
		http.Error(w, "redis not configured", http.StatusServiceUnavailable)
		return
	}
	if a.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := a.redis.Ping(ctx)
		cancel()
		if err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.redis.not_ready", "err", err)
			return
		}
	}
	if a.pool != nil {
		if err := PingDB(r.Context(), a.pool, 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	s := a.session.Snapshot()
	writeJSON(w, http.StatusOK, sessionView{
		Status:        s.Status,
		Scope:         s.Scope,
		Identity:      s.Identity,
		ActiveProject: a.ActiveProject(),
		Channel:       a.hub.Snapshot(),
	})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}

	dest, err := a.Login(r.Context(), req.Username, req.Password, req.RememberMe)
	if err != nil {
		var ue *session.UserError
		switch {
		case errors.Is(err, session.ErrNotHydrated):
			writeError(w, http.StatusServiceUnavailable, "session is still starting")
		case errors.Is(err, session.ErrAlreadyAuthenticated), errors.Is(err, session.ErrLoginInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &ue) && errors.Is(err, authapi.ErrTransport):
			writeError(w, http.StatusBadGateway, ue.Message)
		case errors.As(err, &ue):
			writeError(w, http.StatusUnauthorized, ue.Message)
		default:
			a.log.Error("session.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Destination: dest})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Logout(r.Context()); err != nil {
		// The session is anonymous regardless; only storage cleanup failed.
		a.log.Warn("session.logout.cleanup_failed", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !readJSON(w, r, &req) {
		return
	}

	err := a.SelectProject(r.Context(), req.ProjectID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, projectRequest{ProjectID: a.ActiveProject()})
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not signed in")
	case errors.Is(err, ErrProjectForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		a.log.Warn("app.project.select_failed", "project_id", req.ProjectID, "err", err)
		writeError(w, http.StatusBadGateway, "could not verify project access")
	}
}

func (a *App) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Notifications())
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
