package authapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to the backend's REST auth surface.
type Client struct {
	log  *slog.Logger
	cfg  Config
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying *http.Client (tests, custom transports).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a Client.
func NewClient(log *slog.Logger, cfg Config, opts ...ClientOption) (*Client, error) {
	cfg = cfg.normalized()
	if cfg.BaseURL == "" {
		return nil, errors.New("authapi: empty base url")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("authapi: invalid base url: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		log:  log,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Login posts credentials and returns the issued token pair.
func (c *Client) Login(ctx context.Context, username, password string, rememberMe bool) (TokenPair, error) {
	req := loginRequest{
		Username:   strings.TrimSpace(username),
		Password:   password,
		RememberMe: rememberMe,
		Platform:   c.cfg.Platform,
	}

	var out loginResponse
	if err := c.postJSON(ctx, "/auth/login", RequestContext{}, req, &out); err != nil {
		return TokenPair{}, err
	}
	if strings.TrimSpace(out.Session.AccessToken) == "" {
		return TokenPair{}, ErrMalformedResponse
	}
	return toTokenPair(out.Session), nil
}

// Refresh exchanges the refresh token (and the expiring bearer, when present) for a new pair.
func (c *Client) Refresh(ctx context.Context, bearer, refresh string, rememberMe bool) (TokenPair, error) {
	req := refreshRequest{
		AccessToken:  strings.TrimSpace(bearer),
		RefreshToken: strings.TrimSpace(refresh),
		RememberMe:   rememberMe,
		Platform:     c.cfg.Platform,
	}

	var out refreshResponse
	if err := c.postJSON(ctx, "/auth/refresh", RequestContext{BearerToken: bearer}, req, &out); err != nil {
		return TokenPair{}, err
	}
	if strings.TrimSpace(out.Session.AccessToken) == "" {
		return TokenPair{}, ErrMalformedResponse
	}
	pair := toTokenPair(out.Session)
	if pair.RefreshToken == "" {
		// Servers that do not rotate keep the old refresh token valid.
		pair.RefreshToken = req.RefreshToken
	}
	return pair, nil
}

// CanAccessProject re-checks read access to projectID for the caller in rc.
// 403 and 404 are answers (false, nil), not errors.
func (c *Client) CanAccessProject(ctx context.Context, rc RequestContext, projectID string) (bool, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/projects/"+url.PathEscape(projectID)+"/access", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	rc.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusNotFound:
		c.log.Info("authapi.project_access.denied", "project_id", projectID, "status", resp.StatusCode)
		return false, nil
	default:
		return false, readAPIError(resp, c.cfg.MaxBodyBytes)
	}

	var out projectAccessResponse
	if err := decodeJSON(resp, c.cfg.MaxBodyBytes, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) postJSON(ctx context.Context, path string, rc RequestContext, in, out any) error {
	body, err := encodeJSON(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	rc.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := readAPIError(resp, c.cfg.MaxBodyBytes)
		c.log.Info("authapi.request.fail", "path", path, "status", apiErr.Status, "code", apiErr.Code)
		return apiErr
	}
	return decodeJSON(resp, c.cfg.MaxBodyBytes, out)
}

func drainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
