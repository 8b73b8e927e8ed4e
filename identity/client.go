package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoSession is returned when the provider does not recognise the access token
	ErrNoSession = errors.New("no session")

	// ErrProviderUnavailable is returned when the provider call itself fails
	// (transport error, timeout, unexpected status, undecodable body)
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrInvalidLink is returned when a magic-link token is rejected
	ErrInvalidLink = errors.New("invalid or expired sign-in link")

	// ErrProviderRateLimited is returned when the provider throttles magic-link sends
	ErrProviderRateLimited = errors.New("identity provider rate limited")

	// ErrNotConfigured is returned by calls made without a provider URL
	ErrNotConfigured = errors.New("identity provider not configured")
)

const (
	userPath   = "/auth/v1/user"
	otpPath    = "/auth/v1/otp"
	verifyPath = "/auth/v1/verify"
	logoutPath = "/auth/v1/logout"
	healthPath = "/auth/v1/health"

	maxErrorBody = 4 << 10
)

// CallObserver receives the latency and outcome of every provider call
type CallObserver interface {
	ObserveProviderCall(operation, outcome string, elapsed time.Duration)
}

// Config holds configuration for Client
type Config struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

// Client talks to a GoTrue-compatible identity provider
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	observer   CallObserver
	logger     *zap.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithObserver attaches a latency observer
func WithObserver(o CallObserver) Option {
	return func(cl *Client) { cl.observer = o }
}

// NewClient creates a new identity provider client
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUser returns the principal that owns accessToken.
// It returns ErrNoSession when the provider rejects the token and an error
// wrapping ErrProviderUnavailable when the provider cannot answer.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, ErrNotConfigured)
	}

	start := time.Now()
	req, err := c.newRequest(ctx, http.MethodGet, userPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("get_user", "error", start)
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		c.observe("get_user", "no_session", start)
		return nil, ErrNoSession
	default:
		c.observe("get_user", "error", start)
		return nil, fmt.Errorf("%w: status code %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var principal Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		c.observe("get_user", "error", start)
		return nil, fmt.Errorf("%w: decode user: %v", ErrProviderUnavailable, err)
	}
	if principal.ID == uuid.Nil {
		c.observe("get_user", "error", start)
		return nil, fmt.Errorf("%w: user response without id", ErrProviderUnavailable)
	}

	c.observe("get_user", "ok", start)
	return &principal, nil
}

// SendMagicLink asks the provider to email a sign-in link. redirectTo is the
// absolute URL the link lands on after the provider verifies it.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	path := otpPath
	if redirectTo != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	body := map[string]any{
		"email":       email,
		"create_user": true,
	}

	start := time.Now()
	resp, err := c.postJSON(ctx, path, "", body)
	if err != nil {
		c.observe("send_magic_link", "error", start)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.observe("send_magic_link", "rate_limited", start)
		return ErrProviderRateLimited
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.observe("send_magic_link", "ok", start)
		return nil
	default:
		c.observe("send_magic_link", "error", start)
		return fmt.Errorf("%w: otp status %d: %s", ErrProviderUnavailable, resp.StatusCode, readErrorBody(resp.Body))
	}
}

// VerifyMagicLink exchanges the token hash from an emailed link for a session
func (c *Client) VerifyMagicLink(ctx context.Context, tokenHash string, otpType OTPType) (*Session, error) {
	if tokenHash == "" || !otpType.Valid() {
		return nil, ErrInvalidLink
	}
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	resp, err := c.postJSON(ctx, verifyPath, "", map[string]any{
		"type":       string(otpType),
		"token_hash": tokenHash,
	})
	if err != nil {
		c.observe("verify", "error", start)
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.observe("verify", "invalid_link", start)
		return nil, ErrInvalidLink
	default:
		c.observe("verify", "error", start)
		return nil, fmt.Errorf("%w: verify status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		c.observe("verify", "error", start)
		return nil, fmt.Errorf("%w: decode session: %v", ErrProviderUnavailable, err)
	}
	if session.AccessToken == "" {
		c.observe("verify", "error", start)
		return nil, fmt.Errorf("%w: session without access token", ErrProviderUnavailable)
	}

	c.observe("verify", "ok", start)
	return &session, nil
}

// SignOut revokes the session behind accessToken at the provider
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	resp, err := c.postJSON(ctx, logoutPath, accessToken, nil)
	if err != nil {
		c.observe("sign_out", "error", start)
		return err
	}
	defer resp.Body.Close()

	// An already-dead session is as signed out as it gets.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 ||
		resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound {
		c.observe("sign_out", "ok", start)
		return nil
	}
	c.observe("sign_out", "error", start)
	return fmt.Errorf("%w: logout status %d", ErrProviderUnavailable, resp.StatusCode)
}

// Health checks that the provider answers its health endpoint
func (c *Client) Health(ctx context.Context) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	req, err := c.newRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path, accessToken string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return resp, nil
}

func (c *Client) observe(operation, outcome string, start time.Time) {
	elapsed := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveProviderCall(operation, outcome, elapsed)
	}
	if c.logger != nil {
		c.logger.Debug("identity provider call",
			zap.String("operation", operation),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed))
	}
}

// transportError keeps caller cancellation distinguishable from provider outages
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
