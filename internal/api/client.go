// Package api is the typed HTTP client for the budgeting backend.
//
// Every call runs under a timeout and a client-side rate limit. Calls made
// with a bearer token that come back 401 trigger one token refresh through
// the TokenSource and are retried once; concurrent 401s share that refresh.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"budgetwise/internal/core"
	applog "budgetwise/internal/log"
	"budgetwise/internal/middleware/trace"
)

const (
	DefaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
)

// TokenSource supplies the bearer token and recovers from expiry.
type TokenSource interface {
	AccessToken() string
	// RefreshAccess exchanges the refresh token for a new access token.
	// An error means the session is gone.
	RefreshAccess(ctx context.Context) (string, error)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	HTTPClient *http.Client
	Logger     *applog.Logger
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	logger  *applog.Logger

	mu      sync.RWMutex
	tokens  TokenSource
	refresh singleflight.Group
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentAPI)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	// Wrap a copy so the caller's client is left alone.
	wrapped := *hc
	wrapped.Transport = &trace.Transport{Base: hc.Transport, Logger: logger}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: timeout,
		http:    &wrapped,
		limiter: limiter,
		logger:  logger,
	}
}

// SetTokenSource installs the source consulted for bearer tokens.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (*core.User, error) {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, ValidationError("name is required")
	case strings.TrimSpace(req.Email) == "":
		return nil, ValidationError("email is required")
	case req.Password == "":
		return nil, ValidationError("password is required")
	case req.Password != req.ConfirmPassword:
		return nil, ValidationError("passwords do not match")
	case !req.AgreeToTerms:
		return nil, ValidationError("you must agree to the terms")
	}

	var user core.User
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &user, false); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Signin(ctx context.Context, req SigninRequest) (*TokenResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, ValidationError("email and password are required")
	}

	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", req, &out, false); err != nil {
		return nil, err
	}
	if err := out.Validate(true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, &Error{Kind: KindAuth, Message: "no refresh token"}
	}

	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, &out, false); err != nil {
		return nil, err
	}
	if err := out.Validate(false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the current access token belongs to.
func (c *Client) Me(ctx context.Context) (*core.User, error) {
	var user core.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user, true); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, decodeError("user response missing id")
	}
	return &user, nil
}

// Profile accepts the profile either bare or wrapped in {data}.
func (c *Client) Profile(ctx context.Context) (*core.UserProfile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/profile/me", nil, &raw, true); err != nil {
		return nil, err
	}

	var env profileEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		return env.Data, nil
	}
	var profile core.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, decodeError("decode profile: %v", err)
	}
	return &profile, nil
}

func (c *Client) UpdatePersonal(ctx context.Context, req PersonalUpdate) (*core.UserProfile, error) {
	return c.updateProfile(ctx, "/profile/personal", req)
}

func (c *Client) UpdatePreferences(ctx context.Context, req PreferencesUpdate) (*core.UserProfile, error) {
	return c.updateProfile(ctx, "/profile/preferences", req)
}

func (c *Client) updateProfile(ctx context.Context, path string, body any) (*core.UserProfile, error) {
	var env profileEnvelope
	if err := c.do(ctx, http.MethodPut, path, body, &env, true); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, decodeError("profile update response missing data")
	}
	return env.Data, nil
}

func (c *Client) Categorize(ctx context.Context, req CategorizeRequest) (*CategorizeResponse, error) {
	var out CategorizeResponse
	if err := c.do(ctx, http.MethodPost, "/budget/categorize", req, &out, true); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BatchCategorize(ctx context.Context, items []CategorizeRequest) (*BatchResponse, error) {
	if len(items) == 0 {
		return nil, ValidationError("no expenses to categorize")
	}

	var out BatchResponse
	if err := c.do(ctx, http.MethodPost, "/budget/batch-categorize", BatchRequest{Expenses: items}, &out, true); err != nil {
		return nil, err
	}
	if err := out.Validate(len(items)); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request and decodes a 2xx body into out. When authed is set
// and a token is available it is sent as a bearer token, and a 401 gets one
// refresh and one retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return ValidationError("encode request: %v", err)
		}
	}

	ts := c.tokenSource()
	token := ""
	if authed && ts != nil {
		token = ts.AccessToken()
	}

	status, respBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && token != "" {
		fresh, err := c.refreshAccess(ctx, ts, token)
		if err != nil {
			c.logger.WarnContext(ctx, "Token refresh failed",
				applog.NewFields().WithOperation(applog.OpRefreshToken).WithError(err).ToSlice()...)
			if errors.Is(err, ErrNetwork) {
				return err
			}
			return &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Message: "session expired, please sign in again", Err: err}
		}
		if status, respBody, err = c.send(ctx, method, path, payload, fresh); err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return statusError(status, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return decodeError("decode %s response: %v", path, err)
	}
	return nil
}

// refreshAccess skips the refresh when another call already rotated the
// token while this one was in flight. The shared refresh runs detached from
// the caller's cancellation so one caller giving up does not fail the others;
// send still bounds it with the client timeout.
func (c *Client) refreshAccess(ctx context.Context, ts TokenSource, stale string) (string, error) {
	if current := ts.AccessToken(); current != "" && current != stale {
		return current, nil
	}
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		return ts.RefreshAccess(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, networkError(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, networkError(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, networkError(err)
	}
	return resp.StatusCode, body, nil
}
