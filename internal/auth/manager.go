// Package auth owns the signed-in session: who the user is, which tokens are
// live, and how that state is mirrored into the persistent store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"budgetwise/internal/api"
	"budgetwise/internal/core"
	applog "budgetwise/internal/log"
	"budgetwise/internal/store"
)

const profileFetchTimeout = 30 * time.Second

var (
	ErrLoginInProgress  = errors.New("login already in progress")
	ErrNotAuthenticated = errors.New("not authenticated")
	errSessionChanged   = errors.New("session changed during refresh")
)

// Backend is the part of the API client the manager drives.
type Backend interface {
	Signup(ctx context.Context, req api.SignupRequest) (*core.User, error)
	Signin(ctx context.Context, req api.SigninRequest) (*api.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	Me(ctx context.Context) (*core.User, error)
	Profile(ctx context.Context) (*core.UserProfile, error)
	UpdatePersonal(ctx context.Context, req api.PersonalUpdate) (*core.UserProfile, error)
	UpdatePreferences(ctx context.Context, req api.PreferencesUpdate) (*core.UserProfile, error)
	SetTokenSource(ts api.TokenSource)
}

type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
}

// Manager is the single owner of the session. Network calls never run
// under mu; store writes always do, so a concurrent logout cannot be undone
// by a late token write.
type Manager struct {
	client Backend
	store  store.Store
	logger *applog.Logger

	mu      sync.Mutex
	session core.Session
	// gen changes whenever the signed-in identity changes, so background
	// work started for an older session can tell it is stale.
	gen uint64

	loggingIn   atomic.Bool
	profileErrs chan error
	background  sync.WaitGroup
}

// NewManager wires the manager in as the client's token source.
func NewManager(client Backend, st store.Store, logger *applog.Logger) *Manager {
	if logger == nil {
		logger = applog.Discard()
	}
	m := &Manager{
		client:      client,
		store:       st,
		logger:      logger.WithComponent(applog.ComponentAuth),
		profileErrs: make(chan error, 8),
	}
	client.SetTokenSource(m)
	return m
}

// Session returns a copy of the current session.
func (m *Manager) Session() core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsAuthenticated
}

// ProfileErrors delivers failures of the profile fetch started after login.
// Errors beyond the channel's buffer are dropped.
func (m *Manager) ProfileErrors() <-chan error {
	return m.profileErrs
}

// Wait blocks until background profile fetches have finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Initialize restores the persisted session and reconciles it with the
// backend. Backend failures degrade to the stored user; only store errors
// are returned.
func (m *Manager) Initialize(ctx context.Context) error {
	fields := applog.NewFields().WithOperation(applog.OpInitialize)

	flag, _, err := m.store.Get(ctx, store.KeyIsAuthenticated)
	if err != nil {
		return fmt.Errorf("read auth flag: %w", err)
	}
	access, _, err := m.store.Get(ctx, store.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}

	if flag != "true" {
		m.logger.DebugContext(ctx, "No stored session", fields.ToSlice()...)
		return nil
	}
	if access == "" {
		m.logger.WarnContext(ctx, "Stored session has no access token, clearing", fields.ToSlice()...)
		return m.Logout(ctx)
	}

	refresh, _, err := m.store.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	rawUser, ok, err := m.store.Get(ctx, store.KeyUser)
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	var user core.User
	if !ok || json.Unmarshal([]byte(rawUser), &user) != nil || user.ID == "" {
		m.logger.WarnContext(ctx, "Stored session has no usable user, clearing", fields.ToSlice()...)
		return m.Logout(ctx)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.session = core.Session{
		IsAuthenticated: true,
		AccessToken:     access,
		RefreshToken:    refresh,
		User:            &user,
	}
	m.mu.Unlock()

	if err := m.reconcileUser(ctx, gen); err != nil {
		return err
	}
	if !m.IsAuthenticated() {
		return nil
	}

	profile, err := m.client.Profile(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Profile fetch failed, keeping stored user",
			fields.WithError(err).ToSlice()...)
		return nil
	}
	m.applyProfile(gen, profile)
	m.logger.InfoContext(ctx, "Session restored",
		applog.NewFields().WithOperation(applog.OpInitialize).ToSlice()...)
	return nil
}

// reconcileUser replaces the stored user with /auth/me. A 401 that
// survived the refresh-and-retry signs the user out; anything else keeps the
// stored user.
func (m *Manager) reconcileUser(ctx context.Context, gen uint64) error {
	fields := applog.NewFields().WithOperation(applog.OpInitialize)

	user, err := m.client.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			m.logger.WarnContext(ctx, "Stored session rejected by server, signing out",
				fields.WithError(err).ToSlice()...)
			return m.clearIfCurrent(ctx, gen)
		}
		m.logger.WarnContext(ctx, "User reconciliation failed, keeping stored user",
			fields.WithError(err).ToSlice()...)
		return nil
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil
	}
	if err := m.store.Set(ctx, store.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	m.session.User = user
	return nil
}

// Login signs in and replaces the session. On failure nothing changes,
// in memory or in the store. The profile is fetched afterwards in the
// background; its failure is reported on ProfileErrors.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	if !m.loggingIn.CompareAndSwap(false, true) {
		return ErrLoginInProgress
	}
	defer m.loggingIn.Store(false)

	fields := applog.NewFields().WithOperation(applog.OpLogin)

	resp, err := m.client.Signin(ctx, api.SigninRequest{
		Email:      creds.Email,
		Password:   creds.Password,
		RememberMe: creds.RememberMe,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "Login failed", fields.WithError(err).ToSlice()...)
		return err
	}

	rawUser, err := json.Marshal(resp.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	m.mu.Lock()
	err = m.store.SetMany(ctx, map[string]string{
		store.KeyIsAuthenticated: "true",
		store.KeyAccessToken:     resp.AccessToken,
		store.KeyRefreshToken:    resp.RefreshToken,
		store.KeyUser:            string(rawUser),
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	m.gen++
	gen := m.gen
	m.session = core.Session{
		IsAuthenticated: true,
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		User:            resp.User,
	}
	m.mu.Unlock()

	fields[applog.FieldUserID] = resp.User.ID
	m.logger.InfoContext(ctx, "Login succeeded", fields.ToSlice()...)

	m.background.Add(1)
	go m.fetchProfileAfterLogin(context.WithoutCancel(ctx), gen)
	return nil
}

func (m *Manager) fetchProfileAfterLogin(ctx context.Context, gen uint64) {
	defer m.background.Done()

	ctx, cancel := context.WithTimeout(ctx, profileFetchTimeout)
	defer cancel()

	profile, err := m.client.Profile(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Profile fetch after login failed",
			applog.NewFields().WithOperation(applog.OpRefreshProfile).WithError(err).ToSlice()...)
		select {
		case m.profileErrs <- err:
		default:
		}
		return
	}
	m.applyProfile(gen, profile)
}

func (m *Manager) applyProfile(gen uint64, profile *core.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || !m.session.IsAuthenticated {
		return
	}
	m.session.Profile = profile
}

// Logout clears the local session. No remote call is made.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked(ctx)
}

func (m *Manager) clearIfCurrent(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil
	}
	return m.clearLocked(ctx)
}

// clearLocked resets memory even when the store delete fails.
func (m *Manager) clearLocked(ctx context.Context) error {
	m.gen++
	m.session = core.Anonymous()
	if err := m.store.Delete(ctx, store.SessionKeys()...); err != nil {
		return fmt.Errorf("clear stored session: %w", err)
	}
	m.logger.InfoContext(ctx, "Session cleared",
		applog.NewFields().WithOperation(applog.OpLogout).ToSlice()...)
	return nil
}

// RefreshProfile re-fetches the profile. It does nothing when signed out,
// and failures are only logged.
func (m *Manager) RefreshProfile(ctx context.Context) {
	m.mu.Lock()
	authed, gen := m.session.IsAuthenticated, m.gen
	m.mu.Unlock()
	if !authed {
		return
	}

	profile, err := m.client.Profile(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Profile refresh failed",
			applog.NewFields().WithOperation(applog.OpRefreshProfile).WithError(err).ToSlice()...)
		return
	}
	m.applyProfile(gen, profile)
}

// Signup registers an account. The current session is not touched.
func (m *Manager) Signup(ctx context.Context, req api.SignupRequest) (*core.User, error) {
	user, err := m.client.Signup(ctx, req)
	if err != nil {
		m.logger.WarnContext(ctx, "Signup failed",
			applog.NewFields().WithOperation(applog.OpSignup).WithError(err).ToSlice()...)
		return nil, err
	}
	fields := applog.NewFields().WithOperation(applog.OpSignup)
	fields[applog.FieldUserID] = user.ID
	m.logger.InfoContext(ctx, "Signup succeeded", fields.ToSlice()...)
	return user, nil
}

func (m *Manager) UpdatePersonal(ctx context.Context, req api.PersonalUpdate) error {
	return m.updateProfile(ctx, func(ctx context.Context) (*core.UserProfile, error) {
		return m.client.UpdatePersonal(ctx, req)
	})
}

func (m *Manager) UpdatePreferences(ctx context.Context, req api.PreferencesUpdate) error {
	return m.updateProfile(ctx, func(ctx context.Context) (*core.UserProfile, error) {
		return m.client.UpdatePreferences(ctx, req)
	})
}

func (m *Manager) updateProfile(ctx context.Context, call func(context.Context) (*core.UserProfile, error)) error {
	m.mu.Lock()
	authed, gen := m.session.IsAuthenticated, m.gen
	m.mu.Unlock()
	if !authed {
		return ErrNotAuthenticated
	}

	profile, err := call(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Profile update failed",
			applog.NewFields().WithOperation(applog.OpUpdateProfile).WithError(err).ToSlice()...)
		return err
	}
	m.applyProfile(gen, profile)
	return nil
}

// AccessToken implements api.TokenSource.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.AccessToken
}

// RefreshAccess implements api.TokenSource. A refresh the server rejects
// signs the user out locally; a refresh that never got an answer keeps the
// session so it can be retried.
func (m *Manager) RefreshAccess(ctx context.Context) (string, error) {
	m.mu.Lock()
	authed, refresh, gen := m.session.IsAuthenticated, m.session.RefreshToken, m.gen
	m.mu.Unlock()
	if !authed {
		return "", ErrNotAuthenticated
	}

	fields := applog.NewFields().WithOperation(applog.OpRefreshToken)

	resp, err := m.client.Refresh(ctx, refresh)
	if err != nil {
		if !refreshRejected(err) {
			m.logger.WarnContext(ctx, "Token refresh failed, keeping session", fields.WithError(err).ToSlice()...)
			return "", err
		}
		m.logger.WarnContext(ctx, "Token refresh rejected, signing out", fields.WithError(err).ToSlice()...)
		if clearErr := m.clearIfCurrent(ctx, gen); clearErr != nil {
			m.logger.ErrorContext(ctx, "Failed to clear session", fields.WithError(clearErr).ToSlice()...)
		}
		return "", err
	}

	values := map[string]string{store.KeyAccessToken: resp.AccessToken}
	if resp.RefreshToken != "" {
		values[store.KeyRefreshToken] = resp.RefreshToken
	}
	if resp.User != nil && resp.User.ID != "" {
		raw, err := json.Marshal(resp.User)
		if err != nil {
			return "", fmt.Errorf("encode user: %w", err)
		}
		values[store.KeyUser] = string(raw)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || !m.session.IsAuthenticated {
		return "", errSessionChanged
	}
	if err := m.store.SetMany(ctx, values); err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}
	m.session.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		m.session.RefreshToken = resp.RefreshToken
	}
	if resp.User != nil && resp.User.ID != "" {
		m.session.User = resp.User
	}
	m.logger.DebugContext(ctx, "Access token refreshed", fields.ToSlice()...)
	return resp.AccessToken, nil
}

// refreshRejected reports whether the server answered the refresh with a
// non-2xx status or the refresh could not even be attempted. Network and
// decode failures are not rejections.
func refreshRejected(err error) bool {
	ae := api.AsError(err)
	if ae == nil {
		return false
	}
	if ae.Status >= 300 {
		return true
	}
	return ae.Kind == api.KindAuth || ae.Kind == api.KindValidation
}
