// Package session owns the lifecycle of a user's credentials: it holds the
// authentication state machine, keeps the token pair and cached profile
// consistent in the credential store, and recovers from expired tokens by
// refreshing once before giving up and clearing the session.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-auth-client/identity"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/store"
	"github.com/jrsteele09/go-auth-client/users"
)

// ErrSessionActive is returned when Login is called while a session exists.
var ErrSessionActive = errors.New("session already active")

var validate = validator.New()

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// Manager is the session state machine. It is the only writer of the
// credential store; consumers read derived state through State, User and
// IsAuthenticated.
type Manager struct {
	store  store.Store
	client identity.Client

	logger          zerolog.Logger
	nowTime         func() time.Time
	refreshInterval time.Duration

	lock      sync.RWMutex
	state     State
	profile   *users.Profile
	scheduler *scheduler

	// epoch increments whenever the session ends. A network result is
	// only committed when the epoch it started under is still current,
	// so an in-flight login or refresh can never resurrect a session
	// the user has since ended.
	epoch uint64

	refreshGroup singleflight.Group
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for background failures.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithRefreshInterval sets the fallback refresh cadence used when the
// access token's lifetime cannot be derived from its claims.
func WithRefreshInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.refreshInterval = interval
		}
	}
}

// NewManager initializes a session manager with required dependencies.
func NewManager(credStore store.Store, client identity.Client, options ...ManagerOption) (*Manager, error) {
	if credStore == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if client == nil {
		return nil, errors.New("[NewManager] identity client is required")
	}

	manager := &Manager{
		store:           credStore,
		client:          client,
		logger:          zerolog.Nop(),
		nowTime:         time.Now,
		refreshInterval: 25 * time.Minute,
		state:           StateUnauthenticated,
	}

	for _, opt := range options {
		opt(manager)
	}

	return manager, nil
}

// Login authenticates the user and establishes the single active session.
// Empty username or password is rejected locally without a network call.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	req := loginRequest{Username: username, Password: password}
	if err := validate.Struct(req); err != nil {
		return apperrors.NewAPIError(apperrors.ErrValidation, "username and password are required", 0)
	}

	m.lock.Lock()
	if m.state != StateUnauthenticated {
		m.lock.Unlock()
		return ErrSessionActive
	}
	m.state = StateAuthenticating
	epoch := m.epoch
	m.lock.Unlock()

	result, err := m.client.Login(ctx, username, password)
	if err != nil {
		m.setState(StateUnauthenticated, nil)
		return err
	}

	return m.commitSession(epoch, result)
}

// Logout ends the session. The server-side revocation is best effort: its
// failure is logged and local state is cleared regardless, so the client
// never believes it still has a session. Safe to call when already
// unauthenticated.
func (m *Manager) Logout(ctx context.Context, allDevices bool) {
	if accessToken, err := m.store.Get(store.KeyAccessToken); err == nil && accessToken != "" {
		if err := m.client.Logout(ctx, accessToken, allDevices); err != nil {
			m.logger.Warn().Err(err).Msg("server-side logout failed")
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.endSessionLocked()
}

// Refresh exchanges the stored refresh token for a new token pair.
// Concurrent calls are coalesced into a single network request; every
// caller receives that request's outcome. Any failure force-clears the
// session.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err := m.refresh(ctx)
	return err
}

func (m *Manager) refresh(ctx context.Context) (*users.Profile, error) {
	v, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*users.Profile), nil
}

func (m *Manager) doRefresh(ctx context.Context) (*users.Profile, error) {
	refreshToken, err := m.store.Get(store.KeyRefreshToken)
	if err != nil || refreshToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	m.lock.Lock()
	epoch := m.epoch
	if m.state == StateAuthenticated {
		m.state = StateRefreshing
	}
	m.lock.Unlock()

	result, err := m.client.Refresh(ctx, refreshToken)
	if err != nil {
		m.forceLogout(err)
		return nil, err
	}

	if err := m.commitSession(epoch, result); err != nil {
		return nil, err
	}
	return &result.User, nil
}

// CurrentUser validates the stored access token against the identity
// service. An unauthorized response triggers one refresh attempt; if that
// also fails the session has already been cleared and ErrNotAuthenticated
// is returned instead of the raw failure.
func (m *Manager) CurrentUser(ctx context.Context) (*users.Profile, error) {
	accessToken, err := m.store.Get(store.KeyAccessToken)
	if err != nil || accessToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	epoch := m.currentEpoch()

	profile, err := m.client.WhoAmI(ctx, accessToken)
	if err == nil {
		m.cacheProfile(epoch, profile)
		return profile, nil
	}

	if !apperrors.Is(err, apperrors.ErrUnauthorized) {
		return nil, err
	}

	m.logger.Debug().Msg("access token rejected, attempting refresh")
	profile, refreshErr := m.refresh(ctx)
	if refreshErr != nil {
		m.logger.Info().Err(refreshErr).Msg("token recovery failed, session cleared")
		return nil, apperrors.ErrNotAuthenticated
	}
	return profile, nil
}

// ChangePassword updates the user's password. Both passwords are validated
// locally before any network call.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	req := changePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := validate.Struct(req); err != nil {
		return apperrors.NewAPIError(apperrors.ErrValidation, "current and new passwords are required", 0)
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return apperrors.NewAPIError(apperrors.ErrValidation, err.Error(), 0)
	}

	accessToken, err := m.store.Get(store.KeyAccessToken)
	if err != nil || accessToken == "" {
		return apperrors.ErrNotAuthenticated
	}

	return m.client.ChangePassword(ctx, accessToken, currentPassword, newPassword)
}

// Bootstrap restores a previously stored session at application start: a
// stored access token is validated, a rejected token gets one refresh
// attempt, and anything else settles to unauthenticated. Reports whether a
// session was restored. An unavailable store is treated as no stored
// session.
func (m *Manager) Bootstrap(ctx context.Context) bool {
	accessToken, err := m.store.Get(store.KeyAccessToken)
	if err != nil || accessToken == "" {
		m.setState(StateUnauthenticated, nil)
		return false
	}

	m.lock.Lock()
	epoch := m.epoch
	m.state = StateAuthenticating
	m.lock.Unlock()

	profile, err := m.client.WhoAmI(ctx, accessToken)
	if err == nil {
		return m.commitValidated(epoch, accessToken, profile)
	}

	m.logger.Debug().Err(err).Msg("stored access token rejected, attempting refresh")
	if _, err := m.refresh(ctx); err != nil {
		m.setState(StateUnauthenticated, nil)
		return false
	}
	return true
}

// Close tears the session manager down without touching the network or the
// stored credentials, so a later Bootstrap can restore the session.
func (m *Manager) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.epoch++
	if m.scheduler != nil {
		m.scheduler.Stop()
		m.scheduler = nil
	}
	m.state = StateUnauthenticated
	m.profile = nil
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// IsAuthenticated reports whether a valid session is established.
func (m *Manager) IsAuthenticated() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state == StateAuthenticated || m.state == StateRefreshing
}

// IsLoading reports whether a login or refresh is in flight.
func (m *Manager) IsLoading() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state == StateAuthenticating || m.state == StateRefreshing
}

// User returns a copy of the cached profile, or nil when unauthenticated.
func (m *Manager) User() *users.Profile {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.profile == nil {
		return nil
	}
	profile := *m.profile
	return &profile
}

func (m *Manager) currentEpoch() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.epoch
}

// commitSession installs a new token pair and profile. The commit is
// conditional: if the session ended while the network call was in flight
// the result is discarded, so logout always wins the race.
func (m *Manager) commitSession(epoch uint64, result *identity.TokenResult) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.epoch != epoch {
		return apperrors.ErrNotAuthenticated
	}

	if err := m.persistCredentials(result); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist credentials")
		m.endSessionLocked()
		return err
	}

	m.state = StateAuthenticated
	copied := result.User
	m.profile = &copied
	m.startSchedulerLocked(result.AccessToken)
	return nil
}

// commitValidated installs a profile confirmed by the identity service for
// an already-stored access token, under the same epoch condition as
// commitSession.
func (m *Manager) commitValidated(epoch uint64, accessToken string, profile *users.Profile) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.epoch != epoch {
		return false
	}

	if userData, err := json.Marshal(profile); err == nil {
		if err := m.store.Set(store.KeyUserData, string(userData)); err != nil {
			m.logger.Warn().Err(err).Msg("failed to update cached profile")
		}
	}

	m.state = StateAuthenticated
	copied := *profile
	m.profile = &copied
	m.startSchedulerLocked(accessToken)
	return true
}

// persistCredentials stores a new token pair and profile. The refresh
// token and profile are written before the access token, so a failure
// window never leaves an access token without its companions. Callers
// must hold the lock.
func (m *Manager) persistCredentials(result *identity.TokenResult) error {
	userData, err := json.Marshal(result.User)
	if err != nil {
		return errors.Wrap(err, "[persistCredentials] encode profile")
	}

	if err := m.store.Set(store.KeyRefreshToken, result.RefreshToken); err != nil {
		return err
	}
	if err := m.store.Set(store.KeyUserData, string(userData)); err != nil {
		return err
	}
	return m.store.Set(store.KeyAccessToken, result.AccessToken)
}

// cacheProfile updates the in-memory profile and the stored user_data slot
// after a successful validation, unless the session has since ended.
func (m *Manager) cacheProfile(epoch uint64, profile *users.Profile) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.epoch != epoch {
		return
	}

	if userData, err := json.Marshal(profile); err == nil {
		if err := m.store.Set(store.KeyUserData, string(userData)); err != nil {
			m.logger.Warn().Err(err).Msg("failed to update cached profile")
		}
	}

	if m.state == StateAuthenticated || m.state == StateRefreshing {
		copied := *profile
		m.profile = &copied
	}
}

// forceLogout clears the session locally after an irrecoverable refresh
// failure. No server call is made; the refresh token is already dead or
// the service unreachable.
func (m *Manager) forceLogout(cause error) {
	m.logger.Info().Err(cause).Msg("forced logout")

	m.lock.Lock()
	defer m.lock.Unlock()
	m.endSessionLocked()
}

// endSessionLocked clears credentials, stops the scheduler and settles to
// unauthenticated. Bumping the epoch invalidates any in-flight network
// result. Callers must hold the lock.
func (m *Manager) endSessionLocked() {
	m.epoch++
	if m.scheduler != nil {
		m.scheduler.Stop()
		m.scheduler = nil
	}
	for _, key := range []string{store.KeyAccessToken, store.KeyUserData, store.KeyRefreshToken} {
		if err := m.store.Delete(key); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("failed to clear credential slot")
		}
	}
	m.state = StateUnauthenticated
	m.profile = nil
}

func (m *Manager) setState(next State, profile *users.Profile) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !canTransition(m.state, next) {
		m.logger.Debug().
			Str("from", string(m.state)).
			Str("to", string(next)).
			Msg("unexpected state transition")
		return
	}

	m.state = next
	if profile != nil {
		copied := *profile
		m.profile = &copied
	} else if next == StateUnauthenticated || next == StateAuthenticating {
		m.profile = nil
	}
}

// startSchedulerLocked arms the background refresh. Callers must hold the
// lock.
func (m *Manager) startSchedulerLocked(accessToken string) {
	interval := refreshIntervalFromToken(accessToken, m.refreshInterval, m.nowTime)

	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	m.scheduler = newScheduler(interval, func() error {
		return m.Refresh(context.Background())
	}, m.logger)
}
