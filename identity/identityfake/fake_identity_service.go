// Package identityfake is an in-memory stand-in for the remote identity
// service. It issues real HS256 access tokens and rotating opaque refresh
// tokens so session-manager behaviour can be exercised without a network.
package identityfake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-auth-client/identity"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var _ identity.Client = (*FakeIdentityService)(nil)

type fakeUser struct {
	profile      users.Profile
	passwordHash string
}

type FakeIdentityService struct {
	users         map[string]*fakeUser // keyed by username
	refreshTokens map[string]string    // refresh token to username
	signingKey    []byte
	accessTTL     time.Duration
	lock          sync.Mutex

	loginCalls    int
	refreshCalls  int
	whoAmICalls   int
	logoutCalls   int
	passwordCalls int

	failRefreshWith error
	failWhoAmIWith  error
	failLogoutWith  error
}

func NewFakeIdentityService() *FakeIdentityService {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &FakeIdentityService{
		users:         make(map[string]*fakeUser),
		refreshTokens: make(map[string]string),
		signingKey:    key,
		accessTTL:     15 * time.Minute,
	}
}

// SetAccessTTL overrides the issued access token lifetime.
func (s *FakeIdentityService) SetAccessTTL(ttl time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessTTL = ttl
}

// SetFailRefresh makes Refresh fail with the given error; nil restores
// normal behaviour.
func (s *FakeIdentityService) SetFailRefresh(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failRefreshWith = err
}

// SetFailWhoAmI makes WhoAmI fail with the given error; nil restores
// normal behaviour.
func (s *FakeIdentityService) SetFailWhoAmI(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failWhoAmIWith = err
}

// SetFailLogout makes Logout fail with the given error; nil restores
// normal behaviour.
func (s *FakeIdentityService) SetFailLogout(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failLogoutWith = err
}

// AddUser seeds a user with a bcrypt-hashed password.
func (s *FakeIdentityService) AddUser(password string, profile users.Profile) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.users[profile.Username] = &fakeUser{profile: profile, passwordHash: string(hash)}
	return nil
}

func (s *FakeIdentityService) Login(_ context.Context, username, password string) (*identity.TokenResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.loginCalls++

	user, ok := s.users[username]
	if !ok {
		return nil, apperrors.NewAPIError(apperrors.ErrInvalidCredentials, "Invalid credentials", 401)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.passwordHash), []byte(password)) != nil {
		return nil, apperrors.NewAPIError(apperrors.ErrInvalidCredentials, "Invalid credentials", 401)
	}

	return s.issueTokens(user)
}

func (s *FakeIdentityService) Refresh(_ context.Context, refreshToken string) (*identity.TokenResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshCalls++

	if s.failRefreshWith != nil {
		return nil, s.failRefreshWith
	}

	username, ok := s.refreshTokens[refreshToken]
	if !ok {
		return nil, apperrors.NewAPIError(apperrors.ErrInvalidRefreshToken, "Refresh token invalid or revoked", 401)
	}

	// Single use: the presented token is consumed before a new pair is issued
	delete(s.refreshTokens, refreshToken)
	return s.issueTokens(s.users[username])
}

func (s *FakeIdentityService) WhoAmI(_ context.Context, accessToken string) (*users.Profile, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.whoAmICalls++

	if s.failWhoAmIWith != nil {
		return nil, s.failWhoAmIWith
	}

	username, err := s.parseAccessToken(accessToken)
	if err != nil {
		return nil, apperrors.NewAPIError(apperrors.ErrUnauthorized, "Access token expired or invalid", 401)
	}

	user, ok := s.users[username]
	if !ok {
		return nil, apperrors.NewAPIError(apperrors.ErrUnauthorized, "Unknown subject", 401)
	}

	profile := user.profile
	return &profile, nil
}

func (s *FakeIdentityService) Logout(_ context.Context, accessToken string, allDevices bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.logoutCalls++

	if s.failLogoutWith != nil {
		return s.failLogoutWith
	}

	username, err := s.parseAccessToken(accessToken)
	if err != nil {
		return apperrors.NewAPIError(apperrors.ErrUnauthorized, "Access token expired or invalid", 401)
	}

	if allDevices {
		for token, owner := range s.refreshTokens {
			if owner == username {
				delete(s.refreshTokens, token)
			}
		}
	}
	return nil
}

func (s *FakeIdentityService) ChangePassword(_ context.Context, accessToken, currentPassword, newPassword string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.passwordCalls++

	username, err := s.parseAccessToken(accessToken)
	if err != nil {
		return apperrors.NewAPIError(apperrors.ErrUnauthorized, "Access token expired or invalid", 401)
	}

	user := s.users[username]
	if bcrypt.CompareHashAndPassword([]byte(user.passwordHash), []byte(currentPassword)) != nil {
		return apperrors.NewAPIError(apperrors.ErrInvalidCredentials, "Invalid credentials", 401)
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return apperrors.NewAPIError(apperrors.ErrValidation, err.Error(), 422)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return apperrors.NewAPIError(apperrors.ErrServer, "password hashing failed", 500)
	}
	user.passwordHash = string(hash)
	return nil
}

// Call counters, readable while background refreshes are running.

func (s *FakeIdentityService) LoginCalls() int    { return s.count(&s.loginCalls) }
func (s *FakeIdentityService) RefreshCalls() int  { return s.count(&s.refreshCalls) }
func (s *FakeIdentityService) WhoAmICalls() int   { return s.count(&s.whoAmICalls) }
func (s *FakeIdentityService) LogoutCalls() int   { return s.count(&s.logoutCalls) }
func (s *FakeIdentityService) PasswordCalls() int { return s.count(&s.passwordCalls) }

func (s *FakeIdentityService) count(field *int) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return *field
}

// RefreshTokenValid reports whether a refresh token is still accepted.
func (s *FakeIdentityService) RefreshTokenValid(refreshToken string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.refreshTokens[refreshToken]
	return ok
}

// issueTokens mints a signed access token plus an opaque refresh token.
// Callers must hold the lock.
func (s *FakeIdentityService) issueTokens(user *fakeUser) (*identity.TokenResult, error) {
	now := NowTimeFunc()
	claims := jwt.MapClaims{
		"sub": user.profile.ID,
		"iat": now.Unix(),
		"exp": now.Add(s.accessTTL).Unix(),
		"jti": uuid.New().String(),
		"usr": user.profile.Username,
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, apperrors.NewAPIError(apperrors.ErrServer, "token signing failed", 500)
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, apperrors.NewAPIError(apperrors.ErrServer, "token generation failed", 500)
	}
	refresh := hex.EncodeToString(b)
	s.refreshTokens[refresh] = user.profile.Username

	return &identity.TokenResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.profile,
	}, nil
}

func (s *FakeIdentityService) parseAccessToken(accessToken string) (string, error) {
	parsed, err := jwt.Parse(accessToken, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(NowTimeFunc))
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperrors.ErrUnauthorized
	}
	username, _ := claims["usr"].(string)
	if username == "" {
		return "", apperrors.ErrUnauthorized
	}
	return username, nil
}
