package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/identity/identityfake"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/store/storefake"
	"github.com/jrsteele09/go-auth-client/users"
)

func TestRefreshIntervalFromToken(t *testing.T) {
	now := time.Now()

	signedToken := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
		require.NoError(t, err)
		return token
	}

	t.Run("derives five sixths of the token lifetime", func(t *testing.T) {
		token := signedToken(jwt.MapClaims{
			"iat": now.Unix(),
			"exp": now.Add(time.Hour).Unix(),
		})
		interval := refreshIntervalFromToken(token, time.Minute, func() time.Time { return now })
		require.Equal(t, 50*time.Minute, interval)
	})

	t.Run("opaque token falls back", func(t *testing.T) {
		interval := refreshIntervalFromToken("not-a-jwt", time.Minute, time.Now)
		require.Equal(t, time.Minute, interval)
	})

	t.Run("missing exp falls back", func(t *testing.T) {
		token := signedToken(jwt.MapClaims{"iat": now.Unix()})
		interval := refreshIntervalFromToken(token, time.Minute, time.Now)
		require.Equal(t, time.Minute, interval)
	})

	t.Run("expired token falls back", func(t *testing.T) {
		token := signedToken(jwt.MapClaims{
			"iat": now.Add(-2 * time.Hour).Unix(),
			"exp": now.Add(-time.Hour).Unix(),
		})
		interval := refreshIntervalFromToken(token, time.Minute, func() time.Time { return now })
		require.Equal(t, time.Minute, interval)
	})
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := newScheduler(time.Hour, func() error { return nil }, zerolog.Nop())
	s.Stop()
	s.Stop()
}

func schedulerFixture(t *testing.T, accessTTL time.Duration) (*Manager, *identityfake.FakeIdentityService, *storefake.FakeCredentialStore) {
	t.Helper()

	service := identityfake.NewFakeIdentityService()
	service.SetAccessTTL(accessTTL)
	require.NoError(t, service.AddUser("Sup3rSecret1", users.Profile{
		ID:       "user-1",
		Username: "asmith",
		Role:     users.RoleAnalyst,
	}))

	credStore := storefake.NewFakeCredentialStore()
	manager, err := NewManager(credStore, service)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return manager, service, credStore
}

func TestScheduledRefreshKeepsSessionAlive(t *testing.T) {
	// 120ms token lifetime puts the refresh cadence at 100ms
	manager, service, credStore := schedulerFixture(t, 120*time.Millisecond)

	require.NoError(t, manager.Login(context.Background(), "asmith", "Sup3rSecret1"))

	require.Eventually(t, func() bool {
		return service.RefreshCalls() >= 2
	}, 5*time.Second, 10*time.Millisecond, "scheduler should keep refreshing")

	require.True(t, manager.IsAuthenticated())
	require.Equal(t, 3, credStore.Len())
}

func TestScheduledRefreshFailureForcesLogoutAndStops(t *testing.T) {
	manager, service, credStore := schedulerFixture(t, 120*time.Millisecond)

	require.NoError(t, manager.Login(context.Background(), "asmith", "Sup3rSecret1"))
	service.SetFailRefresh(apperrors.NewAPIError(apperrors.ErrNetwork, "identity service unreachable", 0))

	require.Eventually(t, func() bool {
		return manager.State() == StateUnauthenticated
	}, 5*time.Second, 10*time.Millisecond, "failed scheduled refresh must force logout")

	require.Zero(t, credStore.Len(), "forced logout must clear storage")

	// The scheduler must stop ticking after the failure
	failedCalls := service.RefreshCalls()
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, failedCalls, service.RefreshCalls())
}
