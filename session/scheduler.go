package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// scheduler triggers a token refresh at a fixed cadence while the session
// is authenticated. A refresh failure stops the ticker: the failed refresh
// has already forced a logout, so further ticks would be meaningless.
type scheduler struct {
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newScheduler(interval time.Duration, refreshFn func() error, logger zerolog.Logger) *scheduler {
	s := &scheduler{
		stopCh: make(chan struct{}),
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := refreshFn(); err != nil {
					logger.Warn().Err(err).Msg("scheduled refresh failed, stopping scheduler")
					return
				}
			}
		}
	}()

	logger.Debug().Dur("interval", interval).Msg("refresh scheduler armed")
	return s
}

// Stop cancels the scheduler. Idempotent and side-effect-free.
func (s *scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// refreshIntervalFromToken derives the refresh cadence from the access
// token's claims: 5/6 of the token lifetime, so a refresh always lands
// before expiry. Opaque or claimless tokens fall back to the configured
// interval. The token is inspected, never verified; validation is the
// server's job.
func refreshIntervalFromToken(accessToken string, fallback time.Duration, nowTime func() time.Time) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return fallback
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}

	issued := nowTime()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issued = iat.Time
	}

	lifetime := exp.Sub(issued)
	if lifetime <= 0 {
		return fallback
	}
	return lifetime / 6 * 5
}
