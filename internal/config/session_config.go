package config

import "time"

const (
	identityURLVar         = "IDENTITY_URL"
	httpTimeoutVar         = "HTTP_TIMEOUT"
	accessTokenLifetimeVar = "ACCESS_TOKEN_LIFETIME"
	refreshIntervalVar     = "REFRESH_INTERVAL"

	defaultIdentityURL         = "http://localhost:8080"
	defaultHTTPTimeout         = 10 * time.Second
	defaultAccessTokenLifetime = 30 * time.Minute
)

type SessionConfig interface {
	GetIdentityBaseURL() string
	GetHTTPTimeout() time.Duration
	GetAccessTokenLifetime() time.Duration
	GetRefreshInterval() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetIdentityBaseURL() string {
	return GetEnv(identityURLVar, defaultIdentityURL)
}

func (Session) GetHTTPTimeout() time.Duration {
	return getDuration(httpTimeoutVar, defaultHTTPTimeout)
}

func (Session) GetAccessTokenLifetime() time.Duration {
	return getDuration(accessTokenLifetimeVar, defaultAccessTokenLifetime)
}

// GetRefreshInterval returns the scheduled refresh cadence. The default is
// 5/6 of the access token lifetime so a refresh always lands before expiry.
func (s Session) GetRefreshInterval() time.Duration {
	if d := getDuration(refreshIntervalVar, 0); d > 0 {
		return d
	}
	return s.GetAccessTokenLifetime() / 6 * 5
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
