package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/internal/config"
)

func TestEnvDefaultsToDev(t *testing.T) {
	t.Setenv("ENV", "")
	require.Equal(t, "DEV", config.New().GetEnv())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ENV", "PROD")
	require.Equal(t, "PROD", config.New().GetEnv())
}

func TestRefreshIntervalDefaultsToFiveSixthsOfLifetime(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_LIFETIME", "30m")
	t.Setenv("REFRESH_INTERVAL", "")
	require.Equal(t, 25*time.Minute, config.New().GetRefreshInterval())
}
