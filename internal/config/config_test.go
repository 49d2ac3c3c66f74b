package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	for _, key := range []string{"APP_ENV", "STORAGE_TYPE", "COMMENT_INTERVAL", "POLL_INTERVAL", "API_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "local", cfg.Env)
	require.Equal(t, "sqlite", cfg.StorageType)
	require.Equal(t, 5*time.Second, cfg.CommentInterval)
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, 2*time.Second, cfg.LoginPollInterval)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Empty(t, cfg.APIToken)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DurationFormats(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COMMENT_INTERVAL", "8")
	t.Setenv("POLL_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8*time.Second, cfg.CommentInterval)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := Load()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "HTTP_TIMEOUT", cfgErr.Field)
}

func TestValidate(t *testing.T) {
	base := Config{StorageType: "sqlite", PollInterval: time.Second, LoginPollInterval: time.Second}

	cases := []struct {
		name  string
		mut   func(c *Config)
		field string
	}{
		{"unknown storage", func(c *Config) { c.StorageType = "mongo" }, "STORAGE_TYPE"},
		{"postgres without url", func(c *Config) { c.StorageType = "postgres" }, "POSTGRES_URL"},
		{"negative interval", func(c *Config) { c.CommentInterval = -time.Second }, "COMMENT_INTERVAL"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "POLL_INTERVAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mut(&c)
			err := c.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			require.Equal(t, tc.field, cfgErr.Field)
		})
	}
}
