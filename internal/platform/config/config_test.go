package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("FOO_HOST", "db.internal")

	out := SubstituteEnvVars("host: ${FOO_HOST}\nport: ${FOO_PORT:-5432}")
	assert.Equal(t, "host: db.internal\nport: 5432", out)
}

func TestSubstituteEnvVars_MissingNoDefault(t *testing.T) {
	os.Unsetenv("DEFINITELY_UNSET_VAR")
	out := SubstituteEnvVars("x: ${DEFINITELY_UNSET_VAR}")
	assert.Equal(t, "x: ${DEFINITELY_UNSET_VAR}", out)
}

func TestLoad_RequiresDatabaseAndRedisURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("REDIS_URL")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/entityflow")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "shh")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/entityflow", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "shh", cfg.Auth.JWTSecret)
	assert.Equal(t, "entityflow:fetch", cfg.Queue.FetchKey)
}
