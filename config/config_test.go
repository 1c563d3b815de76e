// SPDX-License-Identifier: ice License 1.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:paralleltest // It changes the environment.
func TestEnvFallback(t *testing.T) {
	t.Setenv("SOME_VAR", "global")
	assert.Equal(t, "global", EnvFallback("my-svc/auth", "SOME_VAR"))

	t.Setenv("MY_SVC_AUTH_SOME_VAR", "  scoped ")
	assert.Equal(t, "scoped", EnvFallback("my-svc/auth", "SOME_VAR"))

	t.Setenv("MY_SVC_AUTH_SOME_VAR", " ")
	assert.Equal(t, "global", EnvFallback("my-svc/auth", "SOME_VAR"))

	assert.Empty(t, EnvFallback("my-svc/auth", "NOT_SET_ANYWHERE"))
}

func TestLoadFromKey(t *testing.T) {
	t.Parallel()
	var cfg struct {
		Encoder string `mapstructure:"encoder"`
		Level   string `mapstructure:"level"`
	}
	require.NoError(t, LoadFromKey("logger", &cfg))
	assert.Equal(t, "console", cfg.Encoder)
	assert.Equal(t, "info", cfg.Level)

	var development bool
	MustLoadFromKey("development", &development)
	assert.True(t, development)

	var wrongType struct {
		Level []int `mapstructure:"level"`
	}
	require.Error(t, LoadFromKey("logger", &wrongType))
}
