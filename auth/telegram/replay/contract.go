// SPDX-License-Identifier: ice License 1.0

package replay

import (
	"context"
	"io"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ice-blockchain/widgetauth/auth/telegram"
	"github.com/ice-blockchain/widgetauth/time"
)

// Public API.

var (
	ErrReplayed = errors.New("telegram login payload was already used")
)

type (
	DB interface {
		io.Closer
		SetNX(ctx context.Context, key string, value any, expiration stdlibtime.Duration) *redis.BoolCmd
		Ping(ctx context.Context) *redis.StatusCmd
	}
	// Guard makes a verified payload usable once. It stores nothing but the xxh3 digest of the payload's hash.
	Guard interface {
		io.Closer
		// Claim must be called only after the payload was verified; a second Claim of the same payload returns ErrReplayed.
		Claim(ctx context.Context, now *time.Time, payload telegram.Payload) error
	}
)

// Private API.

const (
	keyPrefix          = "telegram:login:"
	urlEnv             = "AUTH_TELEGRAM_REPLAY_URL"
	defaultFallbackTTL = 24 * stdlibtime.Hour
	pingDeadline       = 30 * stdlibtime.Second
)

type (
	guard struct {
		db              DB
		queryExpiration int64
		fallbackTTL     stdlibtime.Duration
	}
	config struct {
		WintrAuthTelegramReplay struct {
			Credentials struct {
				User     string `yaml:"user" mapstructure:"user"`
				Password string `yaml:"password" mapstructure:"password"`
			} `yaml:"credentials" mapstructure:"credentials"`
			URL         string              `yaml:"url" mapstructure:"url"`
			FallbackTTL stdlibtime.Duration `yaml:"fallbackTTL" mapstructure:"fallbackTTL"` //nolint:tagliatelle // Nope.
		} `yaml:"wintr/auth/telegram/replay" mapstructure:"wintr/auth/telegram/replay"` //nolint:tagliatelle // Nope.
	}
)
