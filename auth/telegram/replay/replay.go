// SPDX-License-Identifier: ice License 1.0

package replay

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	stdlibtime "time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/xxh3"

	"github.com/ice-blockchain/widgetauth/auth/telegram"
	appcfg "github.com/ice-blockchain/widgetauth/config"
	"github.com/ice-blockchain/widgetauth/log"
	"github.com/ice-blockchain/widgetauth/terror"
	"github.com/ice-blockchain/widgetauth/time"
)

// New connects to the redis configured under `wintr/auth/telegram/replay` and panics if it can't.
// It is meant for hosts wiring the guard at startup; tests and embedders use NewWithDB.
func New(ctx context.Context, applicationYAMLKey string, verifier telegram.Verifier) Guard {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)

	return NewWithDB(MustConnect(ctx, applicationYAMLKey), verifier.QueryExpiration(), cfg.WintrAuthTelegramReplay.FallbackTTL)
}

// NewWithDB uses fallbackTTL (24h if 0) for how long payloads are remembered when freshness checks are disabled.
func NewWithDB(db DB, queryExpiration int64, fallbackTTL stdlibtime.Duration) Guard {
	if fallbackTTL <= 0 {
		fallbackTTL = defaultFallbackTTL
	}

	return &guard{db: db, queryExpiration: queryExpiration, fallbackTTL: fallbackTTL}
}

//nolint:mnd,gomnd // Configs.
func MustConnect(ctx context.Context, applicationYAMLKey string) DB {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	url := strings.TrimSpace(cfg.WintrAuthTelegramReplay.URL)
	if url == "" {
		url = appcfg.EnvFallback(applicationYAMLKey, urlEnv)
	}
	if url == "" {
		log.Panic(errors.Errorf("replay guard url is required for %q", applicationYAMLKey))
	}
	opts, err := redis.ParseURL(url)
	log.Panic(errors.Wrap(err, "invalid replay guard url")) //nolint:revive // That's intended.
	if opts.Username == "" {
		opts.Username = cfg.WintrAuthTelegramReplay.Credentials.User
	}
	if opts.Password == "" {
		opts.Password = cfg.WintrAuthTelegramReplay.Credentials.Password
	}
	opts.ClientName = applicationYAMLKey
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 10 * stdlibtime.Millisecond
	opts.MaxRetryBackoff = 500 * stdlibtime.Millisecond
	opts.DialTimeout = 5 * stdlibtime.Second
	opts.ReadTimeout = 2 * stdlibtime.Second
	opts.WriteTimeout = 2 * stdlibtime.Second
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)
	log.Panic(errors.Wrapf(ping(ctx, client), "failed to connect to replay guard db for %q", applicationYAMLKey))

	return client
}

func ping(ctx context.Context, db DB) error {
	//nolint:wrapcheck // No need, its just a proxy.
	return backoff.RetryNotify(
		func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			result, err := db.Ping(ctx).Result()
			if err != nil {
				return errors.Wrap(err, "ping failed")
			}
			if result != "PONG" {
				return backoff.Permanent(errors.Errorf("unexpected ping response: %v", result))
			}

			return nil
		},
		backoff.WithContext(&backoff.ExponentialBackOff{
			InitialInterval:     10 * stdlibtime.Millisecond, //nolint:mnd,gomnd // .
			RandomizationFactor: 0.5,                         //nolint:mnd,gomnd // .
			Multiplier:          2.5,                         //nolint:mnd,gomnd // .
			MaxInterval:         stdlibtime.Second,
			MaxElapsedTime:      pingDeadline,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}, ctx),
		func(e error, next stdlibtime.Duration) {
			log.Error(errors.Wrapf(e, "replay guard db ping failed. retrying in %v... ", next))
		})
}

func (g *guard) Claim(ctx context.Context, now *time.Time, payload telegram.Payload) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "context error")
	}
	hash := payload[telegram.FieldHash]
	if hash == "" {
		return errors.Wrapf(terror.New(telegram.ErrMissingField, map[string]any{"field": telegram.FieldHash}), "can't claim")
	}
	claimed, err := g.db.SetNX(ctx, key(hash), payload[telegram.FieldID], g.ttl(now, payload[telegram.FieldAuthDate])).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to claim telegram login for id:%v", payload[telegram.FieldID])
	}
	if !claimed {
		return errors.Wrapf(terror.New(ErrReplayed, map[string]any{"id": payload[telegram.FieldID]}), "id:%v", payload[telegram.FieldID])
	}

	return nil
}

// The key outlives the last second in which the payload is still fresh.
func (g *guard) ttl(now *time.Time, authDate string) stdlibtime.Duration {
	if g.queryExpiration == telegram.FreshnessDisabled {
		return g.fallbackTTL
	}
	window := g.queryExpiration + 1
	if issuedAt, err := strconv.ParseInt(authDate, 10, 64); err == nil {
		if now.IsNil() {
			now = time.Now()
		}
		window = issuedAt + g.queryExpiration - now.Unix() + 1
	}
	if window < 1 {
		window = 1
	}

	return stdlibtime.Duration(window) * stdlibtime.Second
}

func (g *guard) Close() error {
	return errors.Wrap(g.db.Close(), "failed to close replay guard db")
}

func key(hash string) string {
	digest := xxh3.HashString128(hash).Bytes()

	return keyPrefix + hex.EncodeToString(digest[:])
}
