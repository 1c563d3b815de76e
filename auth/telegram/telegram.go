// SPDX-License-Identifier: ice License 1.0

package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/pkg/errors"

	appcfg "github.com/ice-blockchain/widgetauth/config"
	"github.com/ice-blockchain/widgetauth/log"
	"github.com/ice-blockchain/widgetauth/terror"
	"github.com/ice-blockchain/widgetauth/time"
)

func New(applicationYAMLKey string) Verifier {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	if strings.TrimSpace(cfg.WintrAuthTelegram.Credentials.BotToken) == "" {
		cfg.WintrAuthTelegram.Credentials.BotToken = appcfg.EnvFallback(applicationYAMLKey, botTokenEnv)
	}
	v, err := NewWithConfig(&cfg.WintrAuthTelegram.Config)
	log.Panic(errors.Wrapf(err, "invalid telegram login config for %q", applicationYAMLKey)) //nolint:revive // That's intended.

	return v
}

func NewWithConfig(cfg *Config) (Verifier, error) {
	if cfg == nil {
		return nil, ErrMissingBotToken
	}
	merged := *cfg
	if err := mergo.Merge(&merged, defaultConfig()); err != nil {
		return nil, errors.Wrap(err, "failed to apply default telegram login config")
	}
	if merged.QueryExpiration < FreshnessDisabled {
		return nil, errors.Wrapf(ErrInvalidQueryExpiration, "got %v", merged.QueryExpiration)
	}
	key, err := DeriveKey(merged.Credentials.BotToken)
	if err != nil {
		return nil, err
	}

	return &verifier{key: key, queryExpiration: merged.QueryExpiration}, nil
}

func defaultConfig() Config {
	var cfg Config
	cfg.QueryExpiration = DefaultQueryExpiration

	return cfg
}

// DeriveKey hashes the bot token into the fixed size HMAC key the login widget signs with.
func DeriveKey(botToken string) ([]byte, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, ErrMissingBotToken
	}
	key := sha256.Sum256([]byte(botToken))

	return key[:], nil
}

// DataCheckString is the canonical `key=value` representation of every signed field,
// sorted bytewise by key and joined by `\n`. FieldHash and FieldState are not signed.
func DataCheckString(payload Payload) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		if key == FieldHash || key == FieldState {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	var sb strings.Builder
	for ix, key := range keys {
		if ix > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(payload[key])
	}

	return sb.String()
}

func (v *verifier) QueryExpiration() int64 {
	return v.queryExpiration
}

func (v *verifier) Verify(now *time.Time, payload Payload) error {
	for _, field := range requiredFields {
		if payload[field] == "" {
			return errors.Wrapf(terror.New(ErrMissingField, map[string]any{"field": field}), "%v is required", field)
		}
	}
	if err := v.checkFreshness(now, payload[FieldAuthDate]); err != nil {
		return err
	}
	if !hmac.Equal([]byte(v.sign(DataCheckString(payload))), []byte(payload[FieldHash])) {
		return errors.Wrapf(ErrSignatureMismatch, "for id:%v", payload[FieldID])
	}

	return nil
}

// The age is `now - auth_date`: exactly queryExpiration is still fresh, a future auth_date (clock skew) is fresh too.
// A negative auth_date is a valid number, just a very old one.
func (v *verifier) checkFreshness(now *time.Time, authDate string) error {
	if v.queryExpiration == FreshnessDisabled {
		return nil
	}
	issuedAt, err := strconv.ParseInt(authDate, 10, 64)
	if err != nil {
		return errors.Wrapf(terror.New(ErrMalformedTimestamp, map[string]any{"authDate": authDate}), "can't parse %q", authDate)
	}
	if now.IsNil() {
		now = time.Now()
	}
	if age := now.Unix() - issuedAt; age > v.queryExpiration {
		return errors.Wrapf(terror.New(ErrExpired, map[string]any{"age": age, "maxAge": v.queryExpiration}),
			"auth_date is %vs old, max allowed is %vs", age, v.queryExpiration)
	}

	return nil
}

func (v *verifier) sign(dataCheckString string) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(dataCheckString))

	return hex.EncodeToString(mac.Sum(nil))
}
