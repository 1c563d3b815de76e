// SPDX-License-Identifier: ice License 1.0

package telegram

import (
	"github.com/pkg/errors"

	"github.com/ice-blockchain/widgetauth/time"
)

// Public API.

const (
	FieldID        = "id"
	FieldAuthDate  = "auth_date"
	FieldHash      = "hash"
	FieldState     = "state"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldUsername  = "username"
	FieldPhotoURL  = "photo_url"

	// DefaultQueryExpiration is the freshness window, in seconds, used when none is configured.
	DefaultQueryExpiration int64 = 86400
	// FreshnessDisabled turns the auth_date freshness check off.
	FreshnessDisabled int64 = -1
	// DerivedKeySize is the length of the HMAC key obtained out of the bot token.
	DerivedKeySize = 32
)

var (
	ErrMissingBotToken        = errors.New("bot token is required")
	ErrInvalidQueryExpiration = errors.New("query expiration must be -1 or a non negative number of seconds")
	ErrUnknownBot             = errors.New("unknown bot")

	ErrMissingField       = errors.New("missing some important data")
	ErrMalformedTimestamp = errors.New("auth_date is not a valid unix timestamp")
	ErrExpired            = errors.New("data is outdated")
	ErrSignatureMismatch  = errors.New("hash validation failed")
	ErrInvalidUser        = errors.New("invalid user data")
)

type (
	// Payload is the flat set of fields the login widget hands to the client, e.g. the redirect query string.
	Payload map[string]string
	// Verifier is safe for concurrent use; it holds nothing but the derived key and the freshness policy.
	Verifier interface {
		// Verify returns nil if the payload is complete, fresh relatively to `now` and signed by the bot's token.
		// Otherwise, it returns one of ErrMissingField, ErrMalformedTimestamp, ErrExpired or ErrSignatureMismatch.
		Verify(now *time.Time, payload Payload) error
		// Authenticate is Verify followed by decoding the, now trusted, payload.
		Authenticate(now *time.Time, payload Payload) (*User, error)
		// QueryExpiration is the configured freshness window in seconds, or FreshnessDisabled.
		QueryExpiration() int64
	}
	Registry interface {
		Verifier(bot string) (Verifier, error)
		Bots() []string
	}
	User struct {
		AuthDate  *time.Time `json:"authDate,omitempty" msgpack:"authDate,omitempty"`
		FirstName string     `json:"firstName,omitempty" msgpack:"firstName,omitempty" example:"John"`
		LastName  string     `json:"lastName,omitempty" msgpack:"lastName,omitempty" example:"Doe"`
		Username  string     `json:"username,omitempty" msgpack:"username,omitempty" example:"jdoe"`
		PhotoURL  string     `json:"photoUrl,omitempty" msgpack:"photoUrl,omitempty" example:"https://t.me/i/userpic/320/jdoe.jpg"`
		State     string     `json:"state,omitempty" msgpack:"state,omitempty"`
		ID        int64      `json:"id" msgpack:"id" example:"42"`
	}
	Config struct {
		Credentials struct {
			BotToken string `yaml:"botToken" mapstructure:"botToken"`
		} `yaml:"credentials" mapstructure:"credentials"`
		QueryExpiration int64 `yaml:"queryExpiration" mapstructure:"queryExpiration"`
	}
)

// Private API.

const (
	botTokenEnv = "AUTH_TELEGRAM_CREDENTIALS_BOT_TOKEN"
)

var (
	//nolint:gochecknoglobals // It's immutable.
	requiredFields = [...]string{FieldAuthDate, FieldHash, FieldID}
)

type (
	verifier struct {
		key             []byte
		queryExpiration int64
	}
	registry struct {
		verifiers map[string]Verifier
		bots      []string
	}
	config struct {
		WintrAuthTelegram struct {
			Bots   map[string]*Config `yaml:"bots" mapstructure:"bots"`
			Config `mapstructure:",squash"`
		} `yaml:"wintr/auth/telegram" mapstructure:"wintr/auth/telegram"` //nolint:tagliatelle // Nope.
	}
)
