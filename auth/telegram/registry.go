// SPDX-License-Identifier: ice License 1.0

package telegram

import (
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	appcfg "github.com/ice-blockchain/widgetauth/config"
	"github.com/ice-blockchain/widgetauth/log"
)

// NewRegistry builds one Verifier per entry of `bots`. Bot names are lower-cased by the config loader.
func NewRegistry(applicationYAMLKey string) Registry {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	for name, bot := range cfg.WintrAuthTelegram.Bots {
		if bot != nil && strings.TrimSpace(bot.Credentials.BotToken) == "" {
			envName := "AUTH_TELEGRAM_BOTS_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_CREDENTIALS_BOT_TOKEN"
			bot.Credentials.BotToken = appcfg.EnvFallback(applicationYAMLKey, envName)
		}
	}
	reg, err := NewRegistryWithConfig(cfg.WintrAuthTelegram.Bots)
	log.Panic(errors.Wrapf(err, "invalid telegram login bots config for %q", applicationYAMLKey)) //nolint:revive // That's intended.

	return reg
}

func NewRegistryWithConfig(bots map[string]*Config) (Registry, error) {
	if len(bots) == 0 {
		return nil, errors.Wrap(ErrMissingBotToken, "at least one bot is required")
	}
	reg := &registry{verifiers: make(map[string]Verifier, len(bots)), bots: slices.Sorted(maps.Keys(bots))}
	var mErr *multierror.Error
	for _, name := range reg.bots {
		v, err := NewWithConfig(bots[name])
		if err != nil {
			mErr = multierror.Append(mErr, errors.Wrapf(err, "bot %q", name))

			continue
		}
		reg.verifiers[name] = v
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return nil, err //nolint:wrapcheck // Every entry is wrapped already.
	}

	return reg, nil
}

func (r *registry) Verifier(bot string) (Verifier, error) {
	if v, found := r.verifiers[bot]; found {
		return v, nil
	}

	return nil, errors.Wrapf(ErrUnknownBot, "%q", bot)
}

func (r *registry) Bots() []string {
	return slices.Clone(r.bots)
}
