// SPDX-License-Identifier: ice License 1.0

package log

// Private API.

const (
	stackFramesToSkip = 2
	jsonEncoder       = "json"
	defaultLevel      = "info"
	redacted          = "[REDACTED]"
)

var (
	// Lower-cased field names whose values never reach the output, at any nesting depth.
	//nolint:gochecknoglobals // It's immutable.
	sensitiveFields = map[string]struct{}{
		"hash":      {},
		"bottoken":  {},
		"bot_token": {},
		"password":  {},
		"secret":    {},
	}
)

type (
	cfg struct {
		Encoder string `yaml:"encoder" mapstructure:"encoder"`
		Level   string `yaml:"level" mapstructure:"level"`
	}
)
