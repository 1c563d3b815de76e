// SPDX-License-Identifier: ice License 1.0

package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/ice-blockchain/widgetauth/config"
)

var (
	//nolint:gochecknoglobals // Single logger for the whole process.
	logger *zerolog.Logger
)

//nolint:gochecknoinits // The logger has to be ready before any other package's init logs.
func init() {
	var appCfg cfg
	config.MustLoadFromKey("logger", &appCfg)
	configureZerolog()
	lgr, err := newLogger(os.Stderr, &appCfg)
	if err != nil {
		panic(errors.Wrap(err, "failed to setup logger"))
	}
	logger = lgr
	stdlog.SetFlags(0)
	stdlog.SetOutput(lgr)
}

func configureZerolog() {
	zerolog.DisableSampling(true)
	zerolog.ErrorStackMarshaler = errorStackMarshaller //nolint:reassign // Only init calls it.
	zerolog.InterfaceMarshalFunc = json.Marshal
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Nanosecond
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

func newLogger(out io.Writer, appCfg *cfg) (*zerolog.Logger, error) {
	level := strings.TrimSpace(appCfg.Level)
	if level == "" {
		level = defaultLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid logger level %q", level)
	}
	if !strings.EqualFold(appCfg.Encoder, jsonEncoder) {
		out = &zerolog.ConsoleWriter{
			Out:          out,
			TimeFormat:   time.RFC3339Nano,
			PartsOrder:   []string{zerolog.LevelFieldName, zerolog.TimestampFieldName, zerolog.MessageFieldName},
			PartsExclude: []string{zerolog.ErrorStackFieldName, zerolog.CallerFieldName},
		}
	}
	lgr := zerolog.New(out).Level(lvl).With().Timestamp().Stack().Logger()

	return &lgr, nil
}

// The outermost frames belong to the runtime and the test/main harness.
func errorStackMarshaller(err error) any {
	frames, ok := pkgerrors.MarshalStack(err).([]map[string]string)
	if !ok || len(frames) <= stackFramesToSkip {
		return nil
	}
	var sb strings.Builder
	for ix, frame := range frames[:len(frames)-stackFramesToSkip] {
		if ix > 0 {
			sb.WriteString("<<")
		}
		fmt.Fprintf(&sb, "%s:%s:%s",
			frame[pkgerrors.StackSourceFileName], frame[pkgerrors.StackSourceLineName], frame[pkgerrors.StackSourceFunctionName])
	}

	return sb.String()
}

// withFields attaches key/value pairs to the event, masking sensitive values, including inside string keyed maps.
func withFields(event *zerolog.Event, fields []any) *zerolog.Event {
	if len(fields) == 0 {
		return event
	}

	return event.Fields(redact(fields))
}

func redact(fields []any) []any {
	clean := make([]any, len(fields))
	copy(clean, fields)
	for ix := 0; ix+1 < len(clean); ix += 2 {
		if key, ok := clean[ix].(string); ok && isSensitive(key) {
			clean[ix+1] = redacted
		} else {
			clean[ix+1] = redactMap(clean[ix+1])
		}
	}

	return clean
}

func redactMap(val any) any {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return val
	}
	clean := make(map[string]any, rv.Len())
	for iter := rv.MapRange(); iter.Next(); {
		if key := iter.Key().String(); isSensitive(key) {
			clean[key] = redacted
		} else {
			clean[key] = redactMap(iter.Value().Interface())
		}
	}

	return clean
}

func isSensitive(key string) bool {
	_, found := sensitiveFields[strings.ToLower(key)]

	return found
}

func asError(anything any) error {
	switch obj := anything.(type) {
	case error:
		return obj
	case string:
		return errors.New(obj)
	default:
		return errors.Errorf("%#v", obj)
	}
}

func Error(err error, fields ...any) {
	if err == nil {
		return
	}
	withFields(logger.Err(err), fields).Send()
}

func Debug(msg string, fields ...any) {
	withFields(logger.Debug(), fields).Msg(msg)
}

func Info(msg string, fields ...any) {
	withFields(logger.Info(), fields).Msg(msg)
}

func Warn(msg string, fields ...any) {
	withFields(logger.Warn(), fields).Msg(msg)
}

func Fatal(anything any, fields ...any) {
	if anything == nil {
		return
	}
	withFields(logger.Fatal(), fields).Err(asError(anything)).Send()
}

// Panic logs and panics, unless anything is nil; so `log.Panic(err)` is a no-op for a nil error.
func Panic(anything any, fields ...any) {
	if anything == nil {
		return
	}
	withFields(logger.Panic(), fields).Err(asError(anything)).Send()
}

func Level() string {
	return logger.GetLevel().String()
}
