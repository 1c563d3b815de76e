// SPDX-License-Identifier: ice License 1.0

package time

import (
	"context"
	"strconv"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func Now() *Time {
	now := stdlibtime.Now().UTC()

	return &Time{
		Time: &now,
	}
}

func New(time stdlibtime.Time) *Time {
	return &Time{
		Time: &time,
	}
}

// FromUnix builds a UTC time out of seconds since the unix epoch.
func FromUnix(seconds int64) *Time {
	return New(stdlibtime.Unix(seconds, 0).UTC())
}

// IsNil reports whether t carries no instant at all.
func (t *Time) IsNil() bool {
	return t == nil || t.Time == nil
}

func (t *Time) DecodeMsgpack(dec *msgpack.Decoder) error {
	nanoSecs, err := dec.DecodeInt64()
	if err != nil {
		return errors.Wrap(err, "failed to Time.DecodeMsgpack.DecodeInt64")
	}
	t.Time = new(stdlibtime.Time)
	*t.Time = stdlibtime.Unix(0, nanoSecs).UTC()

	return nil
}

func (t *Time) EncodeMsgpack(enc *msgpack.Encoder) error {
	if t.IsNil() {
		return errors.Wrap(enc.EncodeNil(), "failed to EncodeNil")
	}

	return errors.Wrap(enc.EncodeInt64(t.UnixNano()), "failed to EncodeInt64")
}

func (t *Time) MarshalJSON(_ context.Context) ([]byte, error) {
	if t.IsNil() || t.UnixNano() == 0 {
		return []byte(nullJSON), nil
	}

	//nolint:wrapcheck // We're just proxying it.
	return t.UTC().MarshalJSON()
}

func (t *Time) UnmarshalJSON(_ context.Context, bytes []byte) error {
	if err := t.unmarshallInt(bytes); err != nil {
		return err
	}
	if t.Time != nil {
		return nil
	}

	return t.unmarshallString(bytes)
}

func (t *Time) unmarshallInt(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	for _, b := range data {
		if b < '0' || b > '9' {
			return nil
		}
	}
	millisOrNanos, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid numeric time: %s", data)
	}
	t.Time = new(stdlibtime.Time)
	if len(data) == millisecondDigits {
		*t.Time = stdlibtime.UnixMilli(millisOrNanos).UTC()
	} else {
		*t.Time = stdlibtime.Unix(0, millisOrNanos).UTC()
	}

	return nil
}

func (t *Time) unmarshallString(bytes []byte) error {
	data := string(bytes)
	if data == nullJSON || data == `""` || data == "" {
		return nil
	}
	time, err := stdlibtime.Parse(`"`+stdlibtime.RFC3339Nano+`"`, data)
	if err != nil {
		return errors.Wrapf(err, "invalid time format: %v", data)
	}
	t.Time = new(stdlibtime.Time)
	*t.Time = time.UTC()

	return nil
}
