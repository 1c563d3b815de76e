// SPDX-License-Identifier: ice License 1.0

package telegram

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/ice-blockchain/widgetauth/terror"
	"github.com/ice-blockchain/widgetauth/time"
)

func (v *verifier) Authenticate(now *time.Time, payload Payload) (*User, error) {
	if err := v.Verify(now, payload); err != nil {
		return nil, err
	}
	usr, err := decodeUser(payload)

	return usr, errors.Wrapf(err, "can't decode verified telegram user:%v", payload[FieldID])
}

func decodeUser(payload Payload) (*User, error) {
	id, err := strconv.ParseInt(payload[FieldID], 10, 64)
	if err != nil {
		return nil, terror.New(ErrInvalidUser, map[string]any{"field": FieldID})
	}
	authDate, err := strconv.ParseInt(payload[FieldAuthDate], 10, 64)
	if err != nil {
		return nil, terror.New(ErrInvalidUser, map[string]any{"field": FieldAuthDate})
	}

	return &User{
		ID:        id,
		AuthDate:  time.FromUnix(authDate),
		FirstName: payload[FieldFirstName],
		LastName:  payload[FieldLastName],
		Username:  payload[FieldUsername],
		PhotoURL:  payload[FieldPhotoURL],
		State:     payload[FieldState],
	}, nil
}
