// SPDX-License-Identifier: ice License 1.0

package telegram

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ice-blockchain/widgetauth/time"
)

func fullPayload() Payload {
	return Payload{
		FieldID:        "42",
		FieldFirstName: "Ann",
		FieldLastName:  "Lee",
		FieldUsername:  "ann",
		FieldPhotoURL:  "https://t.me/i/userpic/320/ann.jpg",
		FieldAuthDate:  "1700000000",
		FieldState:     "csrf-1",
		FieldHash:      "3e54c16f7647c0ec07ff9a8de3ed53742354bba033db2255ddda3948330d2668",
	}
}

func TestAuthenticate_Success(t *testing.T) {
	t.Parallel()
	v := mustVerifier(t, DefaultQueryExpiration)

	usr, err := v.Authenticate(time.FromUnix(testAuthDate+10), fullPayload())
	require.NoError(t, err)
	assert.Equal(t, int64(42), usr.ID)
	assert.Equal(t, "Ann", usr.FirstName)
	assert.Equal(t, "Lee", usr.LastName)
	assert.Equal(t, "ann", usr.Username)
	assert.Equal(t, "https://t.me/i/userpic/320/ann.jpg", usr.PhotoURL)
	assert.Equal(t, "csrf-1", usr.State)
	assert.Equal(t, testAuthDate, usr.AuthDate.Unix())

	minimal, err := v.Authenticate(time.FromUnix(testAuthDate), testPayload())
	require.NoError(t, err)
	assert.Equal(t, &User{ID: 42, FirstName: "Ann", AuthDate: time.FromUnix(testAuthDate)}, minimal)
}

func TestAuthenticate_Failure(t *testing.T) {
	t.Parallel()
	v := mustVerifier(t, DefaultQueryExpiration)

	forged := fullPayload()
	forged[FieldUsername] = "admin"
	usr, err := v.Authenticate(time.FromUnix(testAuthDate), forged)
	require.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Nil(t, usr)

	notNumeric := Payload{
		FieldID:        "ann",
		FieldFirstName: "Ann",
		FieldAuthDate:  "1700000000",
		FieldHash:      "7f777b946dbce391ccf2b1dcf95fa0b3c871e82c4f2824d50360e21e65ba7e54",
	}
	require.NoError(t, v.Verify(time.FromUnix(testAuthDate), notNumeric))
	usr, err = v.Authenticate(time.FromUnix(testAuthDate), notNumeric)
	require.ErrorIs(t, err, ErrInvalidUser)
	assert.Nil(t, usr)

	notATimestamp := Payload{FieldID: "42", FieldAuthDate: "yesterday", FieldHash: "8a6bae20cf2052c89ef75b0f98642e6e028ae5145781952659f5b29bb9dfd7c6"}
	usr, err = mustVerifier(t, FreshnessDisabled).Authenticate(time.FromUnix(testAuthDate), notATimestamp)
	require.ErrorIs(t, err, ErrInvalidUser)
	assert.Nil(t, usr)
}

func TestUser_Encoding(t *testing.T) {
	t.Parallel()
	usr, err := mustVerifier(t, DefaultQueryExpiration).Authenticate(time.FromUnix(testAuthDate), fullPayload())
	require.NoError(t, err)

	bytes, err := json.MarshalContext(context.Background(), usr)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"authDate":"2023-11-14T22:13:20Z",
		"firstName":"Ann",
		"lastName":"Lee",
		"username":"ann",
		"photoUrl":"https://t.me/i/userpic/320/ann.jpg",
		"state":"csrf-1",
		"id":42
	}`, string(bytes))

	packed, err := msgpack.Marshal(usr)
	require.NoError(t, err)
	var decoded User
	require.NoError(t, msgpack.Unmarshal(packed, &decoded))
	assert.Equal(t, usr.ID, decoded.ID)
	assert.Equal(t, usr.Username, decoded.Username)
	assert.True(t, usr.AuthDate.Equal(*decoded.AuthDate.Time))
}
