// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	stdlibtime "time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/widgetauth/auth/telegram"
	"github.com/ice-blockchain/widgetauth/auth/telegram/fixture"
	"github.com/ice-blockchain/widgetauth/auth/telegram/replay"
	"github.com/ice-blockchain/widgetauth/time"
)

const (
	loginPath = "/auth/telegram"
)

type (
	memGuard struct {
		claimed map[string]struct{}
		err     error
		mx      sync.Mutex
	}
	session struct {
		Token string `json:"token"`
	}
)

func (g *memGuard) Claim(_ context.Context, _ *time.Time, payload telegram.Payload) error {
	g.mx.Lock()
	defer g.mx.Unlock()
	if g.err != nil {
		return g.err
	}
	if _, found := g.claimed[payload[telegram.FieldHash]]; found {
		return errors.Wrap(replay.ErrReplayed, "bogus")
	}
	g.claimed[payload[telegram.FieldHash]] = struct{}{}

	return nil
}

func (*memGuard) Close() error {
	return nil
}

func testVerifier(tb testing.TB) telegram.Verifier {
	tb.Helper()
	cfg := new(telegram.Config)
	cfg.Credentials.BotToken = fixture.TestBotToken
	v, err := telegram.NewWithConfig(cfg)
	require.NoError(tb, err)

	return v
}

func testRouter[RESP any](tb testing.TB, guard replay.Guard, onLogin LoginCallback[RESP]) *gin.Engine {
	tb.Helper()
	router := gin.New()
	handler := LoginHandler[RESP](testVerifier(tb), guard, onLogin)
	router.GET(loginPath, handler)
	router.POST(loginPath, handler)

	return router
}

func get(router *gin.Engine, payload map[string]string) *httptest.ResponseRecorder {
	values := make(url.Values, len(payload))
	for k, v := range payload {
		values.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, loginPath+"?"+values.Encode(), nil))

	return rec
}

func post(router *gin.Engine, payload map[string]string) *httptest.ResponseRecorder {
	values := make(url.Values, len(payload))
	for k, v := range payload {
		values.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, loginPath, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func decodeError(tb testing.TB, rec *httptest.ResponseRecorder) *ErrorResponse {
	tb.Helper()
	var resp ErrorResponse
	require.NoError(tb, json.Unmarshal(rec.Body.Bytes(), &resp))

	return &resp
}

func TestLoginHandler_DefaultResponse(t *testing.T) {
	t.Parallel()
	router := testRouter[any](t, nil, nil)
	rec := get(router, fixture.Login(fixture.TestBotToken, 42, stdlibtime.Now().Unix(), telegram.FieldFirstName, "Ann", telegram.FieldState, "xyz"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
	assert.InDelta(t, 42, usr["id"], 0)
	assert.Equal(t, "Ann", usr["firstName"])
	assert.Equal(t, "xyz", usr["state"])
	assert.NotEmpty(t, usr["authDate"])
}

func TestLoginHandler_Callback(t *testing.T) {
	t.Parallel()
	var calls int
	router := testRouter[session](t, &memGuard{claimed: make(map[string]struct{})},
		func(_ context.Context, req *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
			calls++
			assert.NotNil(t, req.GinContext())
			assert.Equal(t, "csrf-1", req.Payload[telegram.FieldState])
			resp := OK(&session{Token: "session-for-" + strconv.FormatInt(req.User.ID, 10)})
			resp.Headers = map[string]string{"X-Telegram-User": strconv.FormatInt(req.User.ID, 10)}

			return resp, nil
		})
	payload := fixture.Login(fixture.TestBotToken, 42, stdlibtime.Now().Unix(), telegram.FieldUsername, "ann", telegram.FieldState, "csrf-1")

	rec := post(router, payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"token":"session-for-42"}`, rec.Body.String())
	assert.Equal(t, "42", rec.Header().Get("X-Telegram-User"))

	rec = post(router, payload)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeAuthDataReplayed, decodeError(t, rec).Code)
	assert.Equal(t, 1, calls)
}

func TestLoginHandler_VerificationFailures(t *testing.T) { //nolint:funlen // .
	t.Parallel()
	router := testRouter[session](t, nil, func(context.Context, *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
		t.Error("callback must not be reached")

		return nil, nil
	})
	now := stdlibtime.Now().Unix()

	missing := fixture.Login(fixture.TestBotToken, 42, now)
	delete(missing, telegram.FieldHash)
	rec := get(router, missing)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, codeMissingProperties, errResp.Code)
	assert.Equal(t, map[string]any{"field": telegram.FieldHash}, errResp.Data)

	rec = get(router, fixture.Login(fixture.TestBotToken, 42, now-telegram.DefaultQueryExpiration-60))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeAuthDataOutdated, decodeError(t, rec).Code)

	malformed := fixture.Login(fixture.TestBotToken, 42, now)
	malformed[telegram.FieldAuthDate] = "yesterday"
	rec = get(router, malformed)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeMalformedAuthDate, decodeError(t, rec).Code)

	tampered := fixture.Login(fixture.TestBotToken, 42, now)
	tampered[telegram.FieldID] = "43"
	rec = post(router, tampered)
	require.Equal(t, http.StatusForbidden, rec.Code)
	errResp = decodeError(t, rec)
	assert.Equal(t, codeHashValidation, errResp.Code)
	assert.NotContains(t, rec.Body.String(), fixture.TestBotToken)

	otherBot := fixture.Login("another-secret", 42, now)
	rec = get(router, otherBot)
	require.Equal(t, http.StatusForbidden, rec.Code)

	notNumeric := fixture.Sign(fixture.TestBotToken, map[string]string{"id": "ann", "auth_date": strconv.FormatInt(now, 10)})
	rec = get(router, notNumeric)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, codeInvalidUserData, decodeError(t, rec).Code)
}

func TestLoginHandler_CallbackRejections(t *testing.T) {
	t.Parallel()
	payload := fixture.Login(fixture.TestBotToken, 42, stdlibtime.Now().Unix())

	rejecting := testRouter[session](t, nil, func(context.Context, *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
		return nil, nil
	})
	rec := get(rejecting, payload)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeUserRejected, decodeError(t, rec).Code)

	banning := testRouter[session](t, nil, func(context.Context, *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
		return nil, Forbidden(errors.New("user is banned"), "USER_BANNED")
	})
	rec = get(banning, payload)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "USER_BANNED", decodeError(t, rec).Code)

	failing := testRouter[session](t, nil, func(context.Context, *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
		return nil, Unexpected(errors.New("db is down"))
	})
	rec = get(failing, payload)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "oops, something went wrong", decodeError(t, rec).Error)
}

func TestLoginHandler_GuardFailure(t *testing.T) {
	t.Parallel()
	router := testRouter[any](t, &memGuard{err: errors.New("redis is down")}, nil)
	rec := get(router, fixture.Login(fixture.TestBotToken, 42, stdlibtime.Now().Unix()))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerificationFailure(t *testing.T) {
	t.Parallel()
	for err, expected := range map[error]int{
		telegram.ErrMissingField:       http.StatusBadRequest,
		telegram.ErrMalformedTimestamp: http.StatusBadRequest,
		telegram.ErrExpired:            http.StatusBadRequest,
		telegram.ErrSignatureMismatch:  http.StatusForbidden,
		telegram.ErrInvalidUser:        http.StatusUnprocessableEntity,
		replay.ErrReplayed:             http.StatusConflict,
		errors.New("bogus"):            -1,
	} {
		assert.Equal(t, expected, verificationFailure(errors.Wrap(err, "wrapped")).Code, err.Error())
	}
}

func TestLoginHandler_AttemptID(t *testing.T) {
	t.Parallel()
	var seen string
	router := testRouter[session](t, nil, func(_ context.Context, req *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
		seen = req.AttemptID

		return OK(&session{Token: "x"}), nil
	})
	payload := fixture.Login(fixture.TestBotToken, 42, stdlibtime.Now().Unix())

	rec := get(router, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(requestIDHeader))

	values := make(url.Values, len(payload))
	for k, v := range payload {
		values.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodGet, loginPath+"?"+values.Encode(), nil)
	req.Header.Set(requestIDHeader, "edge-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edge-123", seen)
	assert.Equal(t, "edge-123", rec.Header().Get(requestIDHeader))
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, loginPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestLoginHandler_JSONBody(t *testing.T) {
	t.Parallel()
	router := testRouter[any](t, nil, nil)
	authDate := stdlibtime.Now().Unix()
	payload := fixture.Login(fixture.TestBotToken, 42, authDate, telegram.FieldFirstName, "Ann")

	rec := postJSON(router, fmt.Sprintf(`{"id":42,"first_name":"Ann","auth_date":%v,"hash":%q}`, authDate, payload[telegram.FieldHash]))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
	assert.InDelta(t, 42, usr["id"], 0)

	rec = postJSON(router, fmt.Sprintf(`{"id":"42","first_name":"Ann","auth_date":"%v","hash":%q,"photo_url":null}`, authDate, payload[telegram.FieldHash]))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postJSON(router, fmt.Sprintf(`{"id":42.0,"first_name":"Ann","auth_date":%v,"hash":%q}`, authDate, payload[telegram.FieldHash]))
	require.Equal(t, http.StatusForbidden, rec.Code, "numbers are signed as sent")

	rec = postJSON(router, fmt.Sprintf(`{"id":42,"auth_date":%v,"hash":"x","user":{"first_name":"Ann"}}`, authDate))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidPayload, decodeError(t, rec).Code)

	rec = postJSON(router, `{"id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidPayload, decodeError(t, rec).Code)

	rec = postJSON(router, `{"id":"`+strings.Repeat("4", maxPayloadBytes)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidPayload, decodeError(t, rec).Code)
}

func TestFailure(t *testing.T) {
	t.Parallel()
	resp := Failure(http.StatusTeapot, nil, "TEAPOT", map[string]any{"a": 1})
	assert.Equal(t, http.StatusTeapot, resp.Code)
	assert.Equal(t, "I'm a teapot", resp.Data.Error)
	require.Error(t, resp.Data.InternalErr())
	assert.Equal(t, map[string]any{"a": 1}, resp.Data.Data)

	unauthorized := Unauthorized(errors.New("nope"), codeUserRejected)
	assert.Equal(t, "nope", unauthorized.Data.Error)
	require.ErrorContains(t, unauthorized.Data.InternalErr(), "authentication failed: nope")

	router := testRouter[session](t, nil, func(context.Context, *LoginRequest) (*Response[session], *Response[ErrorResponse]) {
		return nil, &Response[ErrorResponse]{Code: http.StatusPaymentRequired, Data: &ErrorResponse{Error: "pay first", Code: "PAYMENT"}}
	})
	rec := get(router, fixture.Login(fixture.TestBotToken, 42, stdlibtime.Now().Unix()))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "PAYMENT", decodeError(t, rec).Code)
}
