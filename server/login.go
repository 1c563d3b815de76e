// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ice-blockchain/widgetauth/auth/telegram"
	"github.com/ice-blockchain/widgetauth/auth/telegram/replay"
	"github.com/ice-blockchain/widgetauth/log"
	"github.com/ice-blockchain/widgetauth/terror"
	"github.com/ice-blockchain/widgetauth/time"
)

// LoginHandler verifies the telegram login widget payload (query string for GET, form or JSON body otherwise),
// optionally claims it with the replay guard, and only then hands the user to onLogin.
// A nil guard disables replay protection; a nil onLogin responds with the user itself.
//
//nolint:funlen // .
func LoginHandler[RESP any](verifier telegram.Verifier, guard replay.Guard, onLogin LoginCallback[RESP]) func(*gin.Context) {
	return func(ginCtx *gin.Context) {
		ctx, cancel := context.WithTimeout(ginCtx.Request.Context(), endpointTimeout())
		defer cancel()
		req := &LoginRequest{ginCtx: ginCtx, ClientIP: net.ParseIP(ginCtx.ClientIP()), AttemptID: attemptID(ginCtx)}
		ginCtx.Header(requestIDHeader, req.AttemptID)
		payload, err := extractPayload(ginCtx)
		if err != nil {
			writeFailure(ctx, ginCtx, req, BadRequest(errors.Wrap(err, "can't read telegram login payload"), codeInvalidPayload))

			return
		}
		req.Payload = payload
		now := time.Now()
		if req.User, err = verifier.Authenticate(now, payload); err != nil {
			writeFailure(ctx, ginCtx, req, verificationFailure(err))

			return
		}
		if guard != nil {
			if err = guard.Claim(ctx, now, payload); err != nil {
				writeFailure(ctx, ginCtx, req, verificationFailure(err))

				return
			}
		}
		if onLogin == nil {
			ginCtx.JSON(http.StatusOK, req.User)

			return
		}
		success, failure := onLogin(ctx, req)
		if failure != nil {
			writeFailure(ctx, ginCtx, req, failure)

			return
		}
		if success == nil {
			writeFailure(ctx, ginCtx, req, Unauthorized(errors.Errorf("telegram user %v was rejected", req.User.ID), codeUserRejected))

			return
		}
		for k, v := range success.Headers {
			ginCtx.Header(k, v)
		}
		if success.Data != nil {
			ginCtx.JSON(success.Code, success.Data)
		} else {
			ginCtx.Status(success.Code)
		}
	}
}

// GinContext exposes the underlying request, for callbacks that need more than the verified user.
func (r *LoginRequest) GinContext() *gin.Context {
	return r.ginCtx
}

func attemptID(ginCtx *gin.Context) string {
	if id := ginCtx.GetHeader(requestIDHeader); id != "" && len(id) <= maxRequestIDLength {
		return id
	}

	return uuid.NewString()
}

// Form and query values keep only the first value of every key, the widget never sends a key twice.
// JSON bodies (the widget's onauth user object) are flat; numbers keep their literal text, as it was signed.
func extractPayload(ginCtx *gin.Context) (telegram.Payload, error) {
	switch {
	case ginCtx.Request.Method == http.MethodGet:
		return firstValues(ginCtx.Request.URL.Query()), nil
	case ginCtx.ContentType() == gin.MIMEJSON:
		return decodeJSONPayload(http.MaxBytesReader(ginCtx.Writer, ginCtx.Request.Body, maxPayloadBytes))
	default:
		ginCtx.Request.Body = http.MaxBytesReader(ginCtx.Writer, ginCtx.Request.Body, maxPayloadBytes)
		if err := ginCtx.Request.ParseForm(); err != nil {
			return nil, errors.Wrap(err, "failed to parse form")
		}

		return firstValues(ginCtx.Request.PostForm), nil
	}
}

func firstValues(values url.Values) telegram.Payload {
	payload := make(telegram.Payload, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			payload[key] = vals[0]
		}
	}

	return payload
}

func decodeJSONPayload(body io.Reader) (telegram.Payload, error) {
	var fields map[string]any
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Wrap(err, "failed to decode json")
	}
	payload := make(telegram.Payload, len(fields))
	for key, val := range fields {
		switch typed := val.(type) {
		case nil:
		case string:
			payload[key] = typed
		case json.Number:
			payload[key] = typed.String()
		case bool:
			payload[key] = strconv.FormatBool(typed)
		default:
			return nil, errors.Errorf("unsupported value for %q: %T", key, val)
		}
	}

	return payload, nil
}

func verificationFailure(err error) *Response[ErrorResponse] {
	data := terror.DataOf(err)
	switch {
	case errors.Is(err, telegram.ErrMissingField):
		return BadRequest(err, codeMissingProperties, data)
	case errors.Is(err, telegram.ErrMalformedTimestamp):
		return BadRequest(err, codeMalformedAuthDate, data)
	case errors.Is(err, telegram.ErrExpired):
		return BadRequest(err, codeAuthDataOutdated, data)
	case errors.Is(err, telegram.ErrSignatureMismatch):
		return Forbidden(err, codeHashValidation)
	case errors.Is(err, replay.ErrReplayed):
		return Conflict(err, codeAuthDataReplayed)
	case errors.Is(err, telegram.ErrInvalidUser):
		return UnprocessableEntity(err, codeInvalidUserData, data)
	default:
		return Unexpected(err)
	}
}

func writeFailure(ctx context.Context, ginCtx *gin.Context, req *LoginRequest, failure *Response[ErrorResponse]) {
	if failure.Data == nil {
		failure = Unexpected(errors.Errorf("empty %v failure", failure.Code))
	}
	err := failure.Data.InternalErr()
	if err == nil {
		err = errors.New(failure.Data.Error)
	}
	switch {
	case errors.Is(err, telegram.ErrSignatureMismatch):
		log.Error(errors.Wrap(err, "telegram login signature mismatch, payload tampered or wrong bot token"),
			"attemptId", req.AttemptID, "clientIp", req.ClientIP.String(), "payload", req.Payload)
	case failure.Code > 0 && failure.Code < http.StatusInternalServerError:
		log.Warn("telegram login rejected", "error", err.Error(), "code", failure.Data.Code,
			"attemptId", req.AttemptID, "clientIp", req.ClientIP.String())
	default:
		log.Error(errors.Wrap(err, "telegram login failed"), "attemptId", req.AttemptID, "clientIp", req.ClientIP.String())
	}
	ginCtx.JSON(processErrorResponse(ctx, ginCtx, failure))
}

func processErrorResponse(ctx context.Context, ginCtx *gin.Context, failure *Response[ErrorResponse]) (int, *ErrorResponse) {
	err := failure.Data.InternalErr()
	if reqErr := ginCtx.Request.Context().Err(); reqErr != nil && errors.Is(err, reqErr) {
		return http.StatusServiceUnavailable, &ErrorResponse{Error: "service is shutting down"}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return http.StatusGatewayTimeout, &ErrorResponse{Error: "request timed out"}
	}
	if failure.Code <= 0 {
		return http.StatusInternalServerError, &ErrorResponse{Error: "oops, something went wrong"}
	}

	return failure.Code, failure.Data
}
