// SPDX-License-Identifier: ice License 1.0

package server

import (
	"net/http"

	"github.com/pkg/errors"
)

// Failure builds a negative response; `data` is optional and only its first element is used.
// A status <= 0 is rendered as an opaque 500, the internal error is only logged.
func Failure(status int, err error, code string, data ...map[string]any) *Response[ErrorResponse] {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	errResp := &ErrorResponse{error: err, Error: err.Error(), Code: code}
	if len(data) > 0 {
		errResp.Data = data[0]
	}

	return &Response[ErrorResponse]{Code: status, Data: errResp}
}

func BadRequest(err error, code string, data ...map[string]any) *Response[ErrorResponse] {
	return Failure(http.StatusBadRequest, err, code, data...)
}

func Unauthorized(err error, code string, data ...map[string]any) *Response[ErrorResponse] {
	resp := Failure(http.StatusUnauthorized, err, code, data...)
	resp.Data.error = errors.Wrap(resp.Data.error, "authentication failed")

	return resp
}

func Forbidden(err error, code string, data ...map[string]any) *Response[ErrorResponse] {
	return Failure(http.StatusForbidden, err, code, data...)
}

func Conflict(err error, code string, data ...map[string]any) *Response[ErrorResponse] {
	return Failure(http.StatusConflict, err, code, data...)
}

func UnprocessableEntity(err error, code string, data ...map[string]any) *Response[ErrorResponse] {
	return Failure(http.StatusUnprocessableEntity, err, code, data...)
}

func Unexpected(err error) *Response[ErrorResponse] {
	return Failure(-1, err, "")
}

func OK[RESP any](resp *RESP) *Response[RESP] {
	return &Response[RESP]{Code: http.StatusOK, Data: resp}
}

func (e *ErrorResponse) Fail(err error) *ErrorResponse {
	e.error = err

	return e
}

func (e *ErrorResponse) InternalErr() error {
	return e.error
}
