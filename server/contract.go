// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ice-blockchain/widgetauth/auth/telegram"
)

// Public API.

type (
	Router = gin.Engine
	Server interface {
		// ListenAndServe starts everything and blocks indefinitely.
		ListenAndServe(ctx context.Context, cancel context.CancelFunc)
	}
	// State is the actual custom behaviour that has to be implemented by users of this package to customize their http server`s lifecycle.
	State interface {
		Init(ctx context.Context, cancel context.CancelFunc)
		Close(ctx context.Context) error
		RegisterRoutes(r *Router)
		CheckHealth(ctx context.Context) error
	}
	// LoginRequest is what the application's login callback gets, after the telegram payload was verified.
	LoginRequest struct {
		User     *telegram.User   `json:"user,omitempty"`
		Payload  telegram.Payload `json:"-"`
		// AttemptID is the incoming X-Request-Id, or a random uuid; it tags every log line about this attempt.
		AttemptID string       `json:"attemptId,omitempty"`
		ClientIP  net.IP       `json:"clientIp,omitempty"`
		ginCtx    *gin.Context //nolint:structcheck // Wrong.
	}
	// LoginCallback returning neither a response nor an error means the application refused the user.
	LoginCallback[RESP any] func(ctx context.Context, req *LoginRequest) (*Response[RESP], *Response[ErrorResponse])
	Response[RESP any]      struct {
		Data    *RESP
		Headers map[string]string
		Code    int
	}
	// ErrorResponse is the struct that is eventually serialized as a negative response back to the user.
	ErrorResponse struct {
		error `json:"-" swaggerignore:"true"`
		Data  map[string]any `json:"data,omitempty"`
		Error string         `json:"error" example:"something is missing"`
		Code  string         `json:"code,omitempty" example:"SOMETHING_NOT_FOUND"`
	}
	Config struct {
		HTTPServer struct {
			CertPath string `yaml:"certPath" mapstructure:"certPath"`
			KeyPath  string `yaml:"keyPath" mapstructure:"keyPath"`
			Port     uint16 `yaml:"port" mapstructure:"port"`
		} `yaml:"httpServer" mapstructure:"httpServer"`
		DefaultEndpointTimeout time.Duration `yaml:"defaultEndpointTimeout" mapstructure:"defaultEndpointTimeout"`
	}
)

// Private API.

const (
	defaultEndpointTimeout = 30 * time.Second
	healthCheckPath        = "health-check"
	requestIDHeader        = "X-Request-Id"
	maxRequestIDLength     = 128
	maxPayloadBytes        = 16 << 10

	codeMissingProperties = "MISSING_PROPERTIES"
	codeMalformedAuthDate = "MALFORMED_AUTH_DATE"
	codeAuthDataOutdated  = "AUTH_DATA_OUTDATED"
	codeHashValidation    = "HASH_VALIDATION_FAILED"
	codeAuthDataReplayed  = "AUTH_DATA_REPLAYED"
	codeInvalidUserData   = "INVALID_USER_DATA"
	codeUserRejected      = "USER_REJECTED"
	codeInvalidPayload    = "INVALID_PAYLOAD"
)

type (
	srv struct {
		State
		server *http.Server
		router *Router
	}
)

var (
	//nolint:gochecknoglobals // Because its loaded once, at runtime.
	development bool
	//nolint:gochecknoglobals // Because its loaded once, at runtime.
	cfg Config
)
