// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	appCfg "github.com/ice-blockchain/widgetauth/config"
	"github.com/ice-blockchain/widgetauth/log"
)

func New(state State, cfgKey string) Server {
	appCfg.MustLoadFromKey(cfgKey, &cfg)
	appCfg.MustLoadFromKey("development", &development)

	return &srv{State: state}
}

// ListenAndServe returns once ctx is done, SIGINT/SIGTERM is received or the listener fails.
// A listener failure also cancels ctx, so the host stops together with the server.
func (s *srv) ListenAndServe(ctx context.Context, cancel context.CancelFunc) {
	s.Init(ctx, cancel)
	s.setupRouter() //nolint:contextcheck // The router has no context of its own.
	s.server = &http.Server{ //nolint:gosec // Every handler sets its own deadline.
		Addr:        fmt.Sprintf(":%v", cfg.HTTPServer.Port),
		Handler:     s.router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	listenErr := make(chan error, 1)
	go func() { listenErr <- s.serve() }()
	if err := awaitStop(ctx, listenErr); err != nil {
		log.Error(err)
		cancel()
	}
	s.shutDown() //nolint:contextcheck // ctx might be done already, shutdown gets its own.
}

func endpointTimeout() time.Duration {
	if cfg.DefaultEndpointTimeout <= 0 {
		return defaultEndpointTimeout
	}

	return cfg.DefaultEndpointTimeout
}

func (s *srv) setupRouter() {
	if development {
		gin.ForceConsoleColor()
		s.router = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		s.router = gin.New()
		s.router.Use(gin.Recovery())
	}
	s.router.RemoteIPHeaders = []string{"cf-connecting-ip", "X-Real-IP", "X-Forwarded-For"}
	s.router.TrustedPlatform = gin.PlatformCloudflare
	s.router.HandleMethodNotAllowed = true
	s.router.RedirectFixedPath = true
	s.router.RemoveExtraSlash = true
	s.RegisterRoutes(s.router)
	s.router.GET(healthCheckPath, s.checkHealth)
	log.Info("routes registered", "mode", gin.Mode(), "count", len(s.router.Routes()))
}

func (s *srv) checkHealth(ginCtx *gin.Context) {
	ctx, cancel := context.WithTimeout(ginCtx.Request.Context(), endpointTimeout())
	defer cancel()
	if err := s.State.CheckHealth(ctx); err != nil {
		ginCtx.JSON(processErrorResponse(ctx, ginCtx, Unexpected(errors.Wrap(err, "health check failed"))))
		log.Error(errors.Wrap(err, "health check failed"))

		return
	}
	ginCtx.JSON(http.StatusOK, map[string]string{"clientIp": ginCtx.ClientIP()})
}

// serve blocks until the listener fails or the server is shut down; the latter is not an error.
func (s *srv) serve() error {
	log.Info("server started listening", "port", cfg.HTTPServer.Port, "tls", cfg.HTTPServer.CertPath != "" && cfg.HTTPServer.KeyPath != "")
	var err error
	if cfg.HTTPServer.CertPath == "" || cfg.HTTPServer.KeyPath == "" {
		err = s.server.ListenAndServe()
	} else {
		err = s.server.ListenAndServeTLS(cfg.HTTPServer.CertPath, cfg.HTTPServer.KeyPath)
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return errors.Wrapf(err, "failed to listen on port %v", cfg.HTTPServer.Port)
}

func awaitStop(ctx context.Context, listenErr <-chan error) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	select {
	case <-ctx.Done():
		return nil
	case sig := <-signals:
		log.Info("stopping server", "signal", sig.String())

		return nil
	case err := <-listenErr:
		return err
	}
}

func (s *srv) shutDown() {
	ctx, cancel := context.WithTimeout(context.Background(), endpointTimeout())
	defer cancel()
	log.Info("shutting down server...")

	var mErr *multierror.Error
	if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, io.EOF) {
		mErr = multierror.Append(mErr, errors.Wrap(err, "server shutdown failed"))
	}
	if err := s.State.Close(ctx); err != nil && !errors.Is(err, io.EOF) {
		mErr = multierror.Append(mErr, errors.Wrap(err, "state close failed"))
	}
	if err := mErr.ErrorOrNil(); err != nil {
		log.Error(err)

		return
	}
	log.Info("server shutdown succeeded")
}
