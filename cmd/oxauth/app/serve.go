// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/oxauth/pkg/authserver"
	"github.com/stacklok/oxauth/pkg/logger"
)

const (
	defaultAddress = ":8080"

	// defaultReadHeaderTimeout prevents slowloris attacks by limiting time to read request headers.
	defaultReadHeaderTimeout = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 15 * time.Second

	healthPath = "/health"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OpenID Connect provider",
		Long: `Start the OpenID Connect provider.

The server reads the configuration file given by --config and serves every
provider endpoint until it receives SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v, nil)
		},
	}

	cmd.Flags().String("address", defaultAddress, "Address to listen on")
	cmd.Flags().String("issuer", "", "Override the issuer from the configuration file")
	cmd.Flags().Bool("trust-proxy-headers", false,
		"Take the client address from X-Forwarded-For/X-Real-IP (only behind a trusted proxy)")
	for _, name := range []string{"address", "issuer", "trust-proxy-headers"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}
	return cmd
}

// runServe serves until ctx is cancelled. ready, when non-nil, receives the
// bound address once the listener is up.
func runServe(ctx context.Context, v *viper.Viper, ready chan<- string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	srv, err := authserver.New(ctx, *cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warnw("error closing provider", "error", err)
		}
	}()

	httpServer := &http.Server{
		Handler:           newRouter(srv, v.GetBool("trust-proxy-headers")),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	listener, err := net.Listen("tcp", v.GetString("address"))
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	logger.Infow("oxauth listening", "address", listener.Addr().String(), "issuer", cfg.Issuer)
	if ready != nil {
		ready <- listener.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func newRouter(srv authserver.Server, trustProxy bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)

	r.Get(healthPath, func(w http.ResponseWriter, req *http.Request) {
		if err := srv.Storage().Health(req.Context()); err != nil {
			logger.Warnw("health check failed", "error", err)
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", srv.Handler())
	return r
}
