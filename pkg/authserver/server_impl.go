// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"golang.org/x/time/rate"

	"github.com/stacklok/oxauth/pkg/authserver/server/authorize"
	"github.com/stacklok/oxauth/pkg/authserver/server/federation"
	"github.com/stacklok/oxauth/pkg/authserver/server/handlers"
	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/keys"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/session"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/server/tokeninfo"
	"github.com/stacklok/oxauth/pkg/authserver/server/uma"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
	"github.com/stacklok/oxauth/pkg/telemetry"
)

type server struct {
	handler   http.Handler
	storage   storage.Storage
	notifier  *session.Notifier
	telemetry *telemetry.Provider
	cancel    context.CancelFunc
}

// newServer wires the protocol components on stor. cfg must already be
// defaulted and validated.
func newServer(ctx context.Context, cfg Config, stor storage.Storage) (*server, error) {
	logger.Debugw("initializing OpenID Connect provider", "issuer", cfg.Issuer, "storage", cfg.Storage.Type)

	if cfg.PairwiseSalt == "" {
		salt, err := randomSalt()
		if err != nil {
			return nil, err
		}
		cfg.PairwiseSalt = salt
		logger.Warn("no pairwise_salt configured; pairwise subjects will change on restart")
	}

	tel, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	recorder, err := telemetry.NewRecorder(tel.MeterProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	instrument, err := telemetry.NewHTTPMiddleware(tel.TracerProvider(), tel.MeterProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	// Background work (JWKS refresh) lives until Close, not until the
	// caller's ctx is done.
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &server{storage: stor, telemetry: tel, cancel: cancel}
	fail := func(err error) (*server, error) {
		cancel()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	keyProvider, err := keys.NewProviderFromConfig(cfg.Keys)
	if err != nil {
		return fail(fmt.Errorf("failed to load signing keys: %w", err))
	}
	engine := jws.NewEngine(keyProvider)

	timeout := cfg.HTTP.OutboundTimeout
	httpClient := &http.Client{Timeout: timeout}
	remote, err := jws.NewRemoteKeySets(bgCtx, httpClient, timeout)
	if err != nil {
		return fail(err)
	}

	repo, err := users.NewStaticRepository(cfg.Users, cfg.BcryptCost)
	if err != nil {
		return fail(fmt.Errorf("failed to load users: %w", err))
	}

	minter, err := token.NewMinter(stor, engine, cfg.tokenConfig())
	if err != nil {
		return fail(fmt.Errorf("failed to create token minter: %w", err))
	}
	auth := token.NewClientAuthenticator(stor, stor, remote, cfg.Issuer+handlers.PathToken, cfg.Lifetimes.AssertionLeeway)
	issuer := token.NewIssuer(minter, stor, repo, auth)

	registry := registration.NewRegistry(
		stor,
		cfg.Registration,
		registration.NewSectorVerifier(httpClient, timeout),
		cfg.Issuer+handlers.PathRegister,
	)

	s.notifier = session.NewNotifier(httpClient, timeout, cfg.Session.LogoutRetries,
		session.WithDeliveryHook(recorder.LogoutDelivered))
	sessions := session.NewManager(stor, stor, engine, s.notifier, cfg.sessionConfig())

	authOpts := []authorize.Option{
		authorize.WithRemoteKeySets(remote),
		authorize.WithHTTPClient(httpClient),
	}
	var fed *federation.Service
	if len(cfg.Federation.Federations) > 0 {
		fed, err = federation.NewService(stor, stor, engine, cfg.Federation)
		if err != nil {
			return fail(fmt.Errorf("failed to create federation service: %w", err))
		}
		if fed.RequireTrust() {
			authOpts = append(authOpts, authorize.WithTrustChecker(fed))
		}
	}
	authz := authorize.NewEngine(stor, stor, repo, sessions, minter,
		authorize.Config{Issuer: cfg.Issuer, RequestURITimeout: timeout}, authOpts...)

	info, err := tokeninfo.NewService(stor, stor, repo, minter, auth, cfg.Introspection.Whitelist)
	if err != nil {
		return fail(err)
	}

	var umaSvc *uma.Service
	if cfg.UMA.Enabled {
		umaSvc, err = uma.NewService(stor, stor, minter, cfg.umaConfig())
		if err != nil {
			return fail(fmt.Errorf("failed to create UMA service: %w", err))
		}
		umaSvc.RegisterGrant(issuer)
	}

	h := handlers.NewHandler(handlers.Config{
		Issuer:            cfg.Issuer,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		SessionCookie:     cfg.Session.CookieName,
		SecureCookies:     cfg.Session.SecureCookies,
		SessionLifetime:   cfg.Session.Lifetime,
		RegistrationRate:  rate.Limit(cfg.HTTP.RegistrationRate),
		RegistrationBurst: cfg.HTTP.RegistrationBurst,
		ScopesSupported:   cfg.Registration.SupportedScopes,
		ClaimsSupported:   claimsSupported(cfg.Users),
	}, handlers.Services{
		Keys:       engine,
		Registry:   registry,
		Authorize:  authz,
		Issuer:     issuer,
		Sessions:   sessions,
		TokenInfo:  info,
		UMA:        umaSvc,
		Federation: fed,
		Metrics:    tel.PrometheusHandler(),
		Recorder:   recorder,
		Middleware: []func(http.Handler) http.Handler{instrument.Handler},
	})
	s.handler = h.Routes()

	logger.Infow("OpenID Connect provider initialized",
		"issuer", cfg.Issuer,
		"uma", umaSvc != nil,
		"federations", len(cfg.Federation.Federations),
		"users", len(cfg.Users))
	return s, nil
}

func randomSalt() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate pairwise salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// claimsSupported lists the standard claims plus every claim a configured
// user carries.
func claimsSupported(entries []users.StaticUser) []string {
	claims := []string{"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "acr", "at_hash", "c_hash", "sid"}
	seen := make(map[string]bool, len(claims))
	for _, c := range claims {
		seen[c] = true
	}
	var extra []string
	for _, u := range entries {
		for name := range u.Claims {
			if !seen[name] {
				seen[name] = true
				extra = append(extra, name)
			}
		}
	}
	slices.Sort(extra)
	return append(claims, extra...)
}

// Handler returns the HTTP handler that serves all provider endpoints.
func (s *server) Handler() http.Handler {
	return s.handler
}

// Storage returns the storage backend.
func (s *server) Storage() storage.Storage {
	return s.storage
}

// Close releases resources held by the server.
func (s *server) Close() error {
	logger.Debug("closing OpenID Connect provider")
	s.notifier.Wait()
	s.cancel()
	return errors.Join(
		s.telemetry.Shutdown(context.Background()),
		s.storage.Close(),
	)
}
