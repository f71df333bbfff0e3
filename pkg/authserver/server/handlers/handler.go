// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/oxauth/pkg/authserver/server/authorize"
	"github.com/stacklok/oxauth/pkg/authserver/server/federation"
	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/session"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/server/tokeninfo"
	"github.com/stacklok/oxauth/pkg/authserver/server/uma"
	"github.com/stacklok/oxauth/pkg/telemetry"
)

// Endpoint paths relative to the issuer.
const (
	PathDiscovery          = "/.well-known/openid-configuration"
	PathJWKS               = "/jwks"
	PathRegister           = "/register"
	PathRotateSecret       = "/register/rotate_secret"
	PathAuthorize          = "/authorize"
	PathToken              = "/token"
	PathTokenExchange      = "/token/exchange"
	PathValidate           = "/validate"
	PathRevoke             = "/revoke"
	PathUserInfo           = "/userinfo"
	PathClientInfo         = "/clientinfo"
	PathIntrospection      = "/introspection"
	PathEndSession         = "/end_session"
	PathUMAResources       = "/uma/resources"
	PathUMAPermission      = "/uma/permission"
	PathUMARPTStatus       = "/uma/rpt_status"
	PathFederationMetadata = "/federation_metadata"
	PathFederation         = "/federation"
	PathMetrics            = "/metrics"
)

// Defaults for Config.
const (
	DefaultMaxBodyBytes      = 64 * 1024
	DefaultSessionCookie     = "session_id"
	DefaultRegistrationRate  = rate.Limit(1)
	DefaultRegistrationBurst = 10
)

// Config configures the HTTP layer.
type Config struct {
	Issuer string
	// MaxBodyBytes bounds every request body.
	MaxBodyBytes int64
	// SessionCookie names the cookie carrying the SSO session id.
	SessionCookie string
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// SessionLifetime is the session cookie max age.
	SessionLifetime time.Duration
	// RegistrationRate and RegistrationBurst limit registrations per client IP.
	// A negative rate disables the limit.
	RegistrationRate  rate.Limit
	RegistrationBurst int
	// ScopesSupported and ClaimsSupported are advertised by discovery.
	ScopesSupported []string
	ClaimsSupported []string
}

func (c *Config) applyDefaults() {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.SessionCookie == "" {
		c.SessionCookie = DefaultSessionCookie
	}
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = session.DefaultLifetime
	}
	if c.RegistrationRate == 0 {
		c.RegistrationRate = DefaultRegistrationRate
	}
	if c.RegistrationBurst <= 0 {
		c.RegistrationBurst = DefaultRegistrationBurst
	}
}

// Services are the protocol components served over HTTP. UMA, Federation,
// Metrics, Recorder and Middleware are optional.
type Services struct {
	Keys       *jws.Engine
	Registry   *registration.Registry
	Authorize  *authorize.Engine
	Issuer     *token.Issuer
	Sessions   *session.Manager
	TokenInfo  *tokeninfo.Service
	UMA        *uma.Service
	Federation *federation.Service
	Metrics    http.Handler
	Recorder   *telemetry.Recorder
	// Middleware wraps every route, innermost last.
	Middleware []func(http.Handler) http.Handler
}

// Handler serves the provider endpoints.
type Handler struct {
	cfg      Config
	svc      Services
	limiter  *ipRateLimiter
	discover *Discovery
}

// NewHandler creates a Handler.
func NewHandler(cfg Config, svc Services) *Handler {
	cfg.applyDefaults()
	h := &Handler{cfg: cfg, svc: svc}
	if cfg.RegistrationRate > 0 {
		h.limiter = newIPRateLimiter(cfg.RegistrationRate, cfg.RegistrationBurst)
	}
	h.discover = h.buildDiscovery()
	return h
}

// Routes returns a router with every endpoint registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.svc.Middleware...)
	r.Use(h.limitBody)
	h.WellKnownRoutes(r)
	h.OAuthRoutes(r)
	h.ExtensionRoutes(r)
	if h.svc.Metrics != nil {
		r.Method(http.MethodGet, PathMetrics, h.svc.Metrics)
	}
	return r
}

// WellKnownRoutes registers discovery and JWKS.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get(PathDiscovery, h.DiscoveryHandler)
	r.Get(PathJWKS, h.JWKSHandler)
}

// OAuthRoutes registers the core OAuth 2.0 and OpenID Connect endpoints.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware)
		}
		r.Post(PathRegister, h.RegisterHandler)
	})
	r.Get(PathRegister, h.ReadRegistrationHandler)
	r.Put(PathRegister, h.UpdateRegistrationHandler)
	r.Post(PathRotateSecret, h.RotateSecretHandler)

	r.Get(PathAuthorize, h.AuthorizeHandler)
	r.Post(PathAuthorize, h.AuthorizeHandler)

	r.Post(PathToken, h.TokenHandler)
	r.Post(PathTokenExchange, h.TokenExchangeHandler)
	r.Get(PathValidate, h.ValidateHandler)
	r.Post(PathRevoke, h.RevokeHandler)

	r.Get(PathUserInfo, h.UserInfoHandler)
	r.Post(PathUserInfo, h.UserInfoHandler)
	r.Get(PathClientInfo, h.ClientInfoHandler)
	r.Post(PathClientInfo, h.ClientInfoHandler)
	r.Post(PathIntrospection, h.IntrospectionHandler)

	r.Get(PathEndSession, h.EndSessionHandler)
}

// ExtensionRoutes registers the UMA and federation endpoints when enabled.
func (h *Handler) ExtensionRoutes(r chi.Router) {
	if h.svc.UMA != nil {
		r.Post(PathUMAResources, h.UMAResourceHandler)
		r.Post(PathUMAPermission, h.UMAPermissionHandler)
		r.Post(PathUMAPermission+"/{ticket}/approve", h.UMAApproveHandler)
		r.Post(PathUMARPTStatus, h.UMARPTStatusHandler)
	}
	if h.svc.Federation != nil {
		r.Get(PathFederationMetadata, h.FederationMetadataHandler)
		r.Post(PathFederation, h.FederationJoinHandler)
	}
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) endpoint(path string) string {
	return h.cfg.Issuer + path
}
