// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/oxauth/pkg/authserver/server/federation"
	"github.com/stacklok/oxauth/pkg/authserver/server/handlers"
	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/keys"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/session"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/server/uma"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/telemetry"
)

const (
	// DefaultOutboundTimeout bounds every outbound HTTP call the provider
	// makes: sector identifiers, request_uri, client JWKS and logout
	// notifications.
	DefaultOutboundTimeout = 5 * time.Second

	// DefaultLogoutRetries is how often a failed back-channel logout is retried.
	DefaultLogoutRetries = 3

	// MinPairwiseSaltLength is the minimum pairwise salt length in bytes.
	MinPairwiseSaltLength = 16
)

// Config is the YAML configuration of the provider.
type Config struct {
	// Issuer is the issuer identifier; every endpoint URL is derived from it.
	Issuer string `yaml:"issuer"`

	// Keys selects the signing keys. Without a key directory, ephemeral
	// keys are generated.
	Keys keys.Config `yaml:"keys,omitempty"`

	// PairwiseSalt mixes into pairwise subject identifiers. It must stay
	// stable across restarts and replicas.
	PairwiseSalt string `yaml:"pairwise_salt,omitempty"`

	// DefaultIDTokenAlg signs ID tokens for clients that registered none.
	DefaultIDTokenAlg string `yaml:"default_id_token_alg,omitempty"`

	Lifetimes     Lifetimes           `yaml:"lifetimes,omitempty"`
	Storage       storage.Config      `yaml:"storage,omitempty"`
	Registration  registration.Policy `yaml:"registration,omitempty"`
	Session       SessionConfig       `yaml:"session,omitempty"`
	Federation    federation.Config   `yaml:"federation,omitempty"`
	UMA           UMAConfig           `yaml:"uma,omitempty"`
	Introspection IntrospectionConfig `yaml:"introspection,omitempty"`
	HTTP          HTTPConfig          `yaml:"http,omitempty"`
	Telemetry     telemetry.Config    `yaml:"telemetry,omitempty"`

	// Users are the resource owners known to the provider.
	Users []users.StaticUser `yaml:"users,omitempty"`

	// BcryptCost hashes plaintext user passwords at startup.
	BcryptCost int `yaml:"bcrypt_cost,omitempty"`
}

// Lifetimes configures how long issued artifacts live. Zero values take
// the token package defaults.
type Lifetimes struct {
	AuthorizationCode   time.Duration `yaml:"authorization_code,omitempty"`
	AccessToken         time.Duration `yaml:"access_token,omitempty"`
	RefreshToken        time.Duration `yaml:"refresh_token,omitempty"`
	IDToken             time.Duration `yaml:"id_token,omitempty"`
	ExchangeToken       time.Duration `yaml:"exchange_token,omitempty"`
	ExchangeAccessToken time.Duration `yaml:"exchange_access_token,omitempty"`
	AssertionLeeway     time.Duration `yaml:"assertion_leeway,omitempty"`
}

// SessionConfig configures SSO sessions and logout.
type SessionConfig struct {
	Lifetime   time.Duration `yaml:"lifetime,omitempty"`
	HintLeeway time.Duration `yaml:"hint_leeway,omitempty"`

	// AllowRedirectFallback redirects to a whitelisted post-logout URI even
	// when the id_token_hint and session are invalid.
	AllowRedirectFallback     bool     `yaml:"allow_redirect_fallback,omitempty"`
	FallbackRedirectWhitelist []string `yaml:"fallback_redirect_whitelist,omitempty"`

	CookieName    string `yaml:"cookie_name,omitempty"`
	SecureCookies bool   `yaml:"secure_cookies,omitempty"`

	// LogoutRetries bounds back-channel logout retries.
	LogoutRetries uint `yaml:"logout_retries,omitempty"`
}

// UMAConfig configures the UMA endpoints.
type UMAConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TicketLifetime time.Duration `yaml:"ticket_lifetime,omitempty"`
	RPTLifetime    time.Duration `yaml:"rpt_lifetime,omitempty"`
	// Policies are cedar policies; empty uses uma.DefaultPolicy.
	Policies []string `yaml:"policies,omitempty"`
}

// IntrospectionConfig configures the introspection endpoint.
type IntrospectionConfig struct {
	// Whitelist lists IPs or CIDR networks allowed to introspect without
	// authenticating.
	Whitelist []string `yaml:"whitelist,omitempty"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	MaxBodyBytes int64 `yaml:"max_body_bytes,omitempty"`
	// RegistrationRate is registrations per second per client IP. A negative
	// value disables the limit.
	RegistrationRate  float64       `yaml:"registration_rate,omitempty"`
	RegistrationBurst int           `yaml:"registration_burst,omitempty"`
	OutboundTimeout   time.Duration `yaml:"outbound_timeout,omitempty"`
}

// LoadConfig reads a YAML configuration file. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL: %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment")
	}
	if u.Scheme != "https" && !registration.IsLoopbackHost(u.Hostname()) {
		return fmt.Errorf("issuer must use https unless it is a loopback address")
	}

	if c.PairwiseSalt != "" && len(c.PairwiseSalt) < MinPairwiseSaltLength {
		return fmt.Errorf("pairwise_salt must be at least %d bytes", MinPairwiseSaltLength)
	}
	if c.DefaultIDTokenAlg != "" && (!jws.IsSupported(c.DefaultIDTokenAlg) || jws.IsHMAC(c.DefaultIDTokenAlg)) {
		return fmt.Errorf("unsupported default_id_token_alg %q", c.DefaultIDTokenAlg)
	}

	switch c.Storage.Type {
	case storage.TypeMemory:
	case storage.TypeRedis:
		if c.Storage.Redis == nil {
			return fmt.Errorf("storage.redis is required when storage.type is redis")
		}
	case storage.TypeSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required when storage.type is sqlite")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if err := c.Federation.Validate(); err != nil {
		return fmt.Errorf("invalid federation config: %w", err)
	}
	if c.Session.AllowRedirectFallback && len(c.Session.FallbackRedirectWhitelist) == 0 {
		return fmt.Errorf("session.allow_redirect_fallback requires fallback_redirect_whitelist")
	}

	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Subject == "" || u.Username == "" {
			return fmt.Errorf("user %d: subject and username are required", i)
		}
		if seen[u.Username] {
			return fmt.Errorf("duplicate username %q", u.Username)
		}
		seen[u.Username] = true
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Type == "" {
		c.Storage.Type = storage.TypeMemory
	}
	if c.HTTP.OutboundTimeout <= 0 {
		c.HTTP.OutboundTimeout = DefaultOutboundTimeout
	}
	if c.Session.LogoutRetries == 0 {
		c.Session.LogoutRetries = DefaultLogoutRetries
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = telemetry.DefaultServiceName
	}
}

func (c *Config) tokenConfig() token.Config {
	return token.Config{
		Issuer:                      c.Issuer,
		TokenEndpoint:               c.Issuer + handlers.PathToken,
		DefaultIDTokenAlg:           c.DefaultIDTokenAlg,
		PairwiseSalt:                c.PairwiseSalt,
		AuthCodeLifetime:            c.Lifetimes.AuthorizationCode,
		AccessTokenLifetime:         c.Lifetimes.AccessToken,
		RefreshTokenLifetime:        c.Lifetimes.RefreshToken,
		IDTokenLifetime:             c.Lifetimes.IDToken,
		ExchangeTokenLifetime:       c.Lifetimes.ExchangeToken,
		ExchangeAccessTokenLifetime: c.Lifetimes.ExchangeAccessToken,
		AssertionLeeway:             c.Lifetimes.AssertionLeeway,
	}
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		Issuer:                    c.Issuer,
		Lifetime:                  c.Session.Lifetime,
		HintLeeway:                c.Session.HintLeeway,
		AllowRedirectFallback:     c.Session.AllowRedirectFallback,
		FallbackRedirectWhitelist: c.Session.FallbackRedirectWhitelist,
	}
}

func (c *Config) umaConfig() uma.Config {
	return uma.Config{
		TicketLifetime: c.UMA.TicketLifetime,
		RPTLifetime:    c.UMA.RPTLifetime,
		Policies:       c.UMA.Policies,
	}
}
