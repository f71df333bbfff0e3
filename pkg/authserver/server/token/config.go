// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"errors"
	"time"
)

// Default lifetimes.
const (
	DefaultAuthCodeLifetime            = 60 * time.Second
	DefaultAccessTokenLifetime         = time.Hour
	DefaultRefreshTokenLifetime        = 30 * 24 * time.Hour
	DefaultIDTokenLifetime             = time.Hour
	DefaultExchangeTokenLifetime       = 7 * 24 * time.Hour
	DefaultExchangeAccessTokenLifetime = 5 * time.Minute
	DefaultAssertionLeeway             = 30 * time.Second
)

// Config configures token minting and the token endpoint.
type Config struct {
	// Issuer is the iss claim of every ID token.
	Issuer string
	// TokenEndpoint is the absolute token endpoint URL; client assertions
	// must carry it in aud.
	TokenEndpoint string
	// DefaultIDTokenAlg signs ID tokens for clients that registered none.
	DefaultIDTokenAlg string
	// PairwiseSalt mixes into pairwise subject identifiers.
	PairwiseSalt string

	AuthCodeLifetime            time.Duration
	AccessTokenLifetime         time.Duration
	RefreshTokenLifetime        time.Duration
	IDTokenLifetime             time.Duration
	ExchangeTokenLifetime       time.Duration
	ExchangeAccessTokenLifetime time.Duration
	AssertionLeeway             time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultIDTokenAlg == "" {
		c.DefaultIDTokenAlg = "RS256"
	}
	setDefault(&c.AuthCodeLifetime, DefaultAuthCodeLifetime)
	setDefault(&c.AccessTokenLifetime, DefaultAccessTokenLifetime)
	setDefault(&c.RefreshTokenLifetime, DefaultRefreshTokenLifetime)
	setDefault(&c.IDTokenLifetime, DefaultIDTokenLifetime)
	setDefault(&c.ExchangeTokenLifetime, DefaultExchangeTokenLifetime)
	setDefault(&c.ExchangeAccessTokenLifetime, DefaultExchangeAccessTokenLifetime)
	setDefault(&c.AssertionLeeway, DefaultAssertionLeeway)
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	if c.TokenEndpoint == "" {
		return errors.New("token endpoint is required")
	}
	return nil
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
