// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// Minter creates codes, opaque tokens and ID tokens. It is shared by the
// authorization and token endpoints.
type Minter struct {
	store  storage.GrantStore
	engine *jws.Engine
	cfg    Config
	now    func() time.Time
}

// NewMinter creates a Minter.
func NewMinter(store storage.GrantStore, engine *jws.Engine, cfg Config) (*Minter, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Minter{store: store, engine: engine, cfg: cfg, now: time.Now}, nil
}

// Config returns the effective configuration.
func (m *Minter) Config() Config {
	return m.cfg
}

// Engine returns the JWT engine used for ID tokens.
func (m *Minter) Engine() *jws.Engine {
	return m.engine
}

// Signature returns the storage key for an opaque token or code. Only the
// hash is persisted, so a storage dump yields no usable credentials.
func Signature(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NewGrantID returns an identifier linking the tokens of one grant.
func NewGrantID() string {
	return uuid.NewString()
}

func newOpaque() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MintAuthorizationCode stores code under a fresh value and returns it.
// Signature, IssuedAt and ExpiresAt are filled in.
func (m *Minter) MintAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (string, error) {
	value, err := newOpaque()
	if err != nil {
		return "", err
	}
	now := m.now()
	code.Signature = Signature(value)
	code.IssuedAt = now
	code.ExpiresAt = now.Add(m.cfg.AuthCodeLifetime)
	if code.GrantID == "" {
		code.GrantID = NewGrantID()
	}
	if err := m.store.CreateAuthorizationCode(ctx, code); err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}
	return value, nil
}

// MintToken stores tmpl as a token of kind living for ttl and returns its value.
func (m *Minter) MintToken(ctx context.Context, kind storage.TokenKind, tmpl storage.Token, ttl time.Duration) (string, *storage.Token, error) {
	value, err := newOpaque()
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	tok := tmpl
	tok.Signature = Signature(value)
	tok.Kind = kind
	tok.IssuedAt = now
	tok.ExpiresAt = now.Add(ttl)
	if err := m.store.CreateToken(ctx, &tok); err != nil {
		return "", nil, fmt.Errorf("failed to store %s: %w", kind, err)
	}
	return value, &tok, nil
}

// MintAccessToken mints an access token with the configured lifetime.
func (m *Minter) MintAccessToken(ctx context.Context, tmpl storage.Token) (string, *storage.Token, error) {
	return m.MintToken(ctx, storage.TokenKindAccess, tmpl, m.cfg.AccessTokenLifetime)
}

// MintRefreshToken mints a refresh token with the configured lifetime.
func (m *Minter) MintRefreshToken(ctx context.Context, tmpl storage.Token) (string, error) {
	value, _, err := m.MintToken(ctx, storage.TokenKindRefresh, tmpl, m.cfg.RefreshTokenLifetime)
	return value, err
}

// IDTokenParams carries the per-request ID token inputs.
type IDTokenParams struct {
	Subject     string
	Nonce       string
	AuthTime    time.Time
	ACR         string
	SessionID   string
	AccessToken string
	Code        string
	Extra       map[string]any
}

// MintIDToken signs an ID token for client.
func (m *Minter) MintIDToken(ctx context.Context, client *storage.Client, p IDTokenParams) (string, error) {
	alg := client.IDTokenSignedAlg
	if alg == "" {
		alg = m.cfg.DefaultIDTokenAlg
	}

	now := m.now()
	claims := map[string]any{
		"iss": m.cfg.Issuer,
		"sub": m.SubjectFor(client, p.Subject),
		"aud": client.ID,
		"iat": now.Unix(),
		"exp": now.Add(m.cfg.IDTokenLifetime).Unix(),
	}
	for k, v := range p.Extra {
		claims[k] = v
	}
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}
	if !p.AuthTime.IsZero() {
		claims["auth_time"] = p.AuthTime.Unix()
	}
	if p.ACR != "" {
		claims["acr"] = p.ACR
	}
	if p.SessionID != "" {
		claims["sid"] = p.SessionID
	}
	if p.AccessToken != "" {
		h, err := jws.Hash(alg, p.AccessToken)
		if err != nil {
			return "", err
		}
		claims["at_hash"] = h
	}
	if p.Code != "" {
		h, err := jws.Hash(alg, p.Code)
		if err != nil {
			return "", err
		}
		claims["c_hash"] = h
	}

	opts := jws.SignOptions{Alg: alg}
	if jws.IsHMAC(alg) {
		opts.HMACSecret = []byte(client.Secret)
	}
	idToken, err := m.engine.Sign(ctx, claims, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign id_token: %w", err)
	}
	return idToken, nil
}

// SubjectFor returns the sub value client sees for subject. Pairwise
// clients get a per-sector identifier.
func (m *Minter) SubjectFor(client *storage.Client, subject string) string {
	if client.SubjectType != registration.SubjectTypePairwise {
		return subject
	}
	sector := client.SectorIdentifierURI
	if u, err := url.Parse(sector); err == nil && u.Host != "" {
		sector = u.Host
	} else if len(client.RedirectURIs) > 0 {
		if u, err := url.Parse(client.RedirectURIs[0]); err == nil {
			sector = u.Host
		}
	}
	sum := sha256.Sum256([]byte(sector + "|" + subject + "|" + m.cfg.PairwiseSalt))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
