// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tokeninfo answers questions about issued tokens: introspection
// (RFC 7662), OpenID Connect UserInfo, and ClientInfo.
package tokeninfo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// errClientInfoToken is the ClientInfo flavour of invalid_token, which
// answers 400 rather than 401.
var errClientInfoToken = &fosite.RFC6749Error{
	ErrorField:       "invalid_token",
	DescriptionField: "The access token provided is expired, revoked, malformed, or invalid.",
	CodeField:        http.StatusBadRequest,
}

// Introspection is the RFC 7662 response. Inactive tokens carry only
// active=false.
type Introspection struct {
	Active      bool                 `json:"active"`
	Scope       string               `json:"scope,omitempty"`
	ClientID    string               `json:"client_id,omitempty"`
	Subject     string               `json:"sub,omitempty"`
	TokenType   string               `json:"token_type,omitempty"`
	ExpiresAt   int64                `json:"exp,omitempty"`
	IssuedAt    int64                `json:"iat,omitempty"`
	Issuer      string               `json:"iss,omitempty"`
	Audience    string               `json:"aud,omitempty"`
	AuthTime    int64                `json:"auth_time,omitempty"`
	Permissions []storage.Permission `json:"permissions,omitempty"`
}

// Caller identifies the party calling the introspection endpoint.
type Caller struct {
	Bearer      string
	Credentials token.Credentials
	RemoteAddr  string
}

// Service implements the token information endpoints.
type Service struct {
	grants    storage.GrantStore
	clients   storage.ClientStore
	users     users.Repository
	minter    *token.Minter
	auth      *token.ClientAuthenticator
	whitelist []netip.Prefix
	now       func() time.Time
}

// NewService creates a Service. whitelist lists the networks allowed to
// introspect without credentials.
func NewService(
	grants storage.GrantStore,
	clients storage.ClientStore,
	repo users.Repository,
	minter *token.Minter,
	auth *token.ClientAuthenticator,
	whitelist []string,
) (*Service, error) {
	prefixes := make([]netip.Prefix, 0, len(whitelist))
	for _, entry := range whitelist {
		p, err := parsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid introspection whitelist entry %q: %w", entry, err)
		}
		prefixes = append(prefixes, p)
	}
	return &Service{
		grants:    grants,
		clients:   clients,
		users:     repo,
		minter:    minter,
		auth:      auth,
		whitelist: prefixes,
		now:       time.Now,
	}, nil
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// lookup returns a live token by value, or nil.
func (s *Service) lookup(ctx context.Context, value string) (*storage.Token, error) {
	if value == "" {
		return nil, nil
	}
	tok, err := s.grants.GetToken(ctx, token.Signature(value))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if !s.now().Before(tok.ExpiresAt) {
		return nil, nil
	}
	return tok, nil
}

// AuthenticateCaller admits the introspection caller: a valid bearer access
// token, an authenticated client, or a whitelisted address.
func (s *Service) AuthenticateCaller(ctx context.Context, c Caller) error {
	if c.Bearer != "" {
		tok, err := s.lookup(ctx, c.Bearer)
		if err != nil {
			return err
		}
		if tok != nil && tok.Kind == storage.TokenKindAccess {
			return nil
		}
		return oautherr.ErrInvalidToken
	}
	if c.Credentials.ClientID != "" || c.Credentials.Assertion != "" {
		_, err := s.auth.Authenticate(ctx, c.Credentials)
		return err
	}
	if s.whitelisted(c.RemoteAddr) {
		return nil
	}
	return fosite.ErrInvalidClient.WithHint("Introspection requires authentication.")
}

func (s *Service) whitelisted(remoteAddr string) bool {
	if len(s.whitelist) == 0 || remoteAddr == "" {
		return false
	}
	addr, err := netip.ParseAddrPort(remoteAddr)
	var ip netip.Addr
	if err == nil {
		ip = addr.Addr()
	} else if ip, err = netip.ParseAddr(remoteAddr); err != nil {
		return false
	}
	ip = ip.Unmap()
	return slices.ContainsFunc(s.whitelist, func(p netip.Prefix) bool { return p.Contains(ip) })
}

// Introspect describes value. Unknown, expired and revoked tokens are
// reported as inactive, never as errors.
func (s *Service) Introspect(ctx context.Context, value string) (*Introspection, error) {
	tok, err := s.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return &Introspection{Active: false}, nil
	}

	out := &Introspection{
		Active:    true,
		Scope:     strings.Join(tok.Scopes, " "),
		ClientID:  tok.ClientID,
		Subject:   tok.Subject,
		TokenType: string(tok.Kind),
		ExpiresAt: tok.ExpiresAt.Unix(),
		IssuedAt:  tok.IssuedAt.Unix(),
		Issuer:    s.minter.Config().Issuer,
		Audience:  tok.ClientID,
	}
	if !tok.AuthTime.IsZero() {
		out.AuthTime = tok.AuthTime.Unix()
	}
	if tok.Kind == storage.TokenKindRPT {
		out.Permissions = tok.Permissions
	}
	return out, nil
}

// UserInfo returns the claims released to the bearer of value.
func (s *Service) UserInfo(ctx context.Context, value string) (map[string]any, error) {
	if value == "" {
		return nil, oautherr.ErrInvalidToken.WithHint("The access token is missing.")
	}
	tok, err := s.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.Kind != storage.TokenKindAccess || tok.Subject == "" {
		return nil, oautherr.ErrInvalidToken
	}
	if !tok.HasScope(token.ScopeOpenID) {
		return nil, oautherr.ErrInsufficientScope.WithHint("The openid scope is required.")
	}

	user, err := s.users.GetBySubject(ctx, tok.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			logger.Debugw("userinfo subject no longer exists", "client_id", tok.ClientID)
			return nil, oautherr.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	claims := users.FilterClaims(user, tok.Scopes)
	client, err := s.clients.GetClient(ctx, tok.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oautherr.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	claims["sub"] = s.minter.SubjectFor(client, tok.Subject)
	return claims, nil
}

// ClientInfo returns the metadata of the client the bearer token was issued to.
func (s *Service) ClientInfo(ctx context.Context, value string) (*registration.Metadata, error) {
	if value == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The access token is missing.")
	}
	tok, err := s.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.Kind == storage.TokenKindRefresh {
		return nil, errClientInfoToken
	}
	client, err := s.clients.GetClient(ctx, tok.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errClientInfoToken
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	md := registration.MetadataFromClient(client)
	md.JWKS = nil
	md.CustomAttributes = nil
	return &md, nil
}
