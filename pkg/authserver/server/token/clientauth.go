// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/keys"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// ClientAssertionType is the only supported client_assertion_type (RFC 7523).
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Credentials are the client credentials presented at an endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	// Basic is true when the credentials came from the Authorization header.
	Basic         bool
	Assertion     string
	AssertionType string
}

// KeySetFetcher resolves a client's jwks_uri.
type KeySetFetcher interface {
	Fetch(ctx context.Context, url string) (*jose.JSONWebKeySet, error)
}

// ClientAuthenticator authenticates clients at the token, revocation and
// introspection endpoints.
type ClientAuthenticator struct {
	clients  storage.ClientStore
	jtis     storage.GrantStore
	remote   KeySetFetcher
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewClientAuthenticator creates an authenticator. audience is the token
// endpoint URL that client assertions must be addressed to.
func NewClientAuthenticator(
	clients storage.ClientStore, jtis storage.GrantStore, remote KeySetFetcher, audience string, leeway time.Duration,
) *ClientAuthenticator {
	if leeway <= 0 {
		leeway = DefaultAssertionLeeway
	}
	return &ClientAuthenticator{
		clients:  clients,
		jtis:     jtis,
		remote:   remote,
		audience: audience,
		leeway:   leeway,
		now:      time.Now,
	}
}

// Authenticate returns the client identified and proven by creds. Any
// failure is reported as invalid_client.
func (a *ClientAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*storage.Client, error) {
	if creds.Assertion != "" {
		return a.authenticateAssertion(ctx, creds)
	}
	if creds.ClientID == "" {
		return nil, fosite.ErrInvalidClient.WithHint("Client authentication is required.")
	}

	client, err := a.loadClient(ctx, creds.ClientID)
	if err != nil {
		return nil, err
	}

	method := registration.AuthMethodNone
	switch {
	case creds.Basic:
		method = registration.AuthMethodClientSecretBasic
	case creds.ClientSecret != "":
		method = registration.AuthMethodClientSecretPost
	}
	if method != client.TokenEndpointAuthMethod {
		logger.Debugw("client authentication method mismatch",
			"client_id", client.ID, "used", method, "registered", client.TokenEndpointAuthMethod)
		return nil, fosite.ErrInvalidClient.WithHintf("The client must authenticate with %s.", client.TokenEndpointAuthMethod)
	}
	if method == registration.AuthMethodNone {
		return client, nil
	}

	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(creds.ClientSecret)) != 1 {
		return nil, fosite.ErrInvalidClient
	}
	if client.IsSecretExpired(a.now()) {
		return nil, fosite.ErrInvalidClient.WithHint("The client secret has expired.")
	}
	return client, nil
}

func (a *ClientAuthenticator) loadClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := a.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fosite.ErrInvalidClient
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

// authenticateAssertion handles client_secret_jwt and private_key_jwt.
func (a *ClientAuthenticator) authenticateAssertion(ctx context.Context, creds Credentials) (*storage.Client, error) {
	if creds.AssertionType != ClientAssertionType {
		return nil, fosite.ErrInvalidClient.WithHint("Unsupported client_assertion_type.")
	}

	var unverified jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(creds.Assertion, &unverified); err != nil {
		return nil, fosite.ErrInvalidClient.WithHint("The client assertion is malformed.")
	}
	clientID := unverified.Subject
	if clientID == "" || (creds.ClientID != "" && creds.ClientID != clientID) {
		return nil, fosite.ErrInvalidClient.WithHint("The client assertion subject does not match client_id.")
	}

	client, err := a.loadClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.TokenEndpointAuthMethod != registration.AuthMethodClientSecretJWT &&
		client.TokenEndpointAuthMethod != registration.AuthMethodPrivateKeyJWT {
		return nil, fosite.ErrInvalidClient.WithHintf("The client must authenticate with %s.", client.TokenEndpointAuthMethod)
	}

	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods(jws.SupportedAlgorithms),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(client.ID),
		jwt.WithSubject(client.ID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	)
	if _, err := parser.ParseWithClaims(creds.Assertion, &claims, a.keyFunc(ctx, client)); err != nil {
		logger.Debugw("client assertion rejected", "client_id", client.ID, "error", err)
		return nil, fosite.ErrInvalidClient.WithHint("The client assertion is invalid.")
	}

	if claims.ID == "" {
		return nil, fosite.ErrInvalidClient.WithHint("The client assertion must carry a jti.")
	}
	if err := a.jtis.MarkJTIUsed(ctx, client.ID+":"+claims.ID, claims.ExpiresAt.Add(a.leeway)); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fosite.ErrInvalidClient.WithHint("The client assertion has already been used.")
		}
		return nil, fmt.Errorf("failed to record assertion: %w", err)
	}
	return client, nil
}

func (a *ClientAuthenticator) keyFunc(ctx context.Context, client *storage.Client) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		if jws.IsHMAC(alg) {
			if client.TokenEndpointAuthMethod != registration.AuthMethodClientSecretJWT {
				return nil, errors.New("client_secret_jwt not registered")
			}
			if client.IsSecretExpired(a.now()) {
				return nil, errors.New("client secret expired")
			}
			return []byte(client.Secret), nil
		}
		if client.TokenEndpointAuthMethod != registration.AuthMethodPrivateKeyJWT {
			return nil, errors.New("private_key_jwt not registered")
		}

		keySet, err := ClientKeySet(ctx, client, a.remote)
		if err != nil {
			return nil, err
		}
		kid, _ := t.Header["kid"].(string)
		candidates := keySet.Keys
		if kid != "" {
			candidates = keySet.Key(kid)
		}
		for _, k := range candidates {
			if (k.Use == "" || k.Use == "sig") && publicKeyFits(alg, k.Key) {
				return k.Key, nil
			}
		}
		return nil, errors.New("no matching client key")
	}
}

func publicKeyFits(alg string, key any) bool {
	switch key.(type) {
	case *rsa.PublicKey:
		return keys.Family(alg) == "RSA"
	case *ecdsa.PublicKey:
		return strings.HasPrefix(alg, "ES")
	default:
		return false
	}
}

// ClientKeySet returns the client's registered keys, fetching jwks_uri when
// no inline set is registered.
func ClientKeySet(ctx context.Context, client *storage.Client, remote KeySetFetcher) (*jose.JSONWebKeySet, error) {
	if len(client.JWKS) > 0 {
		return jws.ParseKeySet(client.JWKS)
	}
	if client.JWKSURI == "" {
		return nil, errors.New("client has no registered keys")
	}
	if remote == nil {
		return nil, errors.New("remote key sets are not configured")
	}
	return remote.Fetch(ctx, client.JWKSURI)
}
