// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/crypto"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// ScopeOpenID marks a request as OpenID Connect.
const ScopeOpenID = "openid"

// ExchangeTokenResponse is returned when an access token is traded for an
// exchange token.
type ExchangeTokenResponse struct {
	ExchangeToken string `json:"oxauth_exchange_token"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int64  `json:"expires_in"`
}

// Issuer implements the token endpoint.
type Issuer struct {
	minter   *Minter
	store    storage.GrantStore
	users    users.Repository
	auth     *ClientAuthenticator
	handlers map[string]GrantHandler
	now      func() time.Time
}

// NewIssuer creates an Issuer with the built-in grants. The password grant is
// only served when repo is non-nil.
func NewIssuer(minter *Minter, store storage.GrantStore, repo users.Repository, auth *ClientAuthenticator) *Issuer {
	i := &Issuer{
		minter: minter,
		store:  store,
		users:  repo,
		auth:   auth,
		now:    time.Now,
	}
	i.handlers = map[string]GrantHandler{
		registration.GrantAuthorizationCode: i.authorizationCode,
		registration.GrantClientCredentials: i.clientCredentials,
		registration.GrantRefreshToken:      i.refreshToken,
		registration.GrantExchangeToken:     i.exchangeToken,
	}
	if repo != nil {
		i.handlers[registration.GrantPassword] = i.password
	}
	return i
}

// Register adds or replaces the handler for grantType.
func (i *Issuer) Register(grantType string, h GrantHandler) {
	i.handlers[grantType] = h
}

// Authenticator returns the client authenticator shared with the other
// client-authenticated endpoints.
func (i *Issuer) Authenticator() *ClientAuthenticator {
	return i.auth
}

// Minter returns the minter used for issued tokens.
func (i *Issuer) Minter() *Minter {
	return i.minter
}

// Exchange authenticates the client and redeems the grant in req.
func (i *Issuer) Exchange(ctx context.Context, req *Request) (*Response, error) {
	client, err := i.auth.Authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	if req.GrantType == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The grant_type parameter is missing.")
	}
	handler, ok := i.handlers[req.GrantType]
	if !ok {
		return nil, oautherr.ErrUnsupportedGrantType.WithHintf("The grant type %q is not supported.", req.GrantType)
	}
	if !client.HasGrantType(req.GrantType) {
		return nil, fosite.ErrUnauthorizedClient.WithHintf("The client is not allowed to use grant type %q.", req.GrantType)
	}

	resp, err := handler(ctx, client, req)
	if err != nil {
		logger.Debugw("token request rejected", "client_id", client.ID, "grant_type", req.GrantType, "error", err)
		return nil, err
	}
	echoCustomAttributes(client, resp)
	logger.Debugw("token issued", "client_id", client.ID, "grant_type", req.GrantType)
	return resp, nil
}

func echoCustomAttributes(client *storage.Client, resp *Response) {
	if !client.EchoCustomAttributes || len(client.CustomAttributes) == 0 {
		return
	}
	if resp.Extra == nil {
		resp.Extra = make(map[string]any, len(client.CustomAttributes))
	}
	for k, v := range client.CustomAttributes {
		resp.Extra[k] = v
	}
}

func (i *Issuer) authorizationCode(ctx context.Context, client *storage.Client, req *Request) (*Response, error) {
	value := req.Form.Get("code")
	if value == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The code parameter is missing.")
	}

	code, err := i.store.ConsumeAuthorizationCode(ctx, Signature(value))
	switch {
	case errors.Is(err, storage.ErrAlreadyUsed):
		logger.Warnw("authorization code reused, revoking grant", "client_id", client.ID)
		if revokeErr := i.store.RevokeGrant(ctx, code.GrantID); revokeErr != nil {
			logger.Errorw("failed to revoke grant", "client_id", client.ID, "error", revokeErr)
		}
		return nil, fosite.ErrInvalidGrant.WithHint("The authorization code has already been used.")
	case errors.Is(err, storage.ErrNotFound):
		return nil, fosite.ErrInvalidGrant.WithHint("The authorization code is unknown or expired.")
	case err != nil:
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	if code.ClientID != client.ID {
		return nil, fosite.ErrInvalidGrant.WithHint("The authorization code was issued to another client.")
	}
	if !code.ExpiresAt.IsZero() && i.now().After(code.ExpiresAt) {
		return nil, fosite.ErrInvalidGrant.WithHint("The authorization code has expired.")
	}
	if req.Form.Get("redirect_uri") != code.RedirectURI {
		return nil, fosite.ErrInvalidGrant.WithHint("The redirect_uri does not match the authorization request.")
	}
	if err := checkPKCE(code, req.Form.Get("code_verifier")); err != nil {
		return nil, err
	}

	tmpl := storage.Token{
		GrantID:   code.GrantID,
		ClientID:  client.ID,
		Subject:   code.Subject,
		Scopes:    code.Scopes,
		GrantType: registration.GrantAuthorizationCode,
		SessionID: code.SessionID,
		AuthTime:  code.AuthTime,
	}
	return i.issue(ctx, client, tmpl, true, IDTokenParams{
		Subject:   code.Subject,
		Nonce:     code.Nonce,
		AuthTime:  code.AuthTime,
		ACR:       code.ACR,
		SessionID: code.SessionID,
	})
}

func checkPKCE(code *storage.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		if verifier != "" {
			return fosite.ErrInvalidGrant.WithHint("A code_verifier was sent but no code_challenge was registered.")
		}
		return nil
	}
	if verifier == "" {
		return fosite.ErrInvalidGrant.WithHint("The code_verifier parameter is required.")
	}
	if !crypto.VerifyPKCE(code.CodeChallengeMethod, code.CodeChallenge, verifier) {
		return fosite.ErrInvalidGrant.WithHint("The code_verifier does not match the code_challenge.")
	}
	return nil
}

func (i *Issuer) password(ctx context.Context, client *storage.Client, req *Request) (*Response, error) {
	username, password := req.Form.Get("username"), req.Form.Get("password")
	if username == "" || password == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The username and password parameters are required.")
	}
	user, err := i.users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return nil, fosite.ErrInvalidGrant.WithHint("The resource owner credentials are invalid.")
		}
		return nil, fmt.Errorf("failed to authenticate resource owner: %w", err)
	}

	now := i.now()
	tmpl := storage.Token{
		GrantID:   NewGrantID(),
		ClientID:  client.ID,
		Subject:   user.Subject,
		Scopes:    GrantedScopes(client, req.Form.Get("scope")),
		GrantType: registration.GrantPassword,
		AuthTime:  now,
	}
	return i.issue(ctx, client, tmpl, true, IDTokenParams{Subject: user.Subject, AuthTime: now})
}

func (i *Issuer) clientCredentials(ctx context.Context, client *storage.Client, req *Request) (*Response, error) {
	tmpl := storage.Token{
		GrantID:   NewGrantID(),
		ClientID:  client.ID,
		Scopes:    GrantedScopes(client, req.Form.Get("scope")),
		GrantType: registration.GrantClientCredentials,
	}
	value, tok, err := i.minter.MintAccessToken(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	return i.bearer(value, tok), nil
}

func (i *Issuer) refreshToken(ctx context.Context, client *storage.Client, req *Request) (*Response, error) {
	value := req.Form.Get("refresh_token")
	if value == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The refresh_token parameter is missing.")
	}

	sig := Signature(value)
	current, err := i.store.GetToken(ctx, sig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fosite.ErrInvalidGrant.WithHint("The refresh token is unknown or expired.")
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if current.Kind != storage.TokenKindRefresh || current.ClientID != client.ID {
		return nil, fosite.ErrInvalidGrant.WithHint("The refresh token was not issued to this client.")
	}

	scopes := current.Scopes
	if requested := req.Form.Get("scope"); requested != "" {
		scopes = intersect(strings.Fields(requested), current.Scopes)
	}

	// Consume after the ownership check so another client cannot burn the token.
	current, err = i.store.ConsumeToken(ctx, sig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fosite.ErrInvalidGrant.WithHint("The refresh token has already been used.")
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	tmpl := *current
	tmpl.Scopes = scopes
	return i.issue(ctx, client, tmpl, true, IDTokenParams{
		Subject:   current.Subject,
		AuthTime:  current.AuthTime,
		SessionID: current.SessionID,
	})
}

func (i *Issuer) exchangeToken(ctx context.Context, client *storage.Client, req *Request) (*Response, error) {
	value := req.Form.Get(registration.GrantExchangeToken)
	if value == "" {
		return nil, fosite.ErrInvalidRequest.WithHintf("The %s parameter is missing.", registration.GrantExchangeToken)
	}
	exchange, err := i.store.GetToken(ctx, Signature(value))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fosite.ErrInvalidGrant.WithHint("The exchange token is unknown or expired.")
		}
		return nil, fmt.Errorf("failed to load exchange token: %w", err)
	}
	if exchange.Kind != storage.TokenKindExchange || exchange.ClientID != client.ID {
		return nil, fosite.ErrInvalidGrant.WithHint("The exchange token was not issued to this client.")
	}

	tmpl := *exchange
	tmpl.GrantType = registration.GrantExchangeToken
	value, tok, err := i.minter.MintToken(ctx, storage.TokenKindAccess, tmpl, i.minter.cfg.ExchangeAccessTokenLifetime)
	if err != nil {
		return nil, err
	}
	return i.bearer(value, tok), nil
}

// issue mints an access token, optionally a refresh token, and an ID token
// when the openid scope was granted.
func (i *Issuer) issue(
	ctx context.Context, client *storage.Client, tmpl storage.Token, withRefresh bool, id IDTokenParams,
) (*Response, error) {
	access, tok, err := i.minter.MintAccessToken(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	resp := i.bearer(access, tok)

	if withRefresh {
		if resp.RefreshToken, err = i.minter.MintRefreshToken(ctx, tmpl); err != nil {
			return nil, err
		}
	}

	if slices.Contains(tmpl.Scopes, ScopeOpenID) && tmpl.Subject != "" {
		id.AccessToken = access
		if resp.IDToken, err = i.minter.MintIDToken(ctx, client, id); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (i *Issuer) bearer(value string, tok *storage.Token) *Response {
	return &Response{
		AccessToken: value,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()),
		Scope:       strings.Join(tok.Scopes, " "),
	}
}

// IssueExchangeToken trades a live access token of client for a long-lived
// exchange token.
func (i *Issuer) IssueExchangeToken(ctx context.Context, client *storage.Client, accessToken string) (*ExchangeTokenResponse, error) {
	if accessToken == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The access_token parameter is missing.")
	}
	access, err := i.store.GetToken(ctx, Signature(accessToken))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fosite.ErrInvalidGrant.WithHint("The access token is unknown or expired.")
		}
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if access.Kind != storage.TokenKindAccess || access.ClientID != client.ID {
		return nil, fosite.ErrInvalidGrant.WithHint("The access token was not issued to this client.")
	}

	value, tok, err := i.minter.MintToken(ctx, storage.TokenKindExchange, *access, i.minter.cfg.ExchangeTokenLifetime)
	if err != nil {
		return nil, err
	}
	return &ExchangeTokenResponse{
		ExchangeToken: value,
		TokenType:     TokenTypeBearer,
		ExpiresIn:     int64(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()),
	}, nil
}

// ValidateToken reports whether value is a live bearer token.
func (i *Issuer) ValidateToken(ctx context.Context, value string) (*ValidationResult, error) {
	if value == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The access_token parameter is missing.")
	}
	tok, err := i.store.GetToken(ctx, Signature(value))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &ValidationResult{}, nil
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if tok.Kind == storage.TokenKindRefresh {
		return &ValidationResult{}, nil
	}
	remaining := int64(tok.ExpiresAt.Sub(i.now()).Seconds())
	if remaining <= 0 {
		return &ValidationResult{}, nil
	}
	return &ValidationResult{Valid: true, ExpiresIn: remaining}, nil
}

// Revoke revokes an access or refresh token owned by client. Unknown tokens
// and tokens of other clients are ignored. Revoking a refresh token revokes
// its whole grant.
func (i *Issuer) Revoke(ctx context.Context, client *storage.Client, value string) error {
	if value == "" {
		return fosite.ErrInvalidRequest.WithHint("The token parameter is missing.")
	}
	sig := Signature(value)
	tok, err := i.store.GetToken(ctx, sig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load token: %w", err)
	}
	if tok.ClientID != client.ID {
		logger.Debugw("ignoring revocation of foreign token", "client_id", client.ID)
		return nil
	}

	if tok.Kind == storage.TokenKindRefresh {
		err = i.store.RevokeGrant(ctx, tok.GrantID)
	} else {
		err = i.store.DeleteToken(ctx, sig)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// GrantedScopes returns the requested scopes the client may use. Unknown
// scopes are dropped. An empty request grants all client scopes.
func GrantedScopes(client *storage.Client, requested string) []string {
	if strings.TrimSpace(requested) == "" {
		return slices.Clone(client.Scopes)
	}
	return intersect(strings.Fields(requested), client.Scopes)
}

func intersect(requested, allowed []string) []string {
	out := make([]string, 0, len(requested))
	for _, s := range fosite.RemoveEmpty(requested) {
		if slices.Contains(allowed, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
