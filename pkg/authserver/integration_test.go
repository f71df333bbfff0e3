// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/stacklok/oxauth/pkg/authserver/server/handlers"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
)

const rpCallback = "https://rp.example.com/callback"

// startProvider serves a provider on a loopback listener so the issuer is
// the listener URL.
func startProvider(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewUnstartedServer(nil)
	ts.Start()
	t.Cleanup(ts.Close)

	srv, err := New(context.Background(), Config{
		Issuer:       ts.URL,
		PairwiseSalt: "integration-test-salt",
		Users: []users.StaticUser{{
			Subject:  "user-1",
			Username: "alice",
			Password: "wonderland",
			Claims:   map[string]any{"email": "alice@example.com", "email_verified": true, "name": "Alice"},
		}},
		BcryptCost: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts.Config.Handler = srv.Handler()
	return ts
}

func registerRP(t *testing.T, issuer string) (clientID, secret string) {
	t.Helper()
	body := `{"redirect_uris":["` + rpCallback + `"],"client_name":"go-oidc RP","scope":"openid email profile",` +
		`"grant_types":["authorization_code","refresh_token"]}`
	resp, err := http.Post(issuer+handlers.PathRegister, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.ClientID, out.ClientSecret
}

// authorizeAs follows the authorization endpoint as a browser logged in
// with Basic credentials and returns the redirect back to the RP.
func authorizeAs(t *testing.T, authURL, username, password string) *url.URL {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	req, err := http.NewRequest(http.MethodGet, authURL, nil)
	require.NoError(t, err)
	req.SetBasicAuth(username, password)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestRelyingPartyCodeFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := startProvider(t)

	provider, err := oidc.NewProvider(ctx, ts.URL)
	require.NoError(t, err, "discovery must be accepted by a standard RP")

	clientID, secret := registerRP(t, ts.URL)
	conf := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  rpCallback,
		Scopes:       []string{oidc.ScopeOpenID, "email"},
	}

	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL("st-1", oidc.Nonce("nonce-1"), oauth2.S256ChallengeOption(verifier))
	loc := authorizeAs(t, authURL, "alice", "wonderland")
	require.Equal(t, "st-1", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code, loc.String())

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	assert.NotEmpty(t, tok.RefreshToken)

	rawIDToken, ok := tok.Extra("id_token").(string)
	require.True(t, ok, "token response must carry an id_token")

	idToken, err := provider.Verifier(&oidc.Config{ClientID: clientID}).Verify(ctx, rawIDToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", idToken.Subject)
	assert.Equal(t, "nonce-1", idToken.Nonce)
	require.NoError(t, idToken.VerifyAccessToken(tok.AccessToken))

	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.Subject)
	assert.Equal(t, "alice@example.com", info.Email)
	assert.True(t, info.EmailVerified)

	var claims map[string]any
	require.NoError(t, info.Claims(&claims))
	assert.NotContains(t, claims, "name", "profile scope was not requested")

	// Refresh through the standard token source.
	expired := *tok
	expired.Expiry = time.Now().Add(-time.Hour)
	refreshed, err := conf.TokenSource(ctx, &expired).Token()
	require.NoError(t, err)
	assert.NotEqual(t, tok.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, tok.RefreshToken, refreshed.RefreshToken, "refresh tokens rotate")
}

func TestRelyingPartyCodeFlow_WrongVerifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := startProvider(t)

	provider, err := oidc.NewProvider(ctx, ts.URL)
	require.NoError(t, err)
	clientID, secret := registerRP(t, ts.URL)
	conf := oauth2.Config{
		ClientID: clientID, ClientSecret: secret, Endpoint: provider.Endpoint(),
		RedirectURL: rpCallback, Scopes: []string{oidc.ScopeOpenID},
	}

	loc := authorizeAs(t, conf.AuthCodeURL("s", oauth2.S256ChallengeOption(oauth2.GenerateVerifier())), "alice", "wonderland")
	_, err = conf.Exchange(ctx, loc.Query().Get("code"), oauth2.VerifierOption(oauth2.GenerateVerifier()))
	var rerr *oauth2.RetrieveError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "invalid_grant", rerr.ErrorCode)
}
