// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authorize

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"pgregory.net/rapid"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/keys"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/session"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

const (
	testIssuer   = "https://op.example.com"
	testRedirect = "https://rp.example.com/cb"
	testSecret   = "request-object-secret-0123456789abcdef"
)

type fixture struct {
	store  *storage.MemoryStorage
	jwt    *jws.Engine
	engine *Engine
	client *storage.Client
}

type staticTrust bool

func (s staticTrust) HasActiveTrust(context.Context, *storage.Client) (bool, error) {
	return bool(s), nil
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	engine := jws.NewEngine(keys.NewGeneratingProvider(keys.DefaultAlgorithm))
	minter, err := token.NewMinter(store, engine, token.Config{Issuer: testIssuer, TokenEndpoint: testIssuer + "/token"})
	require.NoError(t, err)
	repo, err := users.NewStaticRepository([]users.StaticUser{
		{Subject: "user-1", Username: "alice", Password: "wonderland"},
	}, 4)
	require.NoError(t, err)
	sessions := session.NewManager(store, store, engine, nil, session.Config{Issuer: testIssuer})

	client := &storage.Client{
		ID:              "client-1",
		Secret:          testSecret,
		ApplicationType: registration.ApplicationTypeWeb,
		RedirectURIs:    []string{testRedirect},
		ResponseTypes:   []string{"code", "id_token token", "code id_token"},
		GrantTypes: []string{
			registration.GrantAuthorizationCode, registration.GrantImplicit, registration.GrantRefreshToken,
		},
		Scopes: []string{"openid", "profile", "email"},
	}
	require.NoError(t, store.CreateClient(context.Background(), client))

	return &fixture{
		store:  store,
		jwt:    engine,
		engine: NewEngine(store, store, repo, sessions, minter, Config{}, opts...),
		client: client,
	}
}

func codeRequest() *Request {
	return &Request{
		ClientID:     "client-1",
		RedirectURI:  testRedirect,
		ResponseType: "code",
		Scope:        "openid profile admin",
		State:        "af0ifjsldkj",
		Nonce:        "n-0S6",
		Username:     "alice",
		Password:     "wonderland",
	}
}

func redirectParams(t *testing.T, res *Result) url.Values {
	t.Helper()
	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "rp.example.com", u.Host)
	if res.Mode == ResponseModeFragment {
		assert.Empty(t, u.RawQuery)
		v, err := url.ParseQuery(u.Fragment)
		require.NoError(t, err)
		return v
	}
	assert.Empty(t, u.Fragment)
	return u.Query()
}

func requireRedirectError(t *testing.T, res *Result, err error, code string) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)
	params := redirectParams(t, res)
	assert.Equal(t, code, params.Get("error"), "description: %s", params.Get("error_description"))
}

func TestAuthorize_CodeFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	verifier := oauth2.GenerateVerifier()
	req := codeRequest()
	req.CodeChallenge = oauth2.S256ChallengeFromVerifier(verifier)
	req.CodeChallengeMethod = "S256"

	res, err := f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.Equal(t, StateRedirected, res.State)
	assert.Equal(t, ResponseModeQuery, res.Mode)

	params := redirectParams(t, res)
	assert.NotEmpty(t, params.Get("code"))
	assert.Equal(t, "af0ifjsldkj", params.Get("state"))
	assert.Equal(t, "openid profile", params.Get("scope"), "unknown scopes are dropped")
	assert.Equal(t, res.SessionID, params.Get("session_id"))
	assert.Empty(t, params.Get("access_token"))

	code, err := f.store.ConsumeAuthorizationCode(ctx, token.Signature(params.Get("code")))
	require.NoError(t, err)
	assert.Equal(t, "user-1", code.Subject)
	assert.Equal(t, testRedirect, code.RedirectURI)
	assert.Equal(t, "n-0S6", code.Nonce)
	assert.Equal(t, res.SessionID, code.SessionID)
	assert.Equal(t, req.CodeChallenge, code.CodeChallenge)

	sess, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1"}, sess.ClientIDs)
}

func TestAuthorize_ImplicitFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	req := codeRequest()
	req.ResponseType = "token id_token"

	res, err := f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ResponseModeFragment, res.Mode)

	params := redirectParams(t, res)
	assert.NotEmpty(t, params.Get("access_token"))
	assert.Equal(t, token.TokenTypeBearer, params.Get("token_type"))
	assert.Equal(t, "3600", params.Get("expires_in"))
	assert.Equal(t, "af0ifjsldkj", params.Get("state"))

	keySet, err := f.jwt.PublicKeySet(ctx)
	require.NoError(t, err)
	claims, err := f.jwt.Verify(ctx, params.Get("id_token"), jws.VerifyOptions{KeySet: keySet})
	require.NoError(t, err)
	assert.Equal(t, "n-0S6", claims.String("nonce"))
	assert.Equal(t, res.SessionID, claims.String("sid"))
	atHash, err := jws.Hash("RS256", params.Get("access_token"))
	require.NoError(t, err)
	assert.Equal(t, atHash, claims.String("at_hash"))
	assert.Empty(t, claims.String("c_hash"))
}

func TestAuthorize_HybridFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	req := codeRequest()
	req.ResponseType = "code id_token"

	res, err := f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ResponseModeFragment, res.Mode)
	params := redirectParams(t, res)

	claims, err := f.jwt.Verify(ctx, params.Get("id_token"), jws.VerifyOptions{})
	require.NoError(t, err)
	cHash, err := jws.Hash("RS256", params.Get("code"))
	require.NoError(t, err)
	assert.Equal(t, cHash, claims.String("c_hash"))
}

func TestAuthorize_ResponseTypeRegistration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		registered []string
		requested  string
		wantErr    string
	}{
		{name: "exact combination", registered: []string{"code id_token"}, requested: "code id_token"},
		{name: "combination from separate values", registered: []string{"code", "token", "id_token"}, requested: "code id_token"},
		{name: "all three from separate values", registered: []string{"code", "token", "id_token"}, requested: "code id_token token"},
		{name: "component not registered", registered: []string{"code"}, requested: "token", wantErr: "unsupported_response_type"},
		{name: "partial union", registered: []string{"code", "id_token"}, requested: "code token", wantErr: "unsupported_response_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			f.client.ResponseTypes = tt.registered
			require.NoError(t, f.store.UpdateClient(ctx, f.client))

			req := codeRequest()
			req.ResponseType = tt.requested
			res, err := f.engine.Authorize(ctx, req)
			if tt.wantErr != "" {
				requireRedirectError(t, res, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateRedirected, res.State)
		})
	}
}

// A client registering code, token and id_token as separate values can ask
// for "code id_token" with prompt=none and Basic credentials.
func TestAuthorize_PromptNoneHybridWithSeparateTypes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.client.ResponseTypes = []string{"code", "token", "id_token"}
	require.NoError(t, f.store.UpdateClient(ctx, f.client))

	req := codeRequest()
	req.ResponseType = "code id_token"
	req.Prompt = PromptNone

	res, err := f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ResponseModeFragment, res.Mode)
	params := redirectParams(t, res)
	assert.Empty(t, params.Get("error"))
	assert.NotEmpty(t, params.Get("code"))
	assert.NotEmpty(t, params.Get("id_token"))
	assert.Equal(t, "af0ifjsldkj", params.Get("state"))
}

func TestAuthorize_DirectErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Request)
		want   *fosite.RFC6749Error
	}{
		{name: "missing client", mutate: func(r *Request) { r.ClientID = "" }, want: fosite.ErrInvalidRequest},
		{name: "unknown client", mutate: func(r *Request) { r.ClientID = "ghost" }, want: fosite.ErrInvalidRequest},
		{
			name:   "unregistered redirect uri",
			mutate: func(r *Request) { r.RedirectURI = "https://rp.example.com/cb/extra" },
			want:   oautherr.ErrInvalidRequestRedirectURI,
		},
		{name: "missing redirect uri", mutate: func(r *Request) { r.RedirectURI = "" }, want: oautherr.ErrInvalidRequestRedirectURI},
		{name: "malformed request object", mutate: func(r *Request) { r.Request = "not-a-jwt" }, want: oautherr.ErrInvalidRequestObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			req := codeRequest()
			tt.mutate(req)

			res, err := f.engine.Authorize(context.Background(), req)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.Equal(t, tt.want.ErrorField, oautherr.From(err).ErrorField)
		})
	}
}

func TestAuthorize_RedirectErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Request)
		want   string
	}{
		{name: "no authentication", mutate: func(r *Request) { r.Username = "" }, want: "login_required"},
		{name: "prompt none without session", mutate: func(r *Request) {
			r.Username = ""
			r.Prompt = "none"
		}, want: "login_required"},
		{name: "bad credentials", mutate: func(r *Request) { r.Password = "nope" }, want: "access_denied"},
		{name: "missing response type", mutate: func(r *Request) { r.ResponseType = "" }, want: "invalid_request"},
		{name: "id_token without openid", mutate: func(r *Request) {
			r.ResponseType = "id_token token"
			r.Scope = "profile"
		}, want: "invalid_scope"},
		{name: "implicit without nonce", mutate: func(r *Request) {
			r.ResponseType = "id_token token"
			r.Nonce = ""
		}, want: "invalid_request"},
		{name: "prompt none with login", mutate: func(r *Request) { r.Prompt = "none login" }, want: "invalid_request"},
		{name: "bad pkce method", mutate: func(r *Request) {
			r.CodeChallenge = "abc"
			r.CodeChallengeMethod = "S512"
		}, want: "invalid_request"},
		{name: "pkce method without challenge", mutate: func(r *Request) { r.CodeChallengeMethod = "S256" }, want: "invalid_request"},
		{name: "bad response mode", mutate: func(r *Request) { r.ResponseMode = "form_post" }, want: "invalid_request"},
		{name: "query mode with tokens", mutate: func(r *Request) {
			r.ResponseType = "id_token token"
			r.ResponseMode = ResponseModeQuery
		}, want: "invalid_request"},
		{name: "max_age zero", mutate: func(r *Request) {
			r.Username = ""
			r.MaxAge = "0"
			r.SessionID = "old-session"
		}, want: "login_required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			require.NoError(t, f.store.CreateSession(context.Background(), &storage.Session{
				ID:        "old-session",
				Subject:   "user-1",
				AuthTime:  time.Now().Add(-time.Hour),
				ExpiresAt: time.Now().Add(time.Hour),
			}))
			req := codeRequest()
			tt.mutate(req)

			res, err := f.engine.Authorize(context.Background(), req)
			requireRedirectError(t, res, err, tt.want)
			assert.Equal(t, "af0ifjsldkj", redirectParams(t, res).Get("state"))
		})
	}
}

func TestAuthorize_SessionReuse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Authorize(ctx, codeRequest())
	require.NoError(t, err)
	require.NoError(t, first.Error)

	req := codeRequest()
	req.Username, req.Password = "", ""
	req.SessionID = first.SessionID
	req.Prompt = "none"
	second, err := f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.NoError(t, second.Error)
	assert.Equal(t, first.SessionID, second.SessionID)

	req.Prompt = "login"
	forced, err := f.engine.Authorize(ctx, req)
	requireRedirectError(t, forced, err, "login_required")

	_, err = f.store.GetSession(ctx, first.SessionID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "prompt=login drops the session")
}

func TestAuthorize_DefaultMaxAge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.client.DefaultMaxAge = 60
	require.NoError(t, f.store.UpdateClient(ctx, f.client))
	require.NoError(t, f.store.CreateSession(ctx, &storage.Session{
		ID: "stale", Subject: "user-1", AuthTime: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}))

	req := codeRequest()
	req.Username = ""
	req.SessionID = "stale"
	res, err := f.engine.Authorize(ctx, req)
	requireRedirectError(t, res, err, "login_required")

	req.MaxAge = "7200"
	res, err = f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.NoError(t, res.Error, "an explicit max_age overrides the client default")
}

func TestAuthorize_AccessTokenAuthentication(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first := codeRequest()
	first.ResponseType = "id_token token"
	res, err := f.engine.Authorize(ctx, first)
	require.NoError(t, err)
	access := redirectParams(t, res).Get("access_token")
	require.NotEmpty(t, access)

	req := codeRequest()
	req.Username = ""
	req.AccessToken = access
	res, err = f.engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.NotEmpty(t, redirectParams(t, res).Get("code"))
}

func TestAuthorize_ExplicitResponseMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := codeRequest()
	req.ResponseMode = ResponseModeFragment

	res, err := f.engine.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ResponseModeFragment, res.Mode)
	assert.NotEmpty(t, redirectParams(t, res).Get("code"))
}

func TestResponseMode_QueryRejectsTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		types   fosite.Arguments
		wantErr bool
	}{
		{types: fosite.Arguments{"code"}},
		{types: fosite.Arguments{"token"}, wantErr: true},
		{types: fosite.Arguments{"id_token"}, wantErr: true},
		{types: fosite.Arguments{"code", "id_token"}, wantErr: true},
	}
	for _, tt := range tests {
		mode, err := ResponseMode(tt.types, ResponseModeQuery)
		if tt.wantErr {
			assert.ErrorIs(t, err, fosite.ErrInvalidRequest, tt.types)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, ResponseModeQuery, mode)
	}
}

// recordingGrants remembers the authorization codes it stores.
type recordingGrants struct {
	*storage.MemoryStorage

	mu    sync.Mutex
	codes []string
}

func (r *recordingGrants) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	r.mu.Lock()
	r.codes = append(r.codes, code.Signature)
	r.mu.Unlock()
	return r.MemoryStorage.CreateAuthorizationCode(ctx, code)
}

func TestAuthorize_FailedIDTokenDiscardsCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	grants := &recordingGrants{MemoryStorage: f.store}
	minter, err := token.NewMinter(grants, f.jwt, token.Config{Issuer: testIssuer, TokenEndpoint: testIssuer + "/token"})
	require.NoError(t, err)
	engine := NewEngine(f.store, grants, f.engine.users, f.engine.sessions, minter, Config{})

	// An HMAC-signed ID token cannot be produced without a client secret.
	f.client.IDTokenSignedAlg = "HS256"
	f.client.Secret = ""
	require.NoError(t, f.store.UpdateClient(ctx, f.client))

	req := codeRequest()
	req.ResponseType = "code id_token"
	res, err := engine.Authorize(ctx, req)
	if err == nil {
		assert.Equal(t, StateFailed, res.State)
		assert.Empty(t, redirectParams(t, res).Get("code"))
	}

	require.Len(t, grants.codes, 1)
	_, err = f.store.ConsumeAuthorizationCode(ctx, grants.codes[0])
	assert.ErrorIs(t, err, storage.ErrAlreadyUsed)
}

func TestAuthorize_Federation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithTrustChecker(staticTrust(false)))
	_, err := f.engine.Authorize(context.Background(), codeRequest())
	require.Error(t, err)
	assert.Equal(t, 401, oautherr.Status(err))
	assert.Equal(t, "unauthorized_client", oautherr.From(err).ErrorField)

	f = newFixture(t, WithTrustChecker(staticTrust(true)))
	res, err := f.engine.Authorize(context.Background(), codeRequest())
	require.NoError(t, err)
	assert.NoError(t, res.Error)
}

func clientSignedRequestObject(t *testing.T, method jwt.SigningMethod, key any, kid string, req *Request) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.MapClaims{
		"iss": req.ClientID, "aud": testIssuer, "state": req.State, "nonce": req.Nonce,
	})
	tok.Header["kid"] = kid
	obj, err := tok.SignedString(key)
	require.NoError(t, err)
	return obj
}

func clientJWKS(t *testing.T, key any, kid, alg string) []byte {
	t.Helper()
	raw, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: key, KeyID: kid, Algorithm: alg, Use: "sig"},
	}})
	require.NoError(t, err)
	return raw
}

func TestAuthorize_AsymmetricRequestObject(t *testing.T) {
	t.Parallel()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  jwt.SigningMethod
		signKey any
		jwks    []byte
		wantErr bool
	}{
		{name: "RS256", method: jwt.SigningMethodRS256, signKey: rsaKey, jwks: clientJWKS(t, &rsaKey.PublicKey, "k1", "RS256")},
		{name: "PS256", method: jwt.SigningMethodPS256, signKey: rsaKey, jwks: clientJWKS(t, &rsaKey.PublicKey, "k1", "PS256")},
		{name: "ES256", method: jwt.SigningMethodES256, signKey: ecKey, jwks: clientJWKS(t, &ecKey.PublicKey, "k1", "ES256")},
		{
			name: "ES256 against RSA keys", method: jwt.SigningMethodES256, signKey: ecKey,
			jwks: clientJWKS(t, &rsaKey.PublicKey, "k1", "RS256"), wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			f.client.JWKS = tt.jwks
			f.client.RequestObjectSigningAlg = tt.method.Alg()
			require.NoError(t, f.store.UpdateClient(ctx, f.client))

			req := codeRequest()
			req.Request = clientSignedRequestObject(t, tt.method, tt.signKey, "k1", req)
			res, err := f.engine.Authorize(ctx, req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "invalid_request_object", oautherr.From(err).ErrorField, "error: %v", err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, res.Error)
			assert.NotEmpty(t, redirectParams(t, res).Get("code"))
		})
	}

	t.Run("jwks_uri", func(t *testing.T) {
		t.Parallel()
		jwks := clientJWKS(t, &ecKey.PublicKey, "remote", "ES256")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(jwks)
		}))
		t.Cleanup(srv.Close)

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		remote, err := jws.NewRemoteKeySets(ctx, srv.Client(), 5*time.Second)
		require.NoError(t, err)

		f := newFixture(t, WithRemoteKeySets(remote))
		f.client.JWKSURI = srv.URL
		f.client.RequestObjectSigningAlg = "ES256"
		require.NoError(t, f.store.UpdateClient(ctx, f.client))

		req := codeRequest()
		req.Request = clientSignedRequestObject(t, jwt.SigningMethodES256, ecKey, "remote", req)
		res, err := f.engine.Authorize(ctx, req)
		require.NoError(t, err)
		require.NoError(t, res.Error)
	})
}

func signRequestObject(t *testing.T, f *fixture, claims map[string]any) string {
	t.Helper()
	obj, err := f.jwt.Sign(context.Background(), claims, jws.SignOptions{Alg: "HS256", HMACSecret: []byte(testSecret)})
	require.NoError(t, err)
	return obj
}

func unsignedRequestObject(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(payload) + "."
}

func TestAuthorize_RequestObject(t *testing.T) {
	t.Parallel()

	t.Run("claims fill in missing parameters", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := codeRequest()
		req.State = ""
		req.Request = signRequestObject(t, f, map[string]any{
			"iss": "client-1", "aud": testIssuer, "state": "from-object", "response_type": "code",
			"max_age": 3600,
		})

		res, err := f.engine.Authorize(context.Background(), req)
		require.NoError(t, err)
		require.NoError(t, res.Error)
		assert.Equal(t, "from-object", redirectParams(t, res).Get("state"))
	})

	failures := map[string]func(f *fixture, r *Request){
		"state mismatch": func(f *fixture, r *Request) {
			r.Request = signRequestObject(t, f, map[string]any{"state": "other"})
		},
		"scope mismatch": func(f *fixture, r *Request) {
			r.Request = signRequestObject(t, f, map[string]any{"scope": "openid"})
		},
		"wrong secret": func(_ *fixture, r *Request) {
			engine := jws.NewEngine(keys.NewGeneratingProvider(keys.DefaultAlgorithm))
			obj, err := engine.Sign(context.Background(), map[string]any{"state": r.State},
				jws.SignOptions{Alg: "HS256", HMACSecret: []byte("another-secret-another-secret-0000")})
			require.NoError(t, err)
			r.Request = obj
		},
		"alg differs from registration": func(f *fixture, r *Request) {
			f.client.RequestObjectSigningAlg = "HS512"
			require.NoError(t, f.store.UpdateClient(context.Background(), f.client))
			r.Request = signRequestObject(t, f, map[string]any{})
		},
		"none not registered": func(_ *fixture, r *Request) {
			r.Request = unsignedRequestObject(t, map[string]any{"state": r.State})
		},
		"foreign issuer": func(f *fixture, r *Request) {
			r.Request = signRequestObject(t, f, map[string]any{"iss": "someone"})
		},
		"foreign audience": func(f *fixture, r *Request) {
			r.Request = signRequestObject(t, f, map[string]any{"aud": "https://other.example.com"})
		},
	}
	for name, mutate := range failures {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			req := codeRequest()
			mutate(f, req)

			_, err := f.engine.Authorize(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, "invalid_request_object", oautherr.From(err).ErrorField, "error: %v", err)
		})
	}

	t.Run("none when registered", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.client.RequestObjectSigningAlg = jws.AlgNone
		require.NoError(t, f.store.UpdateClient(context.Background(), f.client))
		req := codeRequest()
		req.Request = unsignedRequestObject(t, map[string]any{"nonce": req.Nonce})

		res, err := f.engine.Authorize(context.Background(), req)
		require.NoError(t, err)
		require.NoError(t, res.Error)
	})

	t.Run("sub must match", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := codeRequest()
		req.Request = signRequestObject(t, f, map[string]any{"sub": "user-2"})

		res, err := f.engine.Authorize(context.Background(), req)
		requireRedirectError(t, res, err, "user_mismatched")
	})
}

func TestAuthorize_RequestURI(t *testing.T) {
	t.Parallel()

	var object string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(object))
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, WithHTTPClient(srv.Client()))
	object = signRequestObject(t, f, map[string]any{"state": "af0ifjsldkj"})
	sum := sha256.Sum256([]byte(object))
	hash := base64.RawURLEncoding.EncodeToString(sum[:])

	req := codeRequest()
	req.RequestURI = srv.URL + "/ro#" + hash
	res, err := f.engine.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, res.Error)

	req = codeRequest()
	req.RequestURI = srv.URL + "/ro#" + strings.Repeat("A", len(hash))
	res, err = f.engine.Authorize(context.Background(), req)
	requireRedirectError(t, res, err, "invalid_request_uri")

	req = codeRequest()
	req.RequestURI = "http://insecure.example.com/ro"
	res, err = f.engine.Authorize(context.Background(), req)
	requireRedirectError(t, res, err, "invalid_request_uri")
}

func TestAuthorize_NonProtocolErrorsAreReturned(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.engine.trust = failingTrust{}

	_, err := f.engine.Authorize(context.Background(), codeRequest())
	require.Error(t, err)
	assert.Equal(t, 500, oautherr.Status(err))
}

type failingTrust struct{}

func (failingTrust) HasActiveTrust(context.Context, *storage.Client) (bool, error) {
	return false, errors.New("backend down")
}

func TestResponseMode_Property(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		types := rapid.SliceOfDistinct(rapid.SampledFrom([]string{"code", "token", "id_token"}), rapid.ID[string]).
			Draw(t, "types")
		mode, err := ResponseMode(types, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		implicit := false
		for _, rt := range types {
			if rt != "code" {
				implicit = true
			}
		}
		if implicit != (mode == ResponseModeFragment) {
			t.Fatalf("types %v gave mode %s", types, mode)
		}
	})
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "received", StateReceived.String())
	assert.Equal(t, "redirected", StateRedirected.String())
	assert.Equal(t, "unknown", State(42).String())
}
