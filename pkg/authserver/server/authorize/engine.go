// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authorize implements the authorization endpoint: request
// validation, resource-owner authentication, and dispatch of codes, access
// tokens and ID tokens per response type.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/crypto"
	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/session"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// DefaultRequestURITimeout bounds request_uri fetches.
const DefaultRequestURITimeout = 5 * time.Second

// TrustChecker reports whether a client may use the authorization endpoint
// when federation is enabled.
type TrustChecker interface {
	HasActiveTrust(ctx context.Context, client *storage.Client) (bool, error)
}

// Config configures an Engine.
type Config struct {
	Issuer            string
	RequestURITimeout time.Duration
}

// Engine runs authorization requests.
type Engine struct {
	clients  storage.ClientStore
	grants   storage.GrantStore
	users    users.Repository
	sessions *session.Manager
	minter   *token.Minter
	jwt      *jws.Engine
	remote   token.KeySetFetcher
	trust    TrustChecker
	http     *http.Client
	cfg      Config
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTrustChecker enables the federation trust check.
func WithTrustChecker(tc TrustChecker) Option {
	return func(e *Engine) {
		e.trust = tc
	}
}

// WithRemoteKeySets resolves client jwks_uri values for request objects.
func WithRemoteKeySets(r token.KeySetFetcher) Option {
	return func(e *Engine) {
		e.remote = r
	}
}

// WithHTTPClient sets the client used to fetch request_uri values.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.http = c
	}
}

// NewEngine creates an Engine.
func NewEngine(
	clients storage.ClientStore,
	grants storage.GrantStore,
	repo users.Repository,
	sessions *session.Manager,
	minter *token.Minter,
	cfg Config,
	opts ...Option,
) *Engine {
	if cfg.RequestURITimeout <= 0 {
		cfg.RequestURITimeout = DefaultRequestURITimeout
	}
	if cfg.Issuer == "" {
		cfg.Issuer = minter.Config().Issuer
	}
	e := &Engine{
		clients:  clients,
		grants:   grants,
		users:    repo,
		sessions: sessions,
		minter:   minter,
		jwt:      minter.Engine(),
		http:     http.DefaultClient,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of an authorization request that can be redirected
// back to the client. Error is set when the redirect carries an error.
type Result struct {
	State       State
	RedirectURL string
	Mode        string
	Params      url.Values
	SessionID   string
	Error       error
}

// flow carries the working state of one request.
type flow struct {
	req      *Request
	client   *storage.Client
	types    fosite.Arguments
	scopes   []string
	mode     string
	state    State
	claims   jws.Claims
	subject  string
	authTime time.Time
	acr      string
	session  string
}

// Authorize processes req. A returned error means the request could not be
// tied to a registered redirect URI and must be answered directly.
// Otherwise the Result says where to redirect the user agent.
func (e *Engine) Authorize(ctx context.Context, req *Request) (*Result, error) {
	f := &flow{req: req, state: StateReceived, mode: ResponseModeQuery}

	if err := e.validateClient(ctx, f); err != nil {
		return nil, err
	}
	if err := e.loadRequestObject(ctx, f); err != nil {
		if errors.Is(err, oautherr.ErrInvalidRequestURI) {
			f.mode = defaultMode(req)
			return e.fail(f, err)
		}
		return nil, err
	}
	if err := e.validate(f); err != nil {
		return e.fail(f, err)
	}
	f.state = StateValidated

	if err := e.authenticate(ctx, f); err != nil {
		return e.fail(f, err)
	}
	if err := e.checkTrust(ctx, f.client); err != nil {
		return nil, err
	}
	f.state = StateAuthenticated

	params, err := e.dispatch(ctx, f)
	if err != nil {
		return e.fail(f, err)
	}
	f.state = StateDispatched

	logger.Debugw("authorization granted", "client_id", f.client.ID, "response_type", req.ResponseType, "mode", f.mode)
	return &Result{
		State:       StateRedirected,
		RedirectURL: buildRedirect(req.RedirectURI, f.mode, params),
		Mode:        f.mode,
		Params:      params,
		SessionID:   f.session,
	}, nil
}

func (e *Engine) fail(f *flow, err error) (*Result, error) {
	var rfcErr *fosite.RFC6749Error
	if !errors.As(err, &rfcErr) {
		return nil, err
	}
	logger.Debugw("authorization request rejected",
		"client_id", f.client.ID, "state", f.state.String(), "error", rfcErr.ErrorField)
	params := oautherr.RedirectParams(rfcErr, f.req.State)
	return &Result{
		State:       StateFailed,
		RedirectURL: buildRedirect(f.req.RedirectURI, f.mode, params),
		Mode:        f.mode,
		Params:      params,
		Error:       rfcErr,
	}, nil
}

// validateClient checks the client and its redirect URI. Failures leave no
// safe redirect target.
func (e *Engine) validateClient(ctx context.Context, f *flow) error {
	req := f.req
	if req.ClientID == "" {
		return fosite.ErrInvalidRequest.WithHint("The client_id parameter is missing.")
	}
	client, err := e.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fosite.ErrInvalidRequest.WithHint("The client is not registered.")
		}
		return fmt.Errorf("failed to load client: %w", err)
	}
	f.client = client

	if req.RedirectURI == "" || !client.HasRedirectURI(req.RedirectURI) {
		return oautherr.ErrInvalidRequestRedirectURI
	}

	return nil
}

// loadRequestObject resolves request_uri and verifies the request object.
// Only request_uri failures may be redirected.
func (e *Engine) loadRequestObject(ctx context.Context, f *flow) error {
	req, client := f.req, f.client
	if req.RequestURI != "" {
		if req.Request != "" {
			return fosite.ErrInvalidRequest.WithHint("Only one of request and request_uri may be used.")
		}
		body, err := e.fetchRequestURI(ctx, req.RequestURI)
		if err != nil {
			return err
		}
		req.Request = body
	}
	if req.Request == "" {
		return nil
	}

	claims, err := e.verifyRequestObject(ctx, client, req)
	if err != nil {
		return err
	}
	f.claims = claims
	if !client.HasRedirectURI(req.RedirectURI) {
		return oautherr.ErrInvalidRequestRedirectURI
	}
	return nil
}

func defaultMode(req *Request) string {
	types := req.responseTypes()
	mode, err := ResponseMode(types, req.ResponseMode)
	if err != nil {
		if isImplicit(types) {
			return ResponseModeFragment
		}
		return ResponseModeQuery
	}
	return mode
}

func (*Engine) validate(f *flow) error {
	req, client := f.req, f.client
	f.types = req.responseTypes()
	f.mode = defaultMode(req)

	if len(f.types) == 0 {
		return fosite.ErrInvalidRequest.WithHint("The response_type parameter is missing.")
	}
	if _, err := ResponseMode(f.types, req.ResponseMode); err != nil {
		return err
	}
	if !responseTypeRegistered(client, f.types) {
		return fosite.ErrUnsupportedResponseType.WithHintf("The client is not registered for response_type %q.", req.ResponseType)
	}
	if f.types.Has("token") && !client.HasGrantType(registration.GrantImplicit) {
		return fosite.ErrUnauthorizedClient.WithHint("The client may not use the implicit grant.")
	}

	f.scopes = token.GrantedScopes(client, req.Scope)
	if f.types.Has("id_token") {
		if !slices.Contains(f.scopes, token.ScopeOpenID) {
			return fosite.ErrInvalidScope.WithHint("The openid scope is required when id_token is requested.")
		}
		if isImplicit(f.types) && req.Nonce == "" {
			return fosite.ErrInvalidRequest.WithHint("The nonce parameter is required for implicit and hybrid flows.")
		}
	}

	prompts := req.prompts()
	if prompts.Has(PromptNone) && len(prompts) > 1 {
		return fosite.ErrInvalidRequest.WithHint("prompt=none cannot be combined with other values.")
	}

	if req.CodeChallengeMethod != "" && req.CodeChallenge == "" {
		return fosite.ErrInvalidRequest.WithHint("The code_challenge parameter is missing.")
	}
	if req.CodeChallenge != "" {
		switch req.CodeChallengeMethod {
		case "", crypto.PKCEChallengeMethodPlain, crypto.PKCEChallengeMethodS256:
		default:
			return fosite.ErrInvalidRequest.WithHintf("The code_challenge_method %q is not supported.", req.CodeChallengeMethod)
		}
	}
	return nil
}

// checkTrust enforces federation membership. Its failure is answered
// directly with 401.
func (e *Engine) checkTrust(ctx context.Context, client *storage.Client) error {
	if e.trust == nil {
		return nil
	}
	trusted, err := e.trust.HasActiveTrust(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to check federation trust: %w", err)
	}
	if !trusted {
		logger.Warnw("authorization refused for client outside any federation", "client_id", client.ID)
		return oautherr.ErrUntrustedClient
	}
	return nil
}

// responseTypeRegistered accepts an exact registered combination, or a
// request whose every component appears among the registered values.
func responseTypeRegistered(client *storage.Client, requested fosite.Arguments) bool {
	var registered fosite.Arguments
	for _, rt := range client.ResponseTypes {
		parts := registration.ParseResponseType(rt)
		if parts.Matches(requested...) {
			return true
		}
		registered = append(registered, parts...)
	}
	return len(requested) > 0 && registered.Has(requested...)
}

func (e *Engine) authenticate(ctx context.Context, f *flow) error {
	req := f.req
	prompts := req.prompts()

	switch {
	case req.Username != "":
		if e.users == nil {
			return fosite.ErrAccessDenied.WithHint("Resource owner credentials are not accepted.")
		}
		user, err := e.users.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, users.ErrInvalidCredentials) {
				return fosite.ErrAccessDenied.WithHint("The resource owner credentials are invalid.")
			}
			return fmt.Errorf("failed to authenticate resource owner: %w", err)
		}
		f.subject = user.Subject
		f.authTime = e.now()
	case prompts.Has(PromptLogin):
		if err := e.sessions.Drop(ctx, req.SessionID); err != nil {
			return err
		}
		return oautherr.ErrLoginRequired.WithHint("prompt=login requires fresh credentials.")
	default:
		if err := e.resumeAuthentication(ctx, f); err != nil {
			return err
		}
	}

	if f.subject == "" {
		return oautherr.ErrLoginRequired
	}

	maxAge := req.maxAge()
	if maxAge < 0 && f.client.DefaultMaxAge > 0 {
		maxAge = f.client.DefaultMaxAge
	}
	if maxAge >= 0 && e.now().Sub(f.authTime) > time.Duration(maxAge)*time.Second {
		return oautherr.ErrLoginRequired.WithHint("The authentication is older than max_age.")
	}

	if sub := f.claims.String("sub"); sub != "" && sub != f.subject {
		return oautherr.ErrUserMismatched
	}
	if values := strings.Fields(req.ACRValues); len(values) > 0 && f.acr == "" {
		f.acr = values[0]
	}
	return nil
}

// resumeAuthentication authenticates from an existing session or from an
// access token naming an existing grant.
func (e *Engine) resumeAuthentication(ctx context.Context, f *flow) error {
	sess, err := e.sessions.Get(ctx, f.req.SessionID)
	switch {
	case err == nil:
		f.subject = sess.Subject
		f.authTime = sess.AuthTime
		f.acr = sess.ACR
		f.session = sess.ID
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to load session: %w", err)
	}

	if f.req.AccessToken == "" {
		return nil
	}
	tok, err := e.grants.GetToken(ctx, token.Signature(f.req.AccessToken))
	switch {
	case err == nil:
		if tok.Kind == storage.TokenKindAccess && tok.Subject != "" && e.now().Before(tok.ExpiresAt) {
			f.subject = tok.Subject
			f.authTime = tok.AuthTime
			if f.authTime.IsZero() {
				f.authTime = tok.IssuedAt
			}
			f.session = tok.SessionID
		}
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("failed to load access token: %w", err)
	}
}

func (e *Engine) dispatch(ctx context.Context, f *flow) (url.Values, error) {
	req, client := f.req, f.client

	sess, err := e.sessions.CreateOrResume(ctx, f.subject, client.ID, f.session)
	if err != nil {
		return nil, err
	}
	f.session = sess.ID
	if f.authTime.IsZero() {
		f.authTime = sess.AuthTime
	}

	grantID := token.NewGrantID()
	params := url.Values{}
	fail := func(err error) (url.Values, error) {
		e.discardGrant(ctx, grantID, params.Get("code"))
		return nil, err
	}
	idParams := token.IDTokenParams{
		Subject:   f.subject,
		Nonce:     req.Nonce,
		AuthTime:  f.authTime,
		ACR:       f.acr,
		SessionID: f.session,
	}

	if f.types.Has("code") {
		code, err := e.minter.MintAuthorizationCode(ctx, &storage.AuthorizationCode{
			GrantID:             grantID,
			ClientID:            client.ID,
			RedirectURI:         req.RedirectURI,
			Subject:             f.subject,
			Scopes:              f.scopes,
			Nonce:               req.Nonce,
			SessionID:           f.session,
			ACR:                 f.acr,
			AuthTime:            f.authTime,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
		})
		if err != nil {
			return nil, err
		}
		params.Set("code", code)
		idParams.Code = code
	}

	if f.types.Has("token") {
		access, tok, err := e.minter.MintAccessToken(ctx, storage.Token{
			GrantID:   grantID,
			ClientID:  client.ID,
			Subject:   f.subject,
			Scopes:    f.scopes,
			GrantType: registration.GrantImplicit,
			SessionID: f.session,
			AuthTime:  f.authTime,
		})
		if err != nil {
			return fail(err)
		}
		params.Set("access_token", access)
		params.Set("token_type", token.TokenTypeBearer)
		params.Set("expires_in", strconv.FormatInt(int64(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()), 10))
		idParams.AccessToken = access
	}

	if f.types.Has("id_token") {
		idToken, err := e.minter.MintIDToken(ctx, client, idParams)
		if err != nil {
			return fail(err)
		}
		params.Set("id_token", idToken)
	}

	params.Set("session_id", f.session)
	params.Set("scope", strings.Join(f.scopes, " "))
	if req.State != "" {
		params.Set("state", req.State)
	}
	return params, nil
}

// discardGrant invalidates an authorization code minted for a response that
// could not be completed, together with any token issued under its grant.
func (e *Engine) discardGrant(ctx context.Context, grantID, code string) {
	if code != "" {
		if _, err := e.grants.ConsumeAuthorizationCode(ctx, token.Signature(code)); err != nil &&
			!errors.Is(err, storage.ErrNotFound) {
			logger.Warnw("failed to discard authorization code", "grant_id", grantID, "error", err)
		}
	}
	if err := e.grants.RevokeGrant(ctx, grantID); err != nil {
		logger.Warnw("failed to revoke incomplete grant", "grant_id", grantID, "error", err)
	}
}

func buildRedirect(redirectURI, mode string, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	if mode == ResponseModeFragment {
		u.Fragment = ""
		u.RawFragment = ""
		return u.String() + "#" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
