// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

const backChannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

// EndSessionRequest carries the end-session parameters.
type EndSessionRequest struct {
	IDTokenHint           string
	SessionID             string
	PostLogoutRedirectURI string
	State                 string
}

// EndSessionResult tells the caller how to finish the logout.
type EndSessionResult struct {
	// RedirectURL is set when the user agent should be redirected directly.
	RedirectURL string
	// FrontChannelURIs are rendered as iframes on the logout page.
	FrontChannelURIs []string
	// PostLogoutRedirectURI, with state appended, is where the logout page
	// sends the user agent once the iframes are loaded.
	PostLogoutRedirectURI string
}

type hint struct {
	valid    bool
	sid      string
	audience []string
}

// EndSession runs RP-initiated logout.
func (m *Manager) EndSession(ctx context.Context, req EndSessionRequest) (*EndSessionResult, error) {
	h := m.verifyHint(ctx, req.IDTokenHint)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.sid
	}
	sess, err := m.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess != nil && h.valid && h.sid != "" && h.sid != sess.ID {
		logger.Debugw("id_token_hint sid does not match session")
		h.valid = false
	}

	if !h.valid && sess == nil {
		if m.cfg.AllowRedirectFallback && req.PostLogoutRedirectURI != "" &&
			slices.Contains(m.cfg.FallbackRedirectWhitelist, req.PostLogoutRedirectURI) {
			return &EndSessionResult{RedirectURL: withState(req.PostLogoutRedirectURI, req.State)}, nil
		}
		return nil, oautherr.ErrInvalidGrantAndSession
	}

	clientIDs := h.audience
	if sess != nil {
		clientIDs = sess.ClientIDs
	}
	clients := m.loadClients(ctx, clientIDs)

	if req.PostLogoutRedirectURI != "" && !postLogoutURIRegistered(clients, req.PostLogoutRedirectURI) {
		return nil, oautherr.ErrPostLogoutURINotAssociated
	}

	sid := h.sid
	subject := ""
	if sess != nil {
		sid = sess.ID
		subject = sess.Subject
		if err := m.sessions.DeleteSession(ctx, sess.ID); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
	}

	front, back := m.logoutTargets(ctx, clients, sid, subject)
	if m.notifier != nil {
		m.notifier.Notify(ctx, front, back)
	}
	logger.Debugw("session ended", "clients", len(clients), "frontchannel", len(front), "backchannel", len(back))

	result := &EndSessionResult{FrontChannelURIs: front}
	if req.PostLogoutRedirectURI != "" {
		target := withState(req.PostLogoutRedirectURI, req.State)
		if len(front) == 0 {
			result.RedirectURL = target
		} else {
			result.PostLogoutRedirectURI = target
		}
	}
	return result, nil
}

// verifyHint checks an id_token_hint issued by this server. Expired hints
// are accepted within the configured leeway.
func (m *Manager) verifyHint(ctx context.Context, token string) hint {
	if token == "" {
		return hint{}
	}
	header, err := jws.ParseHeader(token)
	if err != nil {
		return hint{}
	}

	opts := jws.VerifyOptions{ExpectedAlg: header.Alg, Leeway: m.cfg.HintLeeway}
	if jws.IsHMAC(header.Alg) {
		secret, ok := m.hintSecret(ctx, token)
		if !ok {
			return hint{}
		}
		opts.HMACSecret = secret
	}

	claims, err := m.engine.Verify(ctx, token, opts)
	if err != nil {
		logger.Debugw("id_token_hint rejected", "error", err)
		return hint{}
	}
	if m.cfg.Issuer != "" && claims.String("iss") != m.cfg.Issuer {
		return hint{}
	}
	return hint{valid: true, sid: claims.String("sid"), audience: claims.Audience()}
}

// hintSecret finds the client secret that signed an HS id_token.
func (m *Manager) hintSecret(ctx context.Context, token string) ([]byte, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, false
	}
	var claims jws.Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, false
	}
	aud := claims.Audience()
	if len(aud) == 0 {
		return nil, false
	}
	client, err := m.clients.GetClient(ctx, aud[0])
	if err != nil || client.Secret == "" {
		return nil, false
	}
	return []byte(client.Secret), true
}

func (m *Manager) loadClients(ctx context.Context, ids []string) []*storage.Client {
	clients := make([]*storage.Client, 0, len(ids))
	for _, id := range ids {
		c, err := m.clients.GetClient(ctx, id)
		if err != nil {
			logger.Debugw("skipping client of ended session", "client_id", id, "error", err)
			continue
		}
		clients = append(clients, c)
	}
	return clients
}

func postLogoutURIRegistered(clients []*storage.Client, uri string) bool {
	for _, c := range clients {
		if slices.Contains(c.PostLogoutRedirectURIs, uri) {
			return true
		}
	}
	return false
}

// logoutTargets splits clients into front-channel URIs and back-channel
// deliveries. A client with a back-channel URI is not notified through the
// front channel.
func (m *Manager) logoutTargets(
	ctx context.Context, clients []*storage.Client, sid, subject string,
) ([]string, []BackChannelTarget) {
	var (
		front []string
		back  []BackChannelTarget
	)
	for _, c := range clients {
		switch {
		case c.BackChannelLogoutURI != "":
			token, err := m.logoutToken(ctx, c, sid, subject)
			if err != nil {
				logger.Warnw("failed to sign logout token", "client_id", c.ID, "error", err)
				continue
			}
			back = append(back, BackChannelTarget{ClientID: c.ID, URI: c.BackChannelLogoutURI, LogoutToken: token})
		case c.FrontChannelLogoutURI != "":
			uri := c.FrontChannelLogoutURI
			if c.FrontChannelLogoutSessionRequired && sid != "" {
				uri = appendQuery(uri, url.Values{"iss": {m.cfg.Issuer}, "sid": {sid}})
			}
			front = append(front, uri)
		}
	}
	return front, back
}

func (m *Manager) logoutToken(ctx context.Context, c *storage.Client, sid, subject string) (string, error) {
	now := m.now()
	claims := map[string]any{
		"iss":    m.cfg.Issuer,
		"aud":    c.ID,
		"iat":    now.Unix(),
		"exp":    now.Add(2 * m.cfg.HintLeeway).Unix(),
		"jti":    uuid.NewString(),
		"events": map[string]any{backChannelLogoutEvent: map[string]any{}},
	}
	if subject != "" {
		claims["sub"] = subject
	}
	if sid != "" {
		claims["sid"] = sid
	}
	return m.engine.Sign(ctx, claims, jws.SignOptions{Alg: c.IDTokenSignedAlg, Type: "logout+jwt", HMACSecret: []byte(c.Secret)})
}

func withState(uri, state string) string {
	if state == "" {
		return uri
	}
	return appendQuery(uri, url.Values{"state": {state}})
}

func appendQuery(uri string, params url.Values) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
