// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// writeTokenError answers a token endpoint failure. Basic authentication
// failures carry a WWW-Authenticate challenge (RFC 6749 Section 5.2).
func writeTokenError(w http.ResponseWriter, creds token.Credentials, err error) {
	if creds.Basic && errors.Is(err, fosite.ErrInvalidClient) {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	}
	writeError(w, err)
}

// postForm parses a POST body and the client credentials it carries.
func postForm(r *http.Request) (token.Credentials, error) {
	if err := parseForm(r); err != nil {
		return token.Credentials{}, err
	}
	return clientCredentials(r)
}

// TokenHandler handles POST /token.
func (h *Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	creds, err := postForm(r)
	if err != nil {
		writeTokenError(w, creds, err)
		return
	}
	grantType := r.PostForm.Get("grant_type")
	resp, err := h.svc.Issuer.Exchange(r.Context(), &token.Request{
		GrantType:   grantType,
		Form:        r.PostForm,
		Credentials: creds,
	})
	if err != nil {
		code := oautherr.From(err).ErrorField
		logger.Debugw("token request failed", "client_id", creds.ClientID, "grant_type", grantType, "error", code)
		h.svc.Recorder.TokenFailed(r.Context(), grantType, code)
		writeTokenError(w, creds, err)
		return
	}
	h.svc.Recorder.TokenIssued(r.Context(), grantType)
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// authenticateClient authenticates the client of a POST request.
func (h *Handler) authenticateClient(w http.ResponseWriter, r *http.Request) (*storage.Client, bool) {
	creds, err := postForm(r)
	if err != nil {
		writeTokenError(w, creds, err)
		return nil, false
	}
	client, err := h.svc.Issuer.Authenticator().Authenticate(r.Context(), creds)
	if err != nil {
		writeTokenError(w, creds, err)
		return nil, false
	}
	return client, true
}

// TokenExchangeHandler handles POST /token/exchange, trading an access
// token for a long-lived exchange token.
func (h *Handler) TokenExchangeHandler(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authenticateClient(w, r)
	if !ok {
		return
	}
	resp, err := h.svc.Issuer.IssueExchangeToken(r.Context(), client, r.PostForm.Get("access_token"))
	if err != nil {
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// ValidateHandler handles GET /validate?access_token=.
func (h *Handler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Issuer.ValidateToken(r.Context(), r.URL.Query().Get("access_token"))
	if err != nil {
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, result)
}

// RevokeHandler handles POST /revoke (RFC 7009). Unknown tokens still
// answer 200.
func (h *Handler) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authenticateClient(w, r)
	if !ok {
		return
	}
	if err := h.svc.Issuer.Revoke(r.Context(), client, r.PostForm.Get("token")); err != nil {
		writeError(w, err)
		return
	}
	setNoStore(w)
	w.WriteHeader(http.StatusOK)
}
