// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/tokeninfo"
)

// readMetadata decodes a JSON registration body.
func readMetadata(r *http.Request) (*registration.Metadata, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return nil, oautherr.ErrInvalidClientMetadata.WithHint("Content-Type must be application/json.")
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return registration.ParseMetadata(raw)
}

// RegisterHandler handles POST /register (OpenID Connect Dynamic Client
// Registration 1.0).
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	md, err := readMetadata(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Registry.Register(r.Context(), md)
	if err != nil {
		writeError(w, err)
		return
	}
	h.svc.Recorder.ClientRegistered(r.Context(), md.ApplicationType)
	setNoStore(w)
	writeJSON(w, http.StatusCreated, resp)
}

// registrationToken extracts the registration access token and client id of
// an RFC 7592 management request.
func registrationToken(r *http.Request) (clientID, tok string) {
	tok, _ = tokeninfo.ExtractBearer(r)
	return r.URL.Query().Get("client_id"), tok
}

// ReadRegistrationHandler handles GET /register?client_id=.
func (h *Handler) ReadRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	clientID, tok := registrationToken(r)
	resp, err := h.svc.Registry.Read(r.Context(), clientID, tok)
	if err != nil {
		bearerChallenge(w, err)
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateRegistrationHandler handles PUT /register?client_id=.
func (h *Handler) UpdateRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	clientID, tok := registrationToken(r)
	md, err := readMetadata(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Registry.Update(r.Context(), clientID, tok, md)
	if err != nil {
		bearerChallenge(w, err)
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// RotateSecretHandler handles POST /register/rotate_secret?client_id=.
func (h *Handler) RotateSecretHandler(w http.ResponseWriter, r *http.Request) {
	clientID, tok := registrationToken(r)
	resp, err := h.svc.Registry.RotateSecret(r.Context(), clientID, tok)
	if err != nil {
		bearerChallenge(w, err)
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}
