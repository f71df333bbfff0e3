// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/stacklok/oxauth/pkg/authserver/server/tokeninfo"
)

// UserInfoHandler handles GET and POST /userinfo.
func (h *Handler) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	value, _ := tokeninfo.ExtractBearer(r)
	claims, err := h.svc.TokenInfo.UserInfo(r.Context(), value)
	if err != nil {
		bearerChallenge(w, err)
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, claims)
}

// ClientInfoHandler handles GET and POST /clientinfo.
func (h *Handler) ClientInfoHandler(w http.ResponseWriter, r *http.Request) {
	value, _ := tokeninfo.ExtractBearer(r)
	md, err := h.svc.TokenInfo.ClientInfo(r.Context(), value)
	if err != nil {
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, md)
}

// IntrospectionHandler handles POST /introspection (RFC 7662). The caller
// authenticates with a bearer access token, client credentials, or by
// calling from a whitelisted network.
func (h *Handler) IntrospectionHandler(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, err)
		return
	}
	caller := tokeninfo.Caller{RemoteAddr: r.RemoteAddr}
	if bearer, method := tokeninfo.ExtractBearer(r); method == tokeninfo.AuthorizationRequestHeaderField {
		caller.Bearer = bearer
	} else {
		creds, err := clientCredentials(r)
		if err != nil {
			writeTokenError(w, creds, err)
			return
		}
		caller.Credentials = creds
	}
	if err := h.svc.TokenInfo.AuthenticateCaller(r.Context(), caller); err != nil {
		writeTokenError(w, caller.Credentials, err)
		return
	}

	result, err := h.svc.TokenInfo.Introspect(r.Context(), r.PostForm.Get("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, result)
}
