// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/stacklok/oxauth/pkg/authserver/server/authorize"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/logger"
)

// AuthorizeHandler handles GET and POST /authorize. Requests that cannot be
// tied to a registered redirect URI are answered with a JSON error; all
// others end in a redirect to the client.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, err)
		return
	}

	req := authorize.ParseRequest(r.Form)
	if req.SessionID == "" {
		if c, err := r.Cookie(h.cfg.SessionCookie); err == nil {
			req.SessionID = c.Value
		}
	}
	if user, pass, ok := r.BasicAuth(); ok {
		req.Username, req.Password = user, pass
	}

	result, err := h.svc.Authorize.Authorize(r.Context(), req)
	if err != nil {
		logger.Debugw("authorization request answered directly", "client_id", req.ClientID, "error", err)
		h.svc.Recorder.Authorization(r.Context(), oautherr.From(err).ErrorField)
		writeError(w, err)
		return
	}
	outcome := "granted"
	if result.Error != nil {
		outcome = oautherr.From(result.Error).ErrorField
	}
	h.svc.Recorder.Authorization(r.Context(), outcome)

	if result.SessionID != "" {
		h.setSessionCookie(w, result.SessionID)
	}
	setNoStore(w)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
