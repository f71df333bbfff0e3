// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/stacklok/oxauth/pkg/authserver/server/session"
	"github.com/stacklok/oxauth/pkg/logger"
)

// EndSessionHandler handles GET /end_session (RP-initiated logout).
func (h *Handler) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := session.EndSessionRequest{
		IDTokenHint:           q.Get("id_token_hint"),
		SessionID:             q.Get("session_id"),
		PostLogoutRedirectURI: q.Get("post_logout_redirect_uri"),
		State:                 q.Get("state"),
	}
	if req.SessionID == "" {
		if c, err := r.Cookie(h.cfg.SessionCookie); err == nil {
			req.SessionID = c.Value
		}
	}

	result, err := h.svc.Sessions.EndSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.svc.Recorder.SessionEnded(r.Context())
	h.clearSessionCookie(w)
	if err := result.Write(w, r); err != nil {
		logger.Errorw("failed to write end session response", "error", err)
	}
}
