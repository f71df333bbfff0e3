// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strconv"

	"github.com/stacklok/oxauth/pkg/authserver/server/federation"
)

// FederationMetadataHandler handles GET /federation_metadata[?id=&signed=].
func (h *Handler) FederationMetadataHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signed, _ := strconv.ParseBool(q.Get("signed"))
	md, err := h.svc.Federation.Metadata(r.Context(), q.Get("id"), signed)
	if err != nil {
		writeError(w, err)
		return
	}
	if jwt, ok := md.(string); ok {
		w.Header().Set("Content-Type", "application/jwt")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(jwt))
		return
	}
	writeJSON(w, http.StatusOK, md)
}

// FederationJoinHandler handles POST /federation with form or JSON bodies.
func (h *Handler) FederationJoinHandler(w http.ResponseWriter, r *http.Request) {
	var req federation.JoinRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if err := parseForm(r); err != nil {
			writeError(w, err)
			return
		}
		req = federation.JoinRequest{
			FederationID: r.PostForm.Get("federation_id"),
			EntityType:   r.PostForm.Get("entity_type"),
			DisplayName:  r.PostForm.Get("display_name"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			OPID:         r.PostForm.Get("op_id"),
			Domain:       r.PostForm.Get("domain"),
		}
	}
	resp, err := h.svc.Federation.Join(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
