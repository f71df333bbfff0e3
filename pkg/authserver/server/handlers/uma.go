// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/tokeninfo"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fosite.ErrInvalidRequest.WithHint("The request body is not valid JSON.")
	}
	return nil
}

// patFrom returns the protection API token from the Authorization header.
func patFrom(r *http.Request) string {
	value, method := tokeninfo.ExtractBearer(r)
	if method != tokeninfo.AuthorizationRequestHeaderField {
		return ""
	}
	return value
}

func (h *Handler) writeUMAError(w http.ResponseWriter, err error) {
	if status := oautherr.Status(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
		bearerChallenge(w, err)
	}
	writeError(w, err)
}

// UMAResourceHandler handles POST /uma/resources.
func (h *Handler) UMAResourceHandler(w http.ResponseWriter, r *http.Request) {
	var rs storage.ResourceSet
	if err := decodeJSON(r, &rs); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.svc.UMA.RegisterResource(r.Context(), patFrom(r), rs)
	if err != nil {
		h.writeUMAError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"_id": id})
}

// UMAPermissionHandler handles POST /uma/permission. The body is a single
// permission or an array of them.
func (h *Handler) UMAPermissionHandler(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, err)
		return
	}
	var perms []storage.Permission
	if err := json.Unmarshal(raw, &perms); err != nil {
		var single storage.Permission
		if err := json.Unmarshal(raw, &single); err != nil {
			writeError(w, fosite.ErrInvalidRequest.WithHint("The permission request is malformed."))
			return
		}
		perms = []storage.Permission{single}
	}
	ticket, err := h.svc.UMA.RegisterPermission(r.Context(), patFrom(r), perms)
	if err != nil {
		h.writeUMAError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ticket": ticket})
}

// UMAApproveHandler handles POST /uma/permission/{ticket}/approve.
func (h *Handler) UMAApproveHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UMA.ApproveTicket(r.Context(), patFrom(r), chi.URLParam(r, "ticket")); err != nil {
		h.writeUMAError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UMARPTStatusHandler handles POST /uma/rpt_status for resource servers.
func (h *Handler) UMARPTStatusHandler(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, err)
		return
	}
	status, err := h.svc.UMA.IntrospectRPT(r.Context(), patFrom(r), r.PostForm.Get("token"))
	if err != nil {
		h.writeUMAError(w, err)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, status)
}
