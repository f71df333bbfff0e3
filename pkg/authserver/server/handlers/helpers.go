// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/logger"
)

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// Headers are already written, so an encoding failure can only be logged.
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugw("failed to encode response", "error", err)
	}
}

// writeError renders err as {error, error_description}. Oversized bodies are
// reported as invalid_request.
func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = fosite.ErrInvalidRequest.WithHintf("The request body exceeds %d bytes.", tooLarge.Limit)
	}
	setNoStore(w)
	oautherr.WriteJSON(w, err)
}

// parseForm parses query and urlencoded body parameters.
func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fosite.ErrInvalidRequest.WithHint("The request parameters could not be parsed.")
	}
	return nil
}

// clientCredentials reads client authentication from HTTP Basic or the form
// body. Basic credentials are form-urlencoded per RFC 6749 Section 2.3.1.
func clientCredentials(r *http.Request) (token.Credentials, error) {
	creds := token.Credentials{
		ClientID:      r.PostForm.Get("client_id"),
		ClientSecret:  r.PostForm.Get("client_secret"),
		Assertion:     r.PostForm.Get("client_assertion"),
		AssertionType: r.PostForm.Get("client_assertion_type"),
	}
	id, secret, ok := r.BasicAuth()
	if !ok {
		return creds, nil
	}
	var err error
	if creds.ClientID, err = url.QueryUnescape(id); err != nil {
		return creds, fmt.Errorf("%w: malformed client id", fosite.ErrInvalidClient)
	}
	if creds.ClientSecret, err = url.QueryUnescape(secret); err != nil {
		return creds, fmt.Errorf("%w: malformed client secret", fosite.ErrInvalidClient)
	}
	creds.Basic = true
	return creds, nil
}

// bearerChallenge sets WWW-Authenticate for a failed bearer request
// (RFC 6750 Section 3).
func bearerChallenge(w http.ResponseWriter, err error) {
	body := oautherr.ToBody(err)
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer error=%q, error_description=%q`, body.Error, body.ErrorDescription))
}
