// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oautherr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/logger"
)

// Body is the uniform error body returned by every JSON endpoint.
type Body struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// From converts any error into an RFC 6749 error. Errors that are not protocol
// errors become server_error; their detail is never exposed to the caller.
func From(err error) *fosite.RFC6749Error {
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		return rfcErr
	}
	return fosite.ErrServerError
}

// Description returns the human readable description of an error, including
// any hint attached with WithHint.
func Description(rfcErr *fosite.RFC6749Error) string {
	desc := rfcErr.DescriptionField
	if rfcErr.HintField != "" {
		if desc == "" {
			return rfcErr.HintField
		}
		desc = strings.TrimSuffix(desc, " ") + " " + rfcErr.HintField
	}
	return desc
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	code := From(err).CodeField
	if code == 0 {
		return http.StatusInternalServerError
	}
	return code
}

// ToBody renders err as the JSON error body.
func ToBody(err error) Body {
	rfcErr := From(err)
	return Body{Error: rfcErr.ErrorField, ErrorDescription: Description(rfcErr)}
}

// WriteJSON writes err as a JSON error response with the status code carried
// by the error. Errors that are not protocol errors are logged and rendered as
// server_error.
func WriteJSON(w http.ResponseWriter, err error) {
	var rfcErr *fosite.RFC6749Error
	if !errors.As(err, &rfcErr) {
		logger.Errorw("internal error while handling request", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))
	// Headers are already written, so an encoding failure can only be logged.
	if encErr := json.NewEncoder(w).Encode(ToBody(err)); encErr != nil {
		logger.Debugw("failed to encode error response", "error", encErr)
	}
}

// RedirectParams returns the parameters carried back to the client on the
// redirect path of the authorization endpoint.
func RedirectParams(err error, state string) url.Values {
	body := ToBody(err)
	params := url.Values{}
	params.Set("error", body.Error)
	if body.ErrorDescription != "" {
		params.Set("error_description", body.ErrorDescription)
	}
	if state != "" {
		params.Set("state", state)
	}
	return params
}
