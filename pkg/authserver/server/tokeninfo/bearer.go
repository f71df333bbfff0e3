// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokeninfo

import (
	"net/http"
	"strings"
)

// AuthorizationMethod says where a bearer token was presented (RFC 6750
// Section 2).
type AuthorizationMethod int

// Bearer token locations.
const (
	AuthorizationNone AuthorizationMethod = iota
	AuthorizationRequestHeaderField
	AuthorizationFormEncodedBodyParameter
	AuthorizationURLQueryParameter
)

// ExtractBearer returns the bearer token of r and where it was found. The
// Authorization header wins over the body, and the body over the query.
func ExtractBearer(r *http.Request) (string, AuthorizationMethod) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), AuthorizationRequestHeaderField
		}
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			if v := r.PostForm.Get("access_token"); v != "" {
				return v, AuthorizationFormEncodedBodyParameter
			}
		}
	}
	if v := r.URL.Query().Get("access_token"); v != "" {
		return v, AuthorizationURLQueryParameter
	}
	return "", AuthorizationNone
}
