// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oautherr defines the OAuth 2.0 / OpenID Connect error taxonomy used by
// every endpoint of the authorization server, and the helpers that render those
// errors as JSON bodies or redirect parameters.
//
// All protocol errors are *fosite.RFC6749Error values. Standard errors reuse the
// fosite definitions; provider-specific codes are declared here.
package oautherr

import (
	"net/http"

	"github.com/ory/fosite"
)

// Registration errors (RFC 7591 Section 3.2.2).
var (
	ErrInvalidClientMetadata = &fosite.RFC6749Error{
		ErrorField:       "invalid_client_metadata",
		DescriptionField: "The value of one of the client metadata fields is invalid.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidRedirectURI = &fosite.RFC6749Error{
		ErrorField:       "invalid_redirect_uri",
		DescriptionField: "The value of one or more redirect_uris is invalid.",
		CodeField:        http.StatusBadRequest,
	}

	// ErrConcurrentModification rejects a registration change that raced
	// with another change to the same client.
	ErrConcurrentModification = &fosite.RFC6749Error{
		ErrorField:       "concurrent_modification",
		DescriptionField: "The client was modified by another request; read it again and retry.",
		CodeField:        http.StatusConflict,
	}
)

// Authorization endpoint errors.
var (
	ErrInvalidRequestObject = &fosite.RFC6749Error{
		ErrorField:       "invalid_request_object",
		DescriptionField: "The request parameter contains an invalid request object.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidRequestURI = &fosite.RFC6749Error{
		ErrorField:       "invalid_request_uri",
		DescriptionField: "The request_uri returns an error or contains invalid data.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidRequestRedirectURI = &fosite.RFC6749Error{
		ErrorField:       "invalid_request_redirect_uri",
		DescriptionField: "The redirect_uri is missing, malformed, or not registered for the client.",
		CodeField:        http.StatusBadRequest,
	}

	ErrLoginRequired = &fosite.RFC6749Error{
		ErrorField:       "login_required",
		DescriptionField: "The authorization server requires end-user authentication.",
		CodeField:        http.StatusBadRequest,
	}

	ErrUserMismatched = &fosite.RFC6749Error{
		ErrorField:       "user_mismatched",
		DescriptionField: "The authenticated user does not match the requested subject.",
		CodeField:        http.StatusBadRequest,
	}
)

// Token endpoint errors.
var (
	// ErrUnsupportedGrantType is returned for extension grants the server does not
	// implement. Unlike RFC 6749 this is a 501: the request is well formed, the
	// server just has no handler for it.
	ErrUnsupportedGrantType = &fosite.RFC6749Error{
		ErrorField:       "unsupported_grant_type",
		DescriptionField: "The authorization grant type is not supported by the authorization server.",
		CodeField:        http.StatusNotImplemented,
	}

	ErrInvalidToken = &fosite.RFC6749Error{
		ErrorField:       "invalid_token",
		DescriptionField: "The access token provided is expired, revoked, malformed, or invalid.",
		CodeField:        http.StatusUnauthorized,
	}

	ErrInsufficientScope = &fosite.RFC6749Error{
		ErrorField:       "insufficient_scope",
		DescriptionField: "The request requires higher privileges than provided by the access token.",
		CodeField:        http.StatusForbidden,
	}
)

// End-session errors.
var (
	ErrInvalidGrantAndSession = &fosite.RFC6749Error{
		ErrorField:       "invalid_grant_and_session",
		DescriptionField: "The provided id_token_hint and session are both invalid.",
		CodeField:        http.StatusBadRequest,
	}

	ErrPostLogoutURINotAssociated = &fosite.RFC6749Error{
		ErrorField:       "post_logout_uri_not_associated_with_client",
		DescriptionField: "The post_logout_redirect_uri is not registered for any client in the session.",
		CodeField:        http.StatusBadRequest,
	}
)

// UMA errors.
var (
	ErrInvalidTicket = &fosite.RFC6749Error{
		ErrorField:       "invalid_ticket",
		DescriptionField: "The provided permission ticket was not found.",
		CodeField:        http.StatusBadRequest,
	}

	ErrExpiredTicket = &fosite.RFC6749Error{
		ErrorField:       "expired_ticket",
		DescriptionField: "The provided permission ticket has expired.",
		CodeField:        http.StatusBadRequest,
	}

	ErrNotAuthorized = &fosite.RFC6749Error{
		ErrorField:       "not_authorized",
		DescriptionField: "The requesting party is not authorized for the requested permissions.",
		CodeField:        http.StatusForbidden,
	}

	ErrInvalidResourceID = &fosite.RFC6749Error{
		ErrorField:       "invalid_resource_id",
		DescriptionField: "The provided resource id was not found.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidResourceScope = &fosite.RFC6749Error{
		ErrorField:       "invalid_resource_scope",
		DescriptionField: "At least one of the scopes is not registered for the resource.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidClientScope = &fosite.RFC6749Error{
		ErrorField:       "invalid_client_scope",
		DescriptionField: "The token does not carry the uma_protection scope.",
		CodeField:        http.StatusForbidden,
	}
)

// Federation errors.
var (
	ErrInvalidFederationID = &fosite.RFC6749Error{
		ErrorField:       "invalid_federation_id",
		DescriptionField: "The federation id is unknown.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidDisplayName = &fosite.RFC6749Error{
		ErrorField:       "invalid_display_name",
		DescriptionField: "The display name is missing or invalid.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidFederationRedirectURI = &fosite.RFC6749Error{
		ErrorField:       "invalid_redirect_uri",
		DescriptionField: "The redirect_uri is missing or not registered.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidOPID = &fosite.RFC6749Error{
		ErrorField:       "invalid_op_id",
		DescriptionField: "The op_id is missing or invalid.",
		CodeField:        http.StatusBadRequest,
	}

	ErrInvalidDomain = &fosite.RFC6749Error{
		ErrorField:       "invalid_domain",
		DescriptionField: "The domain is missing or invalid.",
		CodeField:        http.StatusBadRequest,
	}

	// ErrUntrustedClient is returned by the authorization endpoint when
	// federation is enabled and the client has not joined a federation.
	ErrUntrustedClient = &fosite.RFC6749Error{
		ErrorField:       "unauthorized_client",
		DescriptionField: "The client is not trusted by any federation.",
		CodeField:        http.StatusUnauthorized,
	}
)
