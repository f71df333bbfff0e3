// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authorize

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ory/fosite"
)

// State is the position of a request in the authorization state machine.
type State int

// Authorization states. Redirected and Failed are terminal.
const (
	StateReceived State = iota
	StateValidated
	StateAuthenticated
	StateDispatched
	StateRedirected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateAuthenticated:
		return "authenticated"
	case StateDispatched:
		return "dispatched"
	case StateRedirected:
		return "redirected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Response modes.
const (
	ResponseModeQuery    = "query"
	ResponseModeFragment = "fragment"
)

// Prompt values.
const (
	PromptNone    = "none"
	PromptLogin   = "login"
	PromptConsent = "consent"
)

// Request is an authorization request. Username and Password carry HTTP
// Basic resource-owner credentials when present.
type Request struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	ResponseMode        string
	Scope               string
	State               string
	Nonce               string
	Prompt              string
	MaxAge              string
	ACRValues           string
	Request             string
	RequestURI          string
	CodeChallenge       string
	CodeChallengeMethod string
	SessionID           string
	AccessToken         string

	Username string
	Password string
}

// ParseRequest reads the authorization parameters from form.
func ParseRequest(form url.Values) *Request {
	return &Request{
		ClientID:            form.Get("client_id"),
		RedirectURI:         form.Get("redirect_uri"),
		ResponseType:        form.Get("response_type"),
		ResponseMode:        form.Get("response_mode"),
		Scope:               form.Get("scope"),
		State:               form.Get("state"),
		Nonce:               form.Get("nonce"),
		Prompt:              form.Get("prompt"),
		MaxAge:              form.Get("max_age"),
		ACRValues:           form.Get("acr_values"),
		Request:             form.Get("request"),
		RequestURI:          form.Get("request_uri"),
		CodeChallenge:       form.Get("code_challenge"),
		CodeChallengeMethod: form.Get("code_challenge_method"),
		SessionID:           form.Get("session_id"),
		AccessToken:         form.Get("access_token"),
	}
}

func (r *Request) responseTypes() fosite.Arguments {
	return fosite.RemoveEmpty(strings.Fields(r.ResponseType))
}

func (r *Request) prompts() fosite.Arguments {
	return fosite.RemoveEmpty(strings.Fields(r.Prompt))
}

// maxAge returns the max_age parameter, or -1 when absent or invalid.
func (r *Request) maxAge() int {
	if r.MaxAge == "" {
		return -1
	}
	n, err := strconv.Atoi(r.MaxAge)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// isImplicit reports whether the response type returns anything besides a
// code from the authorization endpoint.
func isImplicit(types fosite.Arguments) bool {
	return types.HasOneOf("token", "id_token")
}

// ResponseMode selects how the result is returned. An explicit query or
// fragment mode wins, except that tokens are never returned in the query.
// Without one, implicit types use the fragment.
func ResponseMode(types fosite.Arguments, explicit string) (string, error) {
	switch explicit {
	case ResponseModeQuery:
		if isImplicit(types) {
			return "", fosite.ErrInvalidRequest.WithHint("The query response_mode cannot carry tokens.")
		}
		return explicit, nil
	case ResponseModeFragment:
		return explicit, nil
	case "":
	default:
		return "", fosite.ErrInvalidRequest.WithHintf("The response_mode %q is not supported.", explicit)
	}
	if isImplicit(types) {
		return ResponseModeFragment, nil
	}
	return ResponseModeQuery, nil
}
