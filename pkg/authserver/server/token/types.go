// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// Request is a parsed token endpoint request.
type Request struct {
	GrantType   string
	Form        url.Values
	Credentials Credentials
}

// Response is the token endpoint success body. Extra members are written at
// the top level.
type Response struct {
	AccessToken  string         `json:"access_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	IDToken      string         `json:"id_token,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	Extra        map[string]any `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	out := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		out[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// GrantHandler redeems one grant type for an authenticated client.
type GrantHandler func(ctx context.Context, client *storage.Client, req *Request) (*Response, error)

// ValidationResult is the body of the token validation endpoint.
type ValidationResult struct {
	Valid     bool  `json:"valid"`
	ExpiresIn int64 `json:"expires_in"`
}
