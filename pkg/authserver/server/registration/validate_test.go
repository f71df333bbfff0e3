// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestValidateRedirectURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		uri         string
		expectError bool
	}{
		{"https with any host", "https://example.com/callback", false},
		{"http loopback with port", "http://127.0.0.1:8080/callback", false},
		{"custom scheme", "myapp://callback", false},
		{"relative path", "/callback", true},
		{"missing scheme", "://invalid", true},
		{"fragment", "https://example.com/cb#frag", true},
		{"empty fragment marker", "https://example.com/cb#", true},
		{"exceeds max length", "https://example.com/" + strings.Repeat("a", MaxRedirectURILength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRedirectURI(tt.uri)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRedirectURI_FragmentProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		host := rapid.StringMatching(`[a-z]{1,12}\.(com|org|net)`).Draw(t, "host")
		p := rapid.StringMatching(`(/[a-z0-9]{0,8}){0,3}`).Draw(t, "path")
		frag := rapid.StringMatching(`[a-zA-Z0-9=&]{0,16}`).Draw(t, "fragment")

		uri := "https://" + host + p + "#" + frag
		if ValidateRedirectURI(uri) == nil {
			t.Fatalf("redirect uri with fragment accepted: %s", uri)
		}
		if err := ValidateRedirectURI("https://" + host + p); err != nil {
			t.Fatalf("valid redirect uri rejected: %v", err)
		}
	})
}

func TestValidateMetadata(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, Policy{
		RedirectHostWhitelist: []string{"*.example.com", "localhost", "127.0.0.1"},
		RedirectHostBlacklist: []string{"blocked.example.com"},
	}, nil, "")

	tests := []struct {
		name    string
		mutate  func(md *Metadata)
		wantErr string
	}{
		{"valid web client", func(*Metadata) {}, ""},
		{"missing application_type", func(md *Metadata) { md.ApplicationType = "" }, "invalid_client_metadata"},
		{"unknown application_type", func(md *Metadata) { md.ApplicationType = "desktop" }, "invalid_client_metadata"},
		{"missing client_name", func(md *Metadata) { md.ClientName = " " }, "invalid_client_metadata"},
		{"missing redirect uris for code", func(md *Metadata) { md.RedirectURIs = nil }, "invalid_redirect_uri"},
		{"fragment in redirect uri", func(md *Metadata) { md.RedirectURIs = []string{"https://rp.example.com/cb#x"} }, "invalid_redirect_uri"},
		{"web implicit over http", func(md *Metadata) { md.RedirectURIs = []string{"http://rp.example.com/cb"} }, "invalid_redirect_uri"},
		{"web implicit over http localhost", func(md *Metadata) { md.RedirectURIs = []string{"http://localhost:8080/cb"} }, ""},
		{"web code-only over http", func(md *Metadata) {
			md.ResponseTypes = []string{"code"}
			md.RedirectURIs = []string{"http://rp.example.com/cb"}
		}, ""},
		{"native implicit over https", func(md *Metadata) { md.ApplicationType = ApplicationTypeNative }, "invalid_redirect_uri"},
		{"native implicit custom scheme", func(md *Metadata) {
			md.ApplicationType = ApplicationTypeNative
			md.RedirectURIs = []string{"com.example.app:/cb"}
		}, ""},
		{"host not whitelisted", func(md *Metadata) { md.RedirectURIs = []string{"https://other.org/cb"} }, "invalid_redirect_uri"},
		{"host blacklisted", func(md *Metadata) { md.RedirectURIs = []string{"https://blocked.example.com/cb"} }, "invalid_redirect_uri"},
		{"unknown response type", func(md *Metadata) { md.ResponseTypes = []string{"code device"} }, "invalid_client_metadata"},
		{"unknown grant type", func(md *Metadata) { md.GrantTypes = []string{"urn:x:unknown"} }, "invalid_client_metadata"},
		{"jwks and jwks_uri", func(md *Metadata) {
			md.JWKSURI = "https://rp.example.com/jwks"
			md.JWKS = []byte(`{"keys":[]}`)
		}, "invalid_client_metadata"},
		{"private_key_jwt without keys", func(md *Metadata) { md.TokenEndpointAuthMethod = AuthMethodPrivateKeyJWT }, "invalid_client_metadata"},
		{"bad request object alg", func(md *Metadata) { md.RequestObjectSigningAlg = "EdDSA" }, "invalid_client_metadata"},
		{"request object alg none", func(md *Metadata) { md.RequestObjectSigningAlg = "none" }, ""},
		{"http sector identifier", func(md *Metadata) { md.SectorIdentifierURI = "http://rp.example.com/s" }, "invalid_client_metadata"},
		{"pairwise across hosts without sector", func(md *Metadata) {
			md.SubjectType = SubjectTypePairwise
			md.RedirectURIs = []string{"https://a.example.com/cb", "https://b.example.com/cb"}
		}, "invalid_client_metadata"},
		{"client credentials grant alongside token response", func(md *Metadata) {
			md.ResponseTypes = []string{"token"}
			md.GrantTypes = []string{GrantClientCredentials}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			md := webMetadata()
			md.ResponseTypes = []string{"code", "token"}
			tt.mutate(md)

			err := registry.validateMetadata(md)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			requireRFCError(t, err, tt.wantErr)
		})
	}
}

func TestHasImplicit(t *testing.T) {
	t.Parallel()
	assert.False(t, HasImplicit([]string{"code"}))
	assert.True(t, HasImplicit([]string{"code", "code id_token"}))
	assert.True(t, HasImplicit([]string{"token"}))
	assert.Equal(t, "code id_token token", strings.Join(ParseResponseType("token code id_token"), " "))
}
