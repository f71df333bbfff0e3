// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// Metadata is the client metadata accepted by the registration endpoint
// (OpenID Connect Dynamic Client Registration 1.0, Section 2).
type Metadata struct {
	RedirectURIs            []string        `json:"redirect_uris,omitempty"`
	ClaimsRedirectURIs      []string        `json:"claims_redirect_uris,omitempty"`
	PostLogoutRedirectURIs  []string        `json:"post_logout_redirect_uris,omitempty"`
	ResponseTypes           []string        `json:"response_types,omitempty"`
	GrantTypes              []string        `json:"grant_types,omitempty"`
	ApplicationType         string          `json:"application_type,omitempty"`
	ClientName              string          `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string          `json:"token_endpoint_auth_method,omitempty"`
	RequestObjectSigningAlg string          `json:"request_object_signing_alg,omitempty"`
	IDTokenSignedAlg        string          `json:"id_token_signed_response_alg,omitempty"`
	JWKSURI                 string          `json:"jwks_uri,omitempty"`
	JWKS                    json.RawMessage `json:"jwks,omitempty"`
	SectorIdentifierURI     string          `json:"sector_identifier_uri,omitempty"`
	SubjectType             string          `json:"subject_type,omitempty"`
	Contacts                []string        `json:"contacts,omitempty"`
	LogoURI                 string          `json:"logo_uri,omitempty"`
	PolicyURI               string          `json:"policy_uri,omitempty"`
	ClientURI               string          `json:"client_uri,omitempty"`
	TOSURI                  string          `json:"tos_uri,omitempty"`
	Scope                   string          `json:"scope,omitempty"`
	DefaultMaxAge           int             `json:"default_max_age,omitempty"`
	DefaultACRValues        []string        `json:"default_acr_values,omitempty"`

	FrontChannelLogoutURI             string `json:"frontchannel_logout_uri,omitempty"`
	FrontChannelLogoutSessionRequired bool   `json:"frontchannel_logout_session_required,omitempty"`
	BackChannelLogoutURI              string `json:"backchannel_logout_uri,omitempty"`
	BackChannelLogoutSessionRequired  bool   `json:"backchannel_logout_session_required,omitempty"`

	// EchoCustomAttributes opts into receiving custom attributes at the token endpoint.
	EchoCustomAttributes bool `json:"custom_attributes_echo,omitempty"`

	// CustomAttributes holds every top-level string member that is not a
	// standard metadata field. Only allowlisted keys survive registration.
	CustomAttributes map[string]string `json:"-"`
}

// knownFields are the JSON members decoded into Metadata's typed fields.
var knownFields = map[string]bool{
	"redirect_uris": true, "claims_redirect_uris": true, "post_logout_redirect_uris": true,
	"response_types": true, "grant_types": true, "application_type": true,
	"client_name": true, "token_endpoint_auth_method": true, "request_object_signing_alg": true,
	"id_token_signed_response_alg": true, "jwks_uri": true, "jwks": true,
	"sector_identifier_uri": true, "subject_type": true, "contacts": true,
	"logo_uri": true, "policy_uri": true, "client_uri": true, "tos_uri": true,
	"scope": true, "default_max_age": true, "default_acr_values": true,
	"frontchannel_logout_uri": true, "frontchannel_logout_session_required": true,
	"backchannel_logout_uri": true, "backchannel_logout_session_required": true,
	"custom_attributes_echo": true,
	// Server-assigned members a client may send back on update.
	"client_id": true, "client_secret": true, "registration_access_token": true,
	"registration_client_uri": true, "client_id_issued_at": true, "client_secret_expires_at": true,
}

// Response is the registration response (RFC 7591 Section 3.2.1). Custom
// attributes are flattened into the top-level object.
type Response struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string `json:"registration_client_uri,omitempty"`
	ClientIDIssuedAt        int64  `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64  `json:"client_secret_expires_at"`
	Metadata
}

// MarshalJSON flattens custom attributes next to the standard members.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	base, err := json.Marshal(plain(r))
	if err != nil || len(r.CustomAttributes) == 0 {
		return base, err
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.CustomAttributes {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// newResponse renders a stored client. A secret expiry of 0 means never.
func newResponse(c *storage.Client, registrationToken, clientURI string) *Response {
	resp := &Response{
		ClientID:                c.ID,
		ClientSecret:            c.Secret,
		RegistrationAccessToken: registrationToken,
		RegistrationClientURI:   clientURI,
		ClientIDIssuedAt:        c.IssuedAt.Unix(),
		ClientSecretExpiresAt:   unixOrZero(c.SecretExpiresAt),
		Metadata:                MetadataFromClient(c),
	}
	return resp
}

// MetadataFromClient renders a stored client as metadata. Credentials are
// not included.
func MetadataFromClient(c *storage.Client) Metadata {
	return Metadata{
		RedirectURIs:                      c.RedirectURIs,
		ClaimsRedirectURIs:                c.ClaimsRedirectURIs,
		PostLogoutRedirectURIs:            c.PostLogoutRedirectURIs,
		ResponseTypes:                     c.ResponseTypes,
		GrantTypes:                        c.GrantTypes,
		ApplicationType:                   c.ApplicationType,
		ClientName:                        c.Name,
		TokenEndpointAuthMethod:           c.TokenEndpointAuthMethod,
		RequestObjectSigningAlg:           c.RequestObjectSigningAlg,
		IDTokenSignedAlg:                  c.IDTokenSignedAlg,
		JWKSURI:                           c.JWKSURI,
		JWKS:                              c.JWKS,
		SectorIdentifierURI:               c.SectorIdentifierURI,
		SubjectType:                       c.SubjectType,
		Contacts:                          c.Contacts,
		LogoURI:                           c.LogoURI,
		PolicyURI:                         c.PolicyURI,
		ClientURI:                         c.ClientURI,
		TOSURI:                            c.TOSURI,
		Scope:                             joinScopes(c.Scopes),
		DefaultMaxAge:                     c.DefaultMaxAge,
		DefaultACRValues:                  c.DefaultACRValues,
		FrontChannelLogoutURI:             c.FrontChannelLogoutURI,
		FrontChannelLogoutSessionRequired: c.FrontChannelLogoutSessionRequired,
		BackChannelLogoutURI:              c.BackChannelLogoutURI,
		BackChannelLogoutSessionRequired:  c.BackChannelLogoutSessionRequired,
		EchoCustomAttributes:              c.EchoCustomAttributes,
		CustomAttributes:                  maps.Clone(c.CustomAttributes),
	}
}

// applyMetadata copies validated metadata onto a client, leaving the
// server-assigned credentials untouched.
func applyMetadata(c *storage.Client, md *Metadata, scopes []string) {
	c.Name = md.ClientName
	c.ApplicationType = md.ApplicationType
	c.RedirectURIs = md.RedirectURIs
	c.ClaimsRedirectURIs = md.ClaimsRedirectURIs
	c.PostLogoutRedirectURIs = md.PostLogoutRedirectURIs
	c.ResponseTypes = md.ResponseTypes
	c.GrantTypes = md.GrantTypes
	c.TokenEndpointAuthMethod = md.TokenEndpointAuthMethod
	c.RequestObjectSigningAlg = md.RequestObjectSigningAlg
	c.IDTokenSignedAlg = md.IDTokenSignedAlg
	c.JWKSURI = md.JWKSURI
	c.JWKS = md.JWKS
	c.SectorIdentifierURI = md.SectorIdentifierURI
	c.SubjectType = md.SubjectType
	c.Contacts = md.Contacts
	c.LogoURI = md.LogoURI
	c.PolicyURI = md.PolicyURI
	c.ClientURI = md.ClientURI
	c.TOSURI = md.TOSURI
	c.Scopes = scopes
	c.DefaultMaxAge = md.DefaultMaxAge
	c.DefaultACRValues = md.DefaultACRValues
	c.FrontChannelLogoutURI = md.FrontChannelLogoutURI
	c.FrontChannelLogoutSessionRequired = md.FrontChannelLogoutSessionRequired
	c.BackChannelLogoutURI = md.BackChannelLogoutURI
	c.BackChannelLogoutSessionRequired = md.BackChannelLogoutSessionRequired
	c.EchoCustomAttributes = md.EchoCustomAttributes
	c.CustomAttributes = md.CustomAttributes
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
