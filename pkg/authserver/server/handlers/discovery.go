// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/stacklok/oxauth/pkg/authserver/server/crypto"
	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/uma"
	"github.com/stacklok/oxauth/pkg/logger"
)

// Cache-Control max-age values for the public metadata endpoints.
const (
	// DefaultJWKSCacheMaxAge balances caching with timely key rotation.
	DefaultJWKSCacheMaxAge = 3600

	// DefaultDiscoveryCacheMaxAge is the discovery document max-age.
	DefaultDiscoveryCacheMaxAge = 3600
)

// Discovery is the OpenID Provider Metadata document (OpenID Connect
// Discovery 1.0, Section 3).
type Discovery struct {
	Issuer                                 string   `json:"issuer"`
	AuthorizationEndpoint                  string   `json:"authorization_endpoint"`
	TokenEndpoint                          string   `json:"token_endpoint"`
	UserInfoEndpoint                       string   `json:"userinfo_endpoint"`
	ClientInfoEndpoint                     string   `json:"clientinfo_endpoint"`
	JWKSURI                                string   `json:"jwks_uri"`
	RegistrationEndpoint                   string   `json:"registration_endpoint"`
	EndSessionEndpoint                     string   `json:"end_session_endpoint"`
	IntrospectionEndpoint                  string   `json:"introspection_endpoint"`
	RevocationEndpoint                     string   `json:"revocation_endpoint"`
	ValidateTokenEndpoint                  string   `json:"validate_token_endpoint"`
	TokenExchangeEndpoint                  string   `json:"token_exchange_endpoint"`
	FederationMetadataEndpoint             string   `json:"federation_metadata_endpoint,omitempty"`
	FederationEndpoint                     string   `json:"federation_endpoint,omitempty"`
	UMAResourceRegistrationEndpoint        string   `json:"resource_registration_endpoint,omitempty"`
	UMAPermissionEndpoint                  string   `json:"permission_endpoint,omitempty"`
	ScopesSupported                        []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported                 []string `json:"response_types_supported"`
	ResponseModesSupported                 []string `json:"response_modes_supported"`
	GrantTypesSupported                    []string `json:"grant_types_supported"`
	SubjectTypesSupported                  []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported       []string `json:"id_token_signing_alg_values_supported"`
	RequestObjectSigningAlgValuesSupported []string `json:"request_object_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported      []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgsSupported  []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	ClaimsSupported                        []string `json:"claims_supported,omitempty"`
	CodeChallengeMethodsSupported          []string `json:"code_challenge_methods_supported"`
	RequestParameterSupported              bool     `json:"request_parameter_supported"`
	RequestURIParameterSupported           bool     `json:"request_uri_parameter_supported"`
	FrontChannelLogoutSupported            bool     `json:"frontchannel_logout_supported"`
	FrontChannelLogoutSessionSupported     bool     `json:"frontchannel_logout_session_supported"`
	BackChannelLogoutSupported             bool     `json:"backchannel_logout_supported"`
	BackChannelLogoutSessionSupported      bool     `json:"backchannel_logout_session_supported"`
}

func (h *Handler) buildDiscovery() *Discovery {
	grants := []string{
		registration.GrantAuthorizationCode, registration.GrantImplicit,
		registration.GrantPassword, registration.GrantClientCredentials,
		registration.GrantRefreshToken, registration.GrantExchangeToken,
	}
	d := &Discovery{
		Issuer:                h.cfg.Issuer,
		AuthorizationEndpoint: h.endpoint(PathAuthorize),
		TokenEndpoint:         h.endpoint(PathToken),
		UserInfoEndpoint:      h.endpoint(PathUserInfo),
		ClientInfoEndpoint:    h.endpoint(PathClientInfo),
		JWKSURI:               h.endpoint(PathJWKS),
		RegistrationEndpoint:  h.endpoint(PathRegister),
		EndSessionEndpoint:    h.endpoint(PathEndSession),
		IntrospectionEndpoint: h.endpoint(PathIntrospection),
		RevocationEndpoint:    h.endpoint(PathRevoke),
		ValidateTokenEndpoint: h.endpoint(PathValidate),
		TokenExchangeEndpoint: h.endpoint(PathTokenExchange),
		ScopesSupported:       h.cfg.ScopesSupported,
		ResponseTypesSupported: []string{
			"code", "token", "id_token",
			"code token", "code id_token", "token id_token", "code token id_token",
		},
		ResponseModesSupported: []string{"query", "fragment"},
		SubjectTypesSupported:  []string{registration.SubjectTypePublic, registration.SubjectTypePairwise},

		IDTokenSigningAlgValuesSupported:       slices.Clone(jws.SupportedAlgorithms),
		RequestObjectSigningAlgValuesSupported: append([]string{jws.AlgNone}, jws.SupportedAlgorithms...),
		TokenEndpointAuthMethodsSupported: []string{
			registration.AuthMethodClientSecretBasic, registration.AuthMethodClientSecretPost,
			registration.AuthMethodClientSecretJWT, registration.AuthMethodPrivateKeyJWT,
			registration.AuthMethodNone,
		},
		TokenEndpointAuthSigningAlgsSupported: slices.Clone(jws.SupportedAlgorithms),
		ClaimsSupported:                       h.cfg.ClaimsSupported,
		CodeChallengeMethodsSupported:         []string{crypto.PKCEChallengeMethodS256, crypto.PKCEChallengeMethodPlain},
		RequestParameterSupported:             true,
		RequestURIParameterSupported:          true,
		FrontChannelLogoutSupported:           true,
		FrontChannelLogoutSessionSupported:    true,
		BackChannelLogoutSupported:            true,
		BackChannelLogoutSessionSupported:     true,
	}
	if h.svc.UMA != nil {
		grants = append(grants, uma.GrantType)
		d.UMAResourceRegistrationEndpoint = h.endpoint(PathUMAResources)
		d.UMAPermissionEndpoint = h.endpoint(PathUMAPermission)
	}
	if h.svc.Federation != nil {
		d.FederationMetadataEndpoint = h.endpoint(PathFederationMetadata)
		d.FederationEndpoint = h.endpoint(PathFederation)
	}
	d.GrantTypesSupported = grants
	return d
}

// DiscoveryHandler handles GET /.well-known/openid-configuration.
func (h *Handler) DiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultDiscoveryCacheMaxAge))
	writeJSON(w, http.StatusOK, h.discover)
}

// JWKSHandler handles GET /jwks. It returns the public keys that verify
// ID tokens and signed metadata.
func (h *Handler) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.Keys.PublicKeySet(r.Context())
	if err != nil {
		logger.Errorw("failed to load public keys", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultJWKSCacheMaxAge))
	writeJSON(w, http.StatusOK, set)
}
