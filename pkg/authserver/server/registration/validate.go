// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
)

// Application types.
const (
	ApplicationTypeWeb    = "web"
	ApplicationTypeNative = "native"
)

// Token endpoint authentication methods.
const (
	AuthMethodNone              = "none"
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodClientSecretJWT   = "client_secret_jwt"
	AuthMethodPrivateKeyJWT     = "private_key_jwt"
)

// Subject types.
const (
	SubjectTypePublic   = "public"
	SubjectTypePairwise = "pairwise"
)

// Grant types a client may register.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantImplicit          = "implicit"
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	GrantExchangeToken     = "oxauth_exchange_token"
	GrantUMATicket         = "urn:ietf:params:oauth:grant-type:uma-ticket"
)

var registrableGrantTypes = []string{
	GrantAuthorizationCode, GrantImplicit, GrantPassword, GrantClientCredentials,
	GrantRefreshToken, GrantExchangeToken, GrantUMATicket,
}

// Validation limits to prevent DoS attacks via excessively large requests.
const (
	// MaxRedirectURICount is the maximum number of redirect URIs allowed per client.
	MaxRedirectURICount = 20

	// MaxRedirectURILength is the maximum length of a single redirect URI.
	MaxRedirectURILength = 2048
)

// ValidateRedirectURI checks that uri is absolute and carries no fragment.
func ValidateRedirectURI(uri string) error {
	if len(uri) > MaxRedirectURILength {
		return fmt.Errorf("redirect URI exceeds %d characters", MaxRedirectURILength)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}
	if !u.IsAbs() || (u.Host == "" && u.Opaque == "" && u.Path == "") {
		return fmt.Errorf("redirect URI %q must be absolute", uri)
	}
	if u.Fragment != "" || strings.Contains(uri, "#") {
		return fmt.Errorf("redirect URI %q must not contain a fragment", uri)
	}
	return nil
}

// IsLoopbackHost reports whether host (without port) names the local machine.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ParseResponseType splits a response_type value into its sorted parts.
func ParseResponseType(rt string) fosite.Arguments {
	parts := fosite.Arguments(strings.Fields(rt))
	slices.Sort(parts)
	return parts
}

// HasImplicit reports whether any registered response type yields tokens
// directly from the authorization endpoint.
func HasImplicit(responseTypes []string) bool {
	for _, rt := range responseTypes {
		if ParseResponseType(rt).HasOneOf("token", "id_token") {
			return true
		}
	}
	return false
}

func usesCode(responseTypes []string) bool {
	for _, rt := range responseTypes {
		if ParseResponseType(rt).Has("code") {
			return true
		}
	}
	return false
}

// validateMetadata applies defaults and checks md against policy. It never
// performs I/O; the sector identifier is checked separately.
func (r *Registry) validateMetadata(md *Metadata) error {
	if md.ApplicationType == "" {
		return oautherr.ErrInvalidClientMetadata.WithHint("application_type is required.")
	}
	if md.ApplicationType != ApplicationTypeWeb && md.ApplicationType != ApplicationTypeNative {
		return oautherr.ErrInvalidClientMetadata.WithHintf("Unsupported application_type %q.", md.ApplicationType)
	}
	if strings.TrimSpace(md.ClientName) == "" {
		return oautherr.ErrInvalidClientMetadata.WithHint("client_name is required.")
	}

	if err := normalizeResponseTypes(md); err != nil {
		return err
	}
	if err := normalizeGrantTypes(md); err != nil {
		return err
	}
	if md.TokenEndpointAuthMethod == "" {
		md.TokenEndpointAuthMethod = AuthMethodClientSecretBasic
	}
	if md.SubjectType == "" {
		md.SubjectType = SubjectTypePublic
	}

	if err := r.validateRedirectURIs(md); err != nil {
		return err
	}
	for _, uri := range append(slices.Clone(md.PostLogoutRedirectURIs), md.ClaimsRedirectURIs...) {
		if err := ValidateRedirectURI(uri); err != nil {
			return oautherr.ErrInvalidRedirectURI.WithHint(err.Error())
		}
	}
	for _, uri := range []string{md.FrontChannelLogoutURI, md.BackChannelLogoutURI} {
		if uri == "" {
			continue
		}
		if err := ValidateRedirectURI(uri); err != nil {
			return oautherr.ErrInvalidClientMetadata.WithHint(err.Error())
		}
	}

	if err := validateKeys(md); err != nil {
		return err
	}
	if err := validateAlgorithms(md); err != nil {
		return err
	}
	if md.SectorIdentifierURI != "" {
		u, err := url.Parse(md.SectorIdentifierURI)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return oautherr.ErrInvalidClientMetadata.WithHint("sector_identifier_uri must be an https URL.")
		}
	}
	if md.SubjectType == SubjectTypePairwise && md.SectorIdentifierURI == "" && len(redirectHosts(md.RedirectURIs)) > 1 {
		return oautherr.ErrInvalidClientMetadata.WithHint(
			"A pairwise client with redirect_uris on several hosts must register a sector_identifier_uri.")
	}

	md.CustomAttributes = r.filterCustomAttributes(md.CustomAttributes)
	return nil
}

func normalizeResponseTypes(md *Metadata) error {
	if len(md.ResponseTypes) == 0 {
		md.ResponseTypes = []string{"code"}
	}
	for i, rt := range md.ResponseTypes {
		parts := ParseResponseType(rt)
		if len(parts) == 0 {
			return oautherr.ErrInvalidClientMetadata.WithHint("Empty response_type.")
		}
		for _, p := range parts {
			if p != "code" && p != "token" && p != "id_token" {
				return oautherr.ErrInvalidClientMetadata.WithHintf("Unsupported response_type %q.", rt)
			}
		}
		md.ResponseTypes[i] = strings.Join(parts, " ")
	}
	return nil
}

func normalizeGrantTypes(md *Metadata) error {
	if len(md.GrantTypes) == 0 {
		if usesCode(md.ResponseTypes) {
			md.GrantTypes = append(md.GrantTypes, GrantAuthorizationCode, GrantRefreshToken)
		}
		if HasImplicit(md.ResponseTypes) {
			md.GrantTypes = append(md.GrantTypes, GrantImplicit)
		}
	}
	for _, gt := range md.GrantTypes {
		if !slices.Contains(registrableGrantTypes, gt) {
			return oautherr.ErrInvalidClientMetadata.WithHintf("Unsupported grant_type %q.", gt)
		}
	}
	return nil
}

// validateRedirectURIs enforces syntax, application-type rules, and the
// configured host allow and deny lists.
func (r *Registry) validateRedirectURIs(md *Metadata) error {
	implicit := HasImplicit(md.ResponseTypes)
	if len(md.RedirectURIs) == 0 {
		if usesCode(md.ResponseTypes) || implicit {
			return oautherr.ErrInvalidRedirectURI.WithHint("redirect_uris is required.")
		}
		return nil
	}
	if len(md.RedirectURIs) > MaxRedirectURICount {
		return oautherr.ErrInvalidRedirectURI.WithHintf("Too many redirect_uris (maximum %d).", MaxRedirectURICount)
	}

	for _, uri := range md.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return oautherr.ErrInvalidRedirectURI.WithHint(err.Error())
		}
		u, _ := url.Parse(uri)
		host := u.Hostname()

		switch {
		case md.ApplicationType == ApplicationTypeWeb && implicit:
			if u.Scheme != "https" && !(u.Scheme == "http" && IsLoopbackHost(host)) {
				return oautherr.ErrInvalidRedirectURI.WithHintf(
					"Web clients using implicit flows must use https redirect URIs: %s", uri)
			}
		case md.ApplicationType == ApplicationTypeNative && implicit:
			if u.Scheme == "https" && !IsLoopbackHost(host) {
				return oautherr.ErrInvalidRedirectURI.WithHintf(
					"Native clients using implicit flows must use a custom scheme or localhost: %s", uri)
			}
		}

		if host != "" {
			if len(r.policy.RedirectHostWhitelist) > 0 && !matchesAny(host, r.policy.RedirectHostWhitelist) {
				return oautherr.ErrInvalidRedirectURI.WithHintf("Redirect host %q is not allowed.", host)
			}
			if matchesAny(host, r.policy.RedirectHostBlacklist) {
				return oautherr.ErrInvalidRedirectURI.WithHintf("Redirect host %q is blocked.", host)
			}
		}
	}
	return nil
}

func matchesAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, host); ok {
			return true
		}
	}
	return false
}

func redirectHosts(uris []string) []string {
	var hosts []string
	for _, uri := range uris {
		if u, err := url.Parse(uri); err == nil && !slices.Contains(hosts, u.Host) {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

func validateKeys(md *Metadata) error {
	if md.JWKSURI != "" && len(md.JWKS) > 0 {
		return oautherr.ErrInvalidClientMetadata.WithHint("jwks and jwks_uri are mutually exclusive.")
	}
	if md.JWKSURI != "" {
		u, err := url.Parse(md.JWKSURI)
		if err != nil || !u.IsAbs() {
			return oautherr.ErrInvalidClientMetadata.WithHint("jwks_uri must be an absolute URL.")
		}
	}
	if len(md.JWKS) > 0 {
		if _, err := jwk.Parse(md.JWKS); err != nil {
			return oautherr.ErrInvalidClientMetadata.WithHintf("jwks is not a valid JWK set: %v", err)
		}
	}
	if md.TokenEndpointAuthMethod == AuthMethodPrivateKeyJWT && md.JWKSURI == "" && len(md.JWKS) == 0 {
		return oautherr.ErrInvalidClientMetadata.WithHint("private_key_jwt requires jwks or jwks_uri.")
	}
	return nil
}

func validateAlgorithms(md *Metadata) error {
	if alg := md.RequestObjectSigningAlg; alg != "" && alg != jws.AlgNone && !jws.IsSupported(alg) {
		return oautherr.ErrInvalidClientMetadata.WithHintf("Unsupported request_object_signing_alg %q.", alg)
	}
	if alg := md.IDTokenSignedAlg; alg != "" && !jws.IsSupported(alg) {
		return oautherr.ErrInvalidClientMetadata.WithHintf("Unsupported id_token_signed_response_alg %q.", alg)
	}
	return nil
}

func (r *Registry) filterCustomAttributes(attrs map[string]string) map[string]string {
	var kept map[string]string
	for k, v := range attrs {
		if !slices.Contains(r.policy.CustomAttributes, k) {
			continue
		}
		if kept == nil {
			kept = make(map[string]string)
		}
		kept[k] = v
	}
	return kept
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
