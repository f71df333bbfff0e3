// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registration implements OpenID Connect Dynamic Client Registration
// (RFC 7591 / RFC 7592): metadata validation, sector identifier
// verification, credential generation and client read/update.
package registration

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// Policy holds the server's registration rules.
type Policy struct {
	// RedirectHostWhitelist, when non-empty, restricts redirect URI hosts to
	// these path.Match patterns (e.g. "*.example.com").
	RedirectHostWhitelist []string `json:"redirect_host_whitelist,omitempty" yaml:"redirect_host_whitelist,omitempty"`
	// RedirectHostBlacklist rejects redirect URI hosts matching these patterns.
	RedirectHostBlacklist []string `json:"redirect_host_blacklist,omitempty" yaml:"redirect_host_blacklist,omitempty"`
	// CustomAttributes lists the custom attribute names kept at registration.
	CustomAttributes []string `json:"custom_attributes,omitempty" yaml:"custom_attributes,omitempty"`
	// SecretLifetime is the client secret lifetime; zero means secrets never expire.
	SecretLifetime time.Duration `json:"secret_lifetime,omitempty" yaml:"secret_lifetime,omitempty"`
	// SupportedScopes, when non-empty, drops unknown requested scopes.
	SupportedScopes []string `json:"supported_scopes,omitempty" yaml:"supported_scopes,omitempty"`
	// DefaultScopes are granted when a client registers no scope.
	DefaultScopes []string `json:"default_scopes,omitempty" yaml:"default_scopes,omitempty"`
}

// Registry registers and manages clients.
type Registry struct {
	store    storage.ClientStore
	policy   Policy
	sector   *SectorVerifier
	endpoint string
	now      func() time.Time
}

// NewRegistry creates a registry. endpoint is the absolute URL of the
// registration endpoint, used to build registration_client_uri.
func NewRegistry(store storage.ClientStore, policy Policy, sector *SectorVerifier, endpoint string) *Registry {
	if sector == nil {
		sector = NewSectorVerifier(nil, 0)
	}
	return &Registry{
		store:    store,
		policy:   policy,
		sector:   sector,
		endpoint: endpoint,
		now:      time.Now,
	}
}

// Register validates md and persists a new client. Nothing is stored unless
// every rule passes.
func (r *Registry) Register(ctx context.Context, md *Metadata) (*Response, error) {
	if err := r.validate(ctx, md); err != nil {
		return nil, err
	}

	secret, err := randomToken()
	if err != nil {
		return nil, err
	}
	registrationToken, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC().Truncate(time.Second)
	client := &storage.Client{
		ID:                    uuid.NewString(),
		IssuedAt:              now,
		RegistrationTokenHash: hashToken(registrationToken),
	}
	if md.TokenEndpointAuthMethod != AuthMethodNone {
		client.Secret = secret
		client.SecretExpiresAt = r.secretExpiry(now)
	}
	applyMetadata(client, md, r.scopes(md.Scope))

	if err := r.store.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}
	logger.Infow("registered client",
		"client_id", client.ID,
		"application_type", client.ApplicationType,
		"auth_method", client.TokenEndpointAuthMethod,
	)
	return newResponse(client, registrationToken, r.clientURI(client.ID)), nil
}

// Read returns the client's current metadata (RFC 7592 Section 2.1).
func (r *Registry) Read(ctx context.Context, clientID, registrationToken string) (*Response, error) {
	client, err := r.authorize(ctx, clientID, registrationToken)
	if err != nil {
		return nil, err
	}
	return newResponse(client, registrationToken, r.clientURI(client.ID)), nil
}

// Update replaces the client's metadata (RFC 7592 Section 2.2). Credentials
// and server-assigned fields are kept.
func (r *Registry) Update(ctx context.Context, clientID, registrationToken string, md *Metadata) (*Response, error) {
	client, err := r.authorize(ctx, clientID, registrationToken)
	if err != nil {
		return nil, err
	}
	if err := r.validate(ctx, md); err != nil {
		return nil, err
	}

	if md.TokenEndpointAuthMethod == AuthMethodNone {
		client.Secret = ""
		client.SecretExpiresAt = time.Time{}
	} else if client.Secret == "" {
		if client.Secret, err = randomToken(); err != nil {
			return nil, err
		}
		client.SecretExpiresAt = r.secretExpiry(r.now().UTC().Truncate(time.Second))
	}
	applyMetadata(client, md, r.scopes(md.Scope))

	if err := r.saveClient(ctx, client); err != nil {
		return nil, err
	}
	logger.Infow("updated client", "client_id", client.ID)
	return newResponse(client, registrationToken, r.clientURI(client.ID)), nil
}

// RotateSecret issues a new client secret with a fresh expiry.
func (r *Registry) RotateSecret(ctx context.Context, clientID, registrationToken string) (*Response, error) {
	client, err := r.authorize(ctx, clientID, registrationToken)
	if err != nil {
		return nil, err
	}
	if client.TokenEndpointAuthMethod == AuthMethodNone {
		return nil, oautherr.ErrInvalidClientMetadata.WithHint("Public clients have no secret to rotate.")
	}

	if client.Secret, err = randomToken(); err != nil {
		return nil, err
	}
	client.SecretExpiresAt = r.secretExpiry(r.now().UTC().Truncate(time.Second))
	if err := r.saveClient(ctx, client); err != nil {
		return nil, err
	}
	logger.Infow("rotated client secret", "client_id", client.ID)
	return newResponse(client, registrationToken, r.clientURI(client.ID)), nil
}

// saveClient writes client back at the revision it was read at. A change
// that lost a race is refused instead of overwriting the winner.
func (r *Registry) saveClient(ctx context.Context, client *storage.Client) error {
	err := r.store.UpdateClient(ctx, client)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConflict):
		logger.Warnw("refused concurrent client modification", "client_id", client.ID)
		return oautherr.ErrConcurrentModification
	case errors.Is(err, storage.ErrNotFound):
		return oautherr.ErrInvalidToken
	default:
		return fmt.Errorf("failed to update client: %w", err)
	}
}

func (r *Registry) validate(ctx context.Context, md *Metadata) error {
	if err := r.validateMetadata(md); err != nil {
		return err
	}
	if md.SectorIdentifierURI != "" {
		return r.sector.Verify(ctx, md.SectorIdentifierURI, md.RedirectURIs)
	}
	return nil
}

// authorize loads the client and checks the registration access token.
// Unknown clients and bad tokens are indistinguishable to the caller.
func (r *Registry) authorize(ctx context.Context, clientID, registrationToken string) (*storage.Client, error) {
	if clientID == "" || registrationToken == "" {
		return nil, oautherr.ErrInvalidToken.WithHint("A client_id and registration access token are required.")
	}
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oautherr.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	want := []byte(client.RegistrationTokenHash)
	got := []byte(hashToken(registrationToken))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, oautherr.ErrInvalidToken
	}
	return client, nil
}

func (r *Registry) scopes(requested string) []string {
	scopes := strings.Fields(requested)
	if len(r.policy.SupportedScopes) > 0 {
		scopes = slices.DeleteFunc(scopes, func(s string) bool {
			return !slices.Contains(r.policy.SupportedScopes, s)
		})
	}
	if len(scopes) == 0 {
		scopes = slices.Clone(r.policy.DefaultScopes)
	}
	return fosite.RemoveEmpty(scopes)
}

func (r *Registry) secretExpiry(issuedAt time.Time) time.Time {
	if r.policy.SecretLifetime <= 0 {
		return time.Time{}
	}
	return issuedAt.Add(r.policy.SecretLifetime)
}

func (r *Registry) clientURI(clientID string) string {
	if r.endpoint == "" {
		return ""
	}
	return r.endpoint + "?client_id=" + url.QueryEscape(clientID)
}

// randomToken returns 32 random bytes, base64url encoded.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
