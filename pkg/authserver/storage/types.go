// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides storage interfaces and implementations for the
// OpenID Connect provider: registered clients, authorization codes, tokens,
// sessions, UMA resources and tickets, and federation trusts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"
)

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks -source=types.go Storage

var (
	// ErrNotFound is returned when an entry does not exist or has expired.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned when creating an entry whose key is taken.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrAlreadyUsed is returned when a single-use entry (authorization code,
	// rotated refresh token) is redeemed a second time.
	ErrAlreadyUsed = errors.New("storage: already used")

	// ErrConflict is returned when an update was based on a stale revision.
	ErrConflict = errors.New("storage: conflicting update")
)

// Client is a registered OAuth 2.0 / OpenID Connect client.
type Client struct {
	ID                      string          `json:"client_id"`
	Secret                  string          `json:"client_secret,omitempty"`
	SecretExpiresAt         time.Time       `json:"client_secret_expires_at,omitempty"`
	IssuedAt                time.Time       `json:"client_id_issued_at"`
	RegistrationTokenHash   string          `json:"registration_token_hash,omitempty"`
	Name                    string          `json:"client_name"`
	ApplicationType         string          `json:"application_type"`
	RedirectURIs            []string        `json:"redirect_uris,omitempty"`
	ClaimsRedirectURIs      []string        `json:"claims_redirect_uris,omitempty"`
	PostLogoutRedirectURIs  []string        `json:"post_logout_redirect_uris,omitempty"`
	ResponseTypes           []string        `json:"response_types,omitempty"`
	GrantTypes              []string        `json:"grant_types,omitempty"`
	TokenEndpointAuthMethod string          `json:"token_endpoint_auth_method"`
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
	Scopes                  []string        `json:"scopes,omitempty"`
	DefaultMaxAge           int             `json:"default_max_age,omitempty"`
	DefaultACRValues        []string        `json:"default_acr_values,omitempty"`
	TrustedClient           bool            `json:"trusted_client,omitempty"`

	FrontChannelLogoutURI             string `json:"frontchannel_logout_uri,omitempty"`
	FrontChannelLogoutSessionRequired bool   `json:"frontchannel_logout_session_required,omitempty"`
	BackChannelLogoutURI              string `json:"backchannel_logout_uri,omitempty"`
	BackChannelLogoutSessionRequired  bool   `json:"backchannel_logout_session_required,omitempty"`

	// CustomAttributes are allowlisted vendor attributes supplied at registration.
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`

	// EchoCustomAttributes opts the client into receiving CustomAttributes in
	// token endpoint responses.
	EchoCustomAttributes bool `json:"custom_attributes_echo,omitempty"`

	// Revision is the stored version of the client. Stores set it on create
	// and advance it on every successful update.
	Revision int64 `json:"revision,omitempty"`
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasGrantType reports whether the client registered grantType.
func (c *Client) HasGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// IsSecretExpired reports whether the client secret has passed its expiry.
// A zero expiry never expires.
func (c *Client) IsSecretExpired(now time.Time) bool {
	return !c.SecretExpiresAt.IsZero() && now.After(c.SecretExpiresAt)
}

// Clone returns a deep copy, so callers can mutate a client read from storage
// without racing other readers of the in-memory backend.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	out := *c
	out.RedirectURIs = slices.Clone(c.RedirectURIs)
	out.ClaimsRedirectURIs = slices.Clone(c.ClaimsRedirectURIs)
	out.PostLogoutRedirectURIs = slices.Clone(c.PostLogoutRedirectURIs)
	out.ResponseTypes = slices.Clone(c.ResponseTypes)
	out.GrantTypes = slices.Clone(c.GrantTypes)
	out.Contacts = slices.Clone(c.Contacts)
	out.Scopes = slices.Clone(c.Scopes)
	out.DefaultACRValues = slices.Clone(c.DefaultACRValues)
	out.JWKS = slices.Clone(c.JWKS)
	out.CustomAttributes = maps.Clone(c.CustomAttributes)
	return &out
}

// AuthorizationCode is a one-time code issued by the authorization endpoint.
type AuthorizationCode struct {
	// Signature is the hash of the code value; the raw code is never stored.
	Signature           string    `json:"signature"`
	GrantID             string    `json:"grant_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Subject             string    `json:"subject"`
	Scopes              []string  `json:"scopes"`
	Nonce               string    `json:"nonce,omitempty"`
	SessionID           string    `json:"session_id,omitempty"`
	ACR                 string    `json:"acr,omitempty"`
	AuthTime            time.Time `json:"auth_time"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	IssuedAt            time.Time `json:"issued_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// TokenKind distinguishes the opaque tokens kept in storage.
type TokenKind string

const (
	// TokenKindAccess is a bearer access token.
	TokenKindAccess TokenKind = "access_token"
	// TokenKindRefresh is a refresh token.
	TokenKindRefresh TokenKind = "refresh_token"
	// TokenKindExchange is a long-lived token redeemable through the exchange grant.
	TokenKindExchange TokenKind = "exchange_token"
	// TokenKindRPT is a UMA requesting party token.
	TokenKindRPT TokenKind = "rpt"
)

// Token is an opaque token issued by the token or authorization endpoint.
type Token struct {
	// Signature is the hash of the token value; the raw token is never stored.
	Signature string    `json:"signature"`
	Kind      TokenKind `json:"kind"`
	// GrantID links every token minted from the same authorization grant so
	// they can be revoked together.
	GrantID     string       `json:"grant_id"`
	ClientID    string       `json:"client_id"`
	Subject     string       `json:"subject,omitempty"`
	Scopes      []string     `json:"scopes,omitempty"`
	GrantType   string       `json:"grant_type"`
	SessionID   string       `json:"session_id,omitempty"`
	AuthTime    time.Time    `json:"auth_time,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	IssuedAt    time.Time    `json:"issued_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// IsExpired returns true if the token has expired.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// HasScope reports whether the token was granted scope.
func (t *Token) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// Session is an authenticated end-user session shared by SSO clients.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	AuthTime  time.Time `json:"auth_time"`
	ACR       string    `json:"acr,omitempty"`
	ClientIDs []string  `json:"client_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AddClient records clientID as a participant of the session.
func (s *Session) AddClient(clientID string) {
	if !slices.Contains(s.ClientIDs, clientID) {
		s.ClientIDs = append(s.ClientIDs, clientID)
	}
}

// ResourceSet is a UMA protected resource registered by a resource server.
type ResourceSet struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Scopes        []string  `json:"resource_scopes"`
	Type          string    `json:"type,omitempty"`
	OwnerClientID string    `json:"owner_client_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Permission is a requested or granted access to scopes of a resource.
type Permission struct {
	ResourceID string   `json:"resource_id"`
	Scopes     []string `json:"resource_scopes"`
}

// TicketStatus is the lifecycle state of a permission ticket.
type TicketStatus string

const (
	// TicketRequested is a ticket that has not been authorized yet.
	TicketRequested TicketStatus = "requested"
	// TicketAuthorized is a ticket that has been exchanged for an RPT.
	TicketAuthorized TicketStatus = "authorized"
)

// PermissionTicket is a UMA handle for a pending access request.
type PermissionTicket struct {
	Ticket        string       `json:"ticket"`
	OwnerClientID string       `json:"owner_client_id"`
	Permissions   []Permission `json:"permissions"`
	Status        TicketStatus `json:"status"`
	Approved      bool         `json:"approved"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     time.Time    `json:"expires_at"`
}

// FederationTrust records an RP joined to a federation.
type FederationTrust struct {
	ID           string    `json:"id"`
	FederationID string    `json:"federation_id"`
	ClientID     string    `json:"client_id"`
	RedirectURI  string    `json:"redirect_uri"`
	DisplayName  string    `json:"display_name"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClientStore persists registered clients.
type ClientStore interface {
	// CreateClient stores a new client at revision 1. Returns ErrAlreadyExists
	// if the ID is taken.
	CreateClient(ctx context.Context, client *Client) error

	// GetClient loads a client by ID. Returns ErrNotFound if it does not exist.
	GetClient(ctx context.Context, id string) (*Client, error)

	// UpdateClient replaces an existing client when client.Revision matches
	// the stored revision, then advances client.Revision. Returns ErrNotFound
	// if it does not exist and ErrConflict if the revision is stale.
	UpdateClient(ctx context.Context, client *Client) error

	// ListClients returns every registered client.
	ListClients(ctx context.Context) ([]*Client, error)
}

// GrantStore persists authorization codes and tokens.
type GrantStore interface {
	// CreateAuthorizationCode stores a new authorization code.
	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically loads and invalidates a code.
	// The first caller receives the code. Later callers receive the code
	// together with ErrAlreadyUsed so the tokens minted from it can be revoked.
	// Unknown or expired codes return ErrNotFound.
	ConsumeAuthorizationCode(ctx context.Context, signature string) (*AuthorizationCode, error)

	// CreateToken stores a token and indexes it under its grant ID.
	CreateToken(ctx context.Context, token *Token) error

	// GetToken loads an unexpired token. Returns ErrNotFound otherwise.
	GetToken(ctx context.Context, signature string) (*Token, error)

	// ConsumeToken atomically loads and deletes a token, for refresh token rotation.
	ConsumeToken(ctx context.Context, signature string) (*Token, error)

	// DeleteToken removes a token. Deleting an unknown token is not an error.
	DeleteToken(ctx context.Context, signature string) error

	// RevokeGrant removes every token issued under grantID.
	RevokeGrant(ctx context.Context, grantID string) error

	// MarkJTIUsed records a client assertion JTI until exp.
	// Returns ErrAlreadyExists if the JTI has been seen and is not expired.
	MarkJTIUsed(ctx context.Context, jti string, exp time.Time) error
}

// SessionStore persists end-user sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, id string) error
}

// UMAStore persists UMA resource sets and permission tickets.
type UMAStore interface {
	CreateResourceSet(ctx context.Context, rs *ResourceSet) error
	GetResourceSet(ctx context.Context, id string) (*ResourceSet, error)
	CreatePermissionTicket(ctx context.Context, ticket *PermissionTicket) error
	GetPermissionTicket(ctx context.Context, ticket string) (*PermissionTicket, error)
	UpdatePermissionTicket(ctx context.Context, ticket *PermissionTicket) error
}

// FederationStore persists federation trusts.
type FederationStore interface {
	CreateTrust(ctx context.Context, trust *FederationTrust) error
	ListTrusts(ctx context.Context, clientID string) ([]*FederationTrust, error)
}

// Storage combines every store used by the authorization server.
type Storage interface {
	ClientStore
	GrantStore
	SessionStore
	UMAStore
	FederationStore

	// Health checks backend connectivity.
	Health(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
