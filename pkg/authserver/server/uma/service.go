// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package uma implements the UMA protection API (resource and permission
// registration) and the uma-ticket grant that trades an authorized
// permission ticket for a requesting party token (RPT).
package uma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	cedar "github.com/cedar-policy/cedar-go"
	"github.com/google/uuid"
	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

const (
	// ScopeProtection marks a protection API token (PAT).
	ScopeProtection = "uma_protection"

	// DefaultTicketLifetime bounds how long a permission ticket can wait
	// for authorization.
	DefaultTicketLifetime = time.Hour
	// DefaultRPTLifetime is the lifetime of a requesting party token.
	DefaultRPTLifetime = time.Hour

	// DefaultPolicy permits a request only once its ticket was approved by
	// the resource server.
	DefaultPolicy = `permit (principal, action, resource) when { context.approved };`
)

// Config configures the UMA service.
type Config struct {
	TicketLifetime time.Duration `json:"ticket_lifetime,omitempty" yaml:"ticket_lifetime,omitempty"`
	RPTLifetime    time.Duration `json:"rpt_lifetime,omitempty" yaml:"rpt_lifetime,omitempty"`
	// Policies are cedar policies deciding RPT issuance. Requests are
	// evaluated with principal Client::"<client_id>", action
	// Action::"<scope>", resource Resource::"<resource_id>" and a context
	// of {approved, subject}.
	Policies []string `json:"policies,omitempty" yaml:"policies,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.TicketLifetime <= 0 {
		c.TicketLifetime = DefaultTicketLifetime
	}
	if c.RPTLifetime <= 0 {
		c.RPTLifetime = DefaultRPTLifetime
	}
	if len(c.Policies) == 0 {
		c.Policies = []string{DefaultPolicy}
	}
}

// RPTStatus describes a requesting party token.
type RPTStatus struct {
	Active      bool                 `json:"active"`
	ExpiresAt   int64                `json:"exp,omitempty"`
	IssuedAt    int64                `json:"iat,omitempty"`
	Permissions []storage.Permission `json:"permissions,omitempty"`
}

// Service implements the UMA endpoints.
type Service struct {
	store  storage.UMAStore
	grants storage.GrantStore
	minter *token.Minter
	cfg    Config
	now    func() time.Time

	mu       sync.RWMutex
	policies *cedar.PolicySet

	// redeem serializes ticket updates within this process.
	redeem sync.Mutex
}

// NewService creates a Service, compiling the configured policies.
func NewService(store storage.UMAStore, grants storage.GrantStore, minter *token.Minter, cfg Config) (*Service, error) {
	cfg.applyDefaults()
	s := &Service{store: store, grants: grants, minter: minter, cfg: cfg, now: time.Now}
	if err := s.UpdatePolicies(cfg.Policies); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdatePolicies replaces the policy set.
func (s *Service) UpdatePolicies(policies []string) error {
	if len(policies) == 0 {
		return errors.New("at least one UMA policy is required")
	}
	set := cedar.NewPolicySet()
	for i, text := range policies {
		var policy cedar.Policy
		if err := policy.UnmarshalCedar([]byte(text)); err != nil {
			return fmt.Errorf("failed to parse UMA policy %d: %w", i, err)
		}
		set.Add(cedar.PolicyID(fmt.Sprintf("policy%d", i)), &policy)
	}

	s.mu.Lock()
	s.policies = set
	s.mu.Unlock()
	return nil
}

// protectionToken resolves pat to a live access token carrying uma_protection.
func (s *Service) protectionToken(ctx context.Context, pat string) (*storage.Token, error) {
	if pat == "" {
		return nil, oautherr.ErrInvalidToken.WithHint("A protection API token is required.")
	}
	tok, err := s.grants.GetToken(ctx, token.Signature(pat))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oautherr.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load protection token: %w", err)
	}
	if tok.Kind != storage.TokenKindAccess || !s.now().Before(tok.ExpiresAt) {
		return nil, oautherr.ErrInvalidToken
	}
	if !tok.HasScope(ScopeProtection) {
		return nil, oautherr.ErrInsufficientScope.WithHintf("The %s scope is required.", ScopeProtection)
	}
	return tok, nil
}

// RegisterResource registers a protected resource owned by the PAT's client
// and returns its id.
func (s *Service) RegisterResource(ctx context.Context, pat string, rs storage.ResourceSet) (string, error) {
	tok, err := s.protectionToken(ctx, pat)
	if err != nil {
		return "", err
	}
	if rs.Name == "" {
		return "", fosite.ErrInvalidRequest.WithHint("The resource name is required.")
	}
	if len(rs.Scopes) == 0 {
		return "", oautherr.ErrInvalidResourceScope.WithHint("At least one scope is required.")
	}

	rs.ID = uuid.NewString()
	rs.OwnerClientID = tok.ClientID
	rs.Scopes = slices.Compact(slices.Sorted(slices.Values(rs.Scopes)))
	rs.CreatedAt = s.now()
	if err := s.store.CreateResourceSet(ctx, &rs); err != nil {
		return "", fmt.Errorf("failed to store resource set: %w", err)
	}
	slog.Debug("registered UMA resource", "resource_id", rs.ID, "client_id", tok.ClientID)
	return rs.ID, nil
}

// RegisterPermission creates a permission ticket for resources owned by the
// PAT's client.
func (s *Service) RegisterPermission(ctx context.Context, pat string, perms []storage.Permission) (string, error) {
	tok, err := s.protectionToken(ctx, pat)
	if err != nil {
		return "", err
	}
	if len(perms) == 0 {
		return "", fosite.ErrInvalidRequest.WithHint("At least one permission is required.")
	}
	for _, p := range perms {
		rs, err := s.store.GetResourceSet(ctx, p.ResourceID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", oautherr.ErrInvalidResourceID.WithHintf("Unknown resource %q.", p.ResourceID)
			}
			return "", fmt.Errorf("failed to load resource set: %w", err)
		}
		if rs.OwnerClientID != tok.ClientID {
			return "", oautherr.ErrInvalidResourceID.WithHintf("Unknown resource %q.", p.ResourceID)
		}
		if len(p.Scopes) == 0 {
			return "", oautherr.ErrInvalidResourceScope.WithHint("Each permission needs at least one scope.")
		}
		for _, scope := range p.Scopes {
			if !slices.Contains(rs.Scopes, scope) {
				return "", oautherr.ErrInvalidResourceScope.WithHintf("Scope %q is not registered for resource %q.", scope, p.ResourceID)
			}
		}
	}

	now := s.now()
	ticket := &storage.PermissionTicket{
		Ticket:        uuid.NewString(),
		OwnerClientID: tok.ClientID,
		Permissions:   perms,
		Status:        storage.TicketRequested,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.TicketLifetime),
	}
	if err := s.store.CreatePermissionTicket(ctx, ticket); err != nil {
		return "", fmt.Errorf("failed to store permission ticket: %w", err)
	}
	return ticket.Ticket, nil
}

// loadTicket returns a pending ticket or the matching UMA error.
func (s *Service) loadTicket(ctx context.Context, value string) (*storage.PermissionTicket, error) {
	if value == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The ticket parameter is required.")
	}
	ticket, err := s.store.GetPermissionTicket(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oautherr.ErrInvalidTicket
		}
		return nil, fmt.Errorf("failed to load permission ticket: %w", err)
	}
	if !s.now().Before(ticket.ExpiresAt) {
		return nil, oautherr.ErrExpiredTicket
	}
	if ticket.Status != storage.TicketRequested {
		return nil, oautherr.ErrInvalidTicket.WithHint("The ticket was already redeemed.")
	}
	return ticket, nil
}

// ApproveTicket records the resource server's approval of a ticket.
func (s *Service) ApproveTicket(ctx context.Context, pat, value string) error {
	tok, err := s.protectionToken(ctx, pat)
	if err != nil {
		return err
	}
	s.redeem.Lock()
	defer s.redeem.Unlock()

	ticket, err := s.loadTicket(ctx, value)
	if err != nil {
		return err
	}
	if ticket.OwnerClientID != tok.ClientID {
		return oautherr.ErrInvalidTicket
	}
	ticket.Approved = true
	if err := s.store.UpdatePermissionTicket(ctx, ticket); err != nil {
		return fmt.Errorf("failed to update permission ticket: %w", err)
	}
	return nil
}

// authorize evaluates every requested resource and scope against the
// policy set. All of them must be permitted.
func (s *Service) authorize(client *storage.Client, ticket *storage.PermissionTicket, subject string) (bool, error) {
	s.mu.RLock()
	policies := s.policies
	s.mu.RUnlock()

	ctxRecord := cedar.NewRecord(cedar.RecordMap{
		"approved": cedar.Boolean(ticket.Approved),
		"subject":  cedar.String(subject),
	})
	for _, p := range ticket.Permissions {
		for _, scope := range p.Scopes {
			req := cedar.Request{
				Principal: cedar.NewEntityUID("Client", cedar.String(client.ID)),
				Action:    cedar.NewEntityUID("Action", cedar.String(scope)),
				Resource:  cedar.NewEntityUID("Resource", cedar.String(p.ResourceID)),
				Context:   ctxRecord,
			}
			decision, diagnostic := cedar.Authorize(policies, cedar.EntityMap{}, req)
			if len(diagnostic.Errors) > 0 {
				return false, fmt.Errorf("UMA policy evaluation failed: %v", diagnostic.Errors)
			}
			if decision != cedar.Allow {
				slog.Debug("UMA policy denied request",
					"client_id", client.ID, "resource_id", p.ResourceID, "scope", scope)
				return false, nil
			}
		}
	}
	return true, nil
}

// RequestRPT trades an authorized ticket for an RPT. Until the policy set
// permits the ticket the request fails with not_authorized.
func (s *Service) RequestRPT(ctx context.Context, client *storage.Client, value, subject string) (*token.Response, error) {
	s.redeem.Lock()
	defer s.redeem.Unlock()

	ticket, err := s.loadTicket(ctx, value)
	if err != nil {
		return nil, err
	}
	ok, err := s.authorize(client, ticket, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oautherr.ErrNotAuthorized
	}

	ticket.Status = storage.TicketAuthorized
	if err := s.store.UpdatePermissionTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to update permission ticket: %w", err)
	}
	rpt, _, err := s.minter.MintToken(ctx, storage.TokenKindRPT, storage.Token{
		GrantID:     token.NewGrantID(),
		ClientID:    client.ID,
		Subject:     subject,
		GrantType:   GrantType,
		Permissions: ticket.Permissions,
	}, s.cfg.RPTLifetime)
	if err != nil {
		return nil, err
	}
	slog.Debug("issued RPT", "client_id", client.ID, "ticket_owner", ticket.OwnerClientID)
	return &token.Response{
		AccessToken: rpt,
		TokenType:   token.TokenTypeBearer,
		ExpiresIn:   int64(s.cfg.RPTLifetime.Seconds()),
	}, nil
}

// RPTStatus reports whether rpt is a live RPT and what it grants.
func (s *Service) RPTStatus(ctx context.Context, rpt string) (*RPTStatus, error) {
	if rpt == "" {
		return &RPTStatus{}, nil
	}
	tok, err := s.grants.GetToken(ctx, token.Signature(rpt))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &RPTStatus{}, nil
		}
		return nil, fmt.Errorf("failed to load RPT: %w", err)
	}
	if tok.Kind != storage.TokenKindRPT || !s.now().Before(tok.ExpiresAt) {
		return &RPTStatus{}, nil
	}
	return &RPTStatus{
		Active:      true,
		ExpiresAt:   tok.ExpiresAt.Unix(),
		IssuedAt:    tok.IssuedAt.Unix(),
		Permissions: tok.Permissions,
	}, nil
}

// IntrospectRPT lets the resource server holding pat check rpt.
func (s *Service) IntrospectRPT(ctx context.Context, pat, rpt string) (*RPTStatus, error) {
	if _, err := s.protectionToken(ctx, pat); err != nil {
		return nil, err
	}
	return s.RPTStatus(ctx, rpt)
}
