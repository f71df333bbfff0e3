// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package federation publishes federation metadata and lets relying parties
// and providers join a configured federation.
package federation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// Entity types accepted by Join.
const (
	EntityRP = "rp"
	EntityOP = "op"
)

// OP is a provider member of a federation.
type OP struct {
	DisplayName string `json:"display_name" yaml:"display_name"`
	OPID        string `json:"op_id" yaml:"op_id"`
	Domain      string `json:"domain" yaml:"domain"`
}

// RP is a relying party member of a federation.
type RP struct {
	DisplayName  string   `json:"display_name" yaml:"display_name"`
	RedirectURIs []string `json:"redirect_uri" yaml:"redirect_uris"`
}

// Federation is one federation served by this provider.
type Federation struct {
	ID          string `json:"federation_id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	// IntervalCheck is how often, in minutes, members should refresh the metadata.
	IntervalCheck int  `json:"interval_check,omitempty" yaml:"interval_check,omitempty"`
	OPs           []OP `json:"OPs" yaml:"ops,omitempty"`
	RPs           []RP `json:"RPs" yaml:"rps,omitempty"`
}

// Config configures the federation service.
type Config struct {
	Federations []Federation `json:"federations,omitempty" yaml:"federations,omitempty"`
	// SigningAlg signs metadata requested with signed=true.
	SigningAlg string `json:"signing_alg,omitempty" yaml:"signing_alg,omitempty"`
	// RequireTrust refuses authorization to clients without an active trust.
	RequireTrust bool `json:"require_trust,omitempty" yaml:"require_trust,omitempty"`
}

// Validate checks the federation list for duplicates and empty ids.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Federations))
	for i, f := range c.Federations {
		if f.ID == "" {
			return fmt.Errorf("federation %d: id is required", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate federation id %q", f.ID)
		}
		seen[f.ID] = true
	}
	if c.SigningAlg != "" && !jws.IsSupported(c.SigningAlg) {
		return fmt.Errorf("unsupported federation signing alg %q", c.SigningAlg)
	}
	return nil
}

// IDList is the metadata response when no federation id is given.
type IDList struct {
	FederationIDs []string `json:"ids"`
}

// JoinRequest asks to add an RP or OP to a federation.
type JoinRequest struct {
	FederationID string `json:"federation_id"`
	EntityType   string `json:"entity_type"`
	DisplayName  string `json:"display_name"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	OPID         string `json:"op_id,omitempty"`
	Domain       string `json:"domain,omitempty"`
}

// JoinResponse confirms a join.
type JoinResponse struct {
	FederationID string `json:"federation_id"`
	EntityType   string `json:"entity_type"`
	TrustID      string `json:"trust_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
}

var domainValidator = validator.New()

// Service implements federation metadata and join.
type Service struct {
	clients storage.ClientStore
	trusts  storage.FederationStore
	engine  *jws.Engine
	cfg     Config
	now     func() time.Time

	mu          sync.RWMutex
	federations map[string]*Federation
	order       []string
}

// NewService creates a Service.
func NewService(clients storage.ClientStore, trusts storage.FederationStore, engine *jws.Engine, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		clients:     clients,
		trusts:      trusts,
		engine:      engine,
		cfg:         cfg,
		now:         time.Now,
		federations: make(map[string]*Federation, len(cfg.Federations)),
	}
	for _, f := range cfg.Federations {
		f.OPs = slices.Clone(f.OPs)
		f.RPs = slices.Clone(f.RPs)
		s.federations[f.ID] = &f
		s.order = append(s.order, f.ID)
	}
	return s, nil
}

// Metadata returns the federation ids when id is empty, or the metadata of
// federation id. With signed set the result is a compact JWS.
func (s *Service) Metadata(ctx context.Context, id string, signed bool) (any, error) {
	var out any
	if id == "" {
		s.mu.RLock()
		out = IDList{FederationIDs: slices.Clone(s.order)}
		s.mu.RUnlock()
	} else {
		f, err := s.federation(id)
		if err != nil {
			return nil, err
		}
		out = f
	}
	if !signed {
		return out, nil
	}
	jwt, err := s.engine.Sign(ctx, out, jws.SignOptions{Alg: s.cfg.SigningAlg})
	if err != nil {
		return nil, fmt.Errorf("failed to sign federation metadata: %w", err)
	}
	return jwt, nil
}

// federation returns a snapshot of federation id.
func (s *Service) federation(id string) (*Federation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.federations[id]
	if !ok {
		return nil, oautherr.ErrInvalidFederationID
	}
	snapshot := *f
	snapshot.OPs = slices.Clone(f.OPs)
	snapshot.RPs = slices.Clone(f.RPs)
	return &snapshot, nil
}

// Join adds an RP or OP to a federation. An RP join records a trust for the
// registered client owning the redirect URI.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	if _, err := s.federation(req.FederationID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, oautherr.ErrInvalidDisplayName
	}
	switch req.EntityType {
	case EntityRP, "":
		return s.joinRP(ctx, req)
	case EntityOP:
		return s.joinOP(req)
	default:
		return nil, fosite.ErrInvalidRequest.WithHintf("Unknown entity_type %q.", req.EntityType)
	}
}

func (s *Service) joinRP(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	if req.RedirectURI == "" {
		return nil, oautherr.ErrInvalidFederationRedirectURI
	}
	if err := registration.ValidateRedirectURI(req.RedirectURI); err != nil {
		return nil, oautherr.ErrInvalidFederationRedirectURI.WithHint(err.Error())
	}
	client, err := s.clientFor(ctx, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	trust := &storage.FederationTrust{
		ID:           uuid.NewString(),
		FederationID: req.FederationID,
		ClientID:     client.ID,
		RedirectURI:  req.RedirectURI,
		DisplayName:  req.DisplayName,
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.trusts.CreateTrust(ctx, trust); err != nil {
		return nil, fmt.Errorf("failed to store federation trust: %w", err)
	}

	s.mu.Lock()
	f := s.federations[req.FederationID]
	f.RPs = append(f.RPs, RP{DisplayName: req.DisplayName, RedirectURIs: []string{req.RedirectURI}})
	s.mu.Unlock()

	slog.Info("relying party joined federation", "federation_id", req.FederationID, "client_id", client.ID)
	return &JoinResponse{
		FederationID: req.FederationID,
		EntityType:   EntityRP,
		TrustID:      trust.ID,
		ClientID:     client.ID,
	}, nil
}

// clientFor finds the registered client owning redirectURI.
func (s *Service) clientFor(ctx context.Context, redirectURI string) (*storage.Client, error) {
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	for _, c := range clients {
		if c.HasRedirectURI(redirectURI) {
			return c, nil
		}
	}
	return nil, oautherr.ErrInvalidFederationRedirectURI.WithHint("No registered client uses this redirect_uri.")
}

func (s *Service) joinOP(req JoinRequest) (*JoinResponse, error) {
	if strings.TrimSpace(req.OPID) == "" {
		return nil, oautherr.ErrInvalidOPID
	}
	if !validDomain(req.Domain) {
		return nil, oautherr.ErrInvalidDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.federations[req.FederationID]
	if slices.ContainsFunc(f.OPs, func(op OP) bool { return op.OPID == req.OPID }) {
		return nil, oautherr.ErrInvalidOPID.WithHint("The op_id is already a member.")
	}
	f.OPs = append(f.OPs, OP{DisplayName: req.DisplayName, OPID: req.OPID, Domain: req.Domain})
	slog.Info("provider joined federation", "federation_id", req.FederationID, "op_id", req.OPID)
	return &JoinResponse{FederationID: req.FederationID, EntityType: EntityOP}, nil
}

func validDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	if strings.Contains(domain, "://") {
		u, err := url.Parse(domain)
		if err != nil || u.Scheme != "https" || u.Path != "" && u.Path != "/" {
			return false
		}
		domain = u.Hostname()
	}
	return domainValidator.Var(domain, "required,fqdn") == nil
}

// HasActiveTrust reports whether client joined a federation this provider serves.
func (s *Service) HasActiveTrust(ctx context.Context, client *storage.Client) (bool, error) {
	trusts, err := s.trusts.ListTrusts(ctx, client.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list federation trusts: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range trusts {
		if _, ok := s.federations[t.FederationID]; ok && t.Active {
			return true, nil
		}
	}
	return false, nil
}

// RequireTrust reports whether authorization is limited to trusted clients.
func (s *Service) RequireTrust() bool {
	return s.cfg.RequireTrust
}
