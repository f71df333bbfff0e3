// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/oxauth/pkg/logger"
)

// timedEntry wraps a value with its creation time for TTL tracking.
type timedEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStorage implements the Storage interface with in-memory maps.
// This implementation is thread-safe and suitable for development and
// single-replica deployments.
type MemoryStorage struct {
	mu sync.RWMutex

	// clients maps client_id -> Client.
	clients map[string]*Client

	// authCodes maps code signature -> AuthorizationCode. Codes are one-time-use;
	// redeemedCodes keeps consumed codes so replays can revoke their grant.
	authCodes     map[string]*timedEntry[*AuthorizationCode]
	redeemedCodes map[string]*timedEntry[*AuthorizationCode]

	// tokens maps token signature -> Token for every token kind.
	tokens map[string]*timedEntry[*Token]

	// grants maps grant ID -> set of token signatures minted under it.
	grants map[string]map[string]struct{}

	// assertionJTIs tracks client assertion JTIs to prevent replay.
	assertionJTIs map[string]time.Time

	sessions map[string]*timedEntry[*Session]

	resourceSets map[string]*ResourceSet
	tickets      map[string]*timedEntry[*PermissionTicket]

	// trusts maps client_id -> federation trusts for that client.
	trusts map[string][]*FederationTrust

	// cleanupInterval is how often the background cleanup runs
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped
	cleanupDone chan struct{}
}

// MemoryStorageOption configures a MemoryStorage instance.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStorage creates a new MemoryStorage instance with initialized maps
// and starts the background cleanup goroutine.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		clients:         make(map[string]*Client),
		authCodes:       make(map[string]*timedEntry[*AuthorizationCode]),
		redeemedCodes:   make(map[string]*timedEntry[*AuthorizationCode]),
		tokens:          make(map[string]*timedEntry[*Token]),
		grants:          make(map[string]map[string]struct{}),
		assertionJTIs:   make(map[string]time.Time),
		sessions:        make(map[string]*timedEntry[*Session]),
		resourceSets:    make(map[string]*ResourceSet),
		tickets:         make(map[string]*timedEntry[*PermissionTicket]),
		trusts:          make(map[string][]*FederationTrust),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Health is a no-op for in-memory storage since it is always available.
func (*MemoryStorage) Health(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStorage) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

// cleanupLoop runs periodic cleanup of expired entries.
func (s *MemoryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func expiredKeys[T any](m map[string]*timedEntry[T], now time.Time) []string {
	var keys []string
	for k, v := range m {
		if v.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// cleanupExpired removes all expired entries from storage.
// Expired keys are collected under the read lock and deleted under the
// write lock to keep write lock hold time short.
func (s *MemoryStorage) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()
	codes := expiredKeys(s.authCodes, now)
	redeemed := expiredKeys(s.redeemedCodes, now)
	tokens := expiredKeys(s.tokens, now)
	sessions := expiredKeys(s.sessions, now)
	tickets := expiredKeys(s.tickets, now)
	var jtis []string
	for k, exp := range s.assertionJTIs {
		if now.After(exp) {
			jtis = append(jtis, k)
		}
	}
	s.mu.RUnlock()

	if len(codes)+len(redeemed)+len(tokens)+len(sessions)+len(tickets)+len(jtis) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check expiry: an entry may have been replaced between the two phases.
	for _, k := range codes {
		if e, ok := s.authCodes[k]; ok && e.expired(now) {
			delete(s.authCodes, k)
		}
	}
	for _, k := range redeemed {
		if e, ok := s.redeemedCodes[k]; ok && e.expired(now) {
			delete(s.redeemedCodes, k)
		}
	}
	for _, k := range tokens {
		if e, ok := s.tokens[k]; ok && e.expired(now) {
			s.unindexTokenLocked(e.value)
			delete(s.tokens, k)
		}
	}
	for _, k := range sessions {
		if e, ok := s.sessions[k]; ok && e.expired(now) {
			delete(s.sessions, k)
		}
	}
	for _, k := range tickets {
		if e, ok := s.tickets[k]; ok && e.expired(now) {
			delete(s.tickets, k)
		}
	}
	for _, k := range jtis {
		delete(s.assertionJTIs, k)
	}

	logger.Debugw("cleaned up expired storage entries",
		"auth_codes", len(codes), "tokens", len(tokens), "sessions", len(sessions), "tickets", len(tickets))
}

// -----------------------
// ClientStore
// -----------------------

// CreateClient stores a new client.
func (s *MemoryStorage) CreateClient(_ context.Context, client *Client) error {
	if client == nil || client.ID == "" {
		return errors.New("client ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; ok {
		return fmt.Errorf("%w: client %s", ErrAlreadyExists, client.ID)
	}
	client.Revision = 1
	s.clients[client.ID] = client.Clone()
	return nil
}

// GetClient loads the client by its ID or returns ErrNotFound.
func (s *MemoryStorage) GetClient(_ context.Context, id string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		logger.Debugw("client not found", "client_id", id)
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, id)
	}
	return client.Clone(), nil
}

// UpdateClient replaces an existing client.
func (s *MemoryStorage) UpdateClient(_ context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.clients[client.ID]
	if !ok {
		return fmt.Errorf("%w: client %s", ErrNotFound, client.ID)
	}
	if stored.Revision != client.Revision {
		return fmt.Errorf("%w: client %s", ErrConflict, client.ID)
	}
	client.Revision++
	s.clients[client.ID] = client.Clone()
	return nil
}

// ListClients returns every registered client ordered by client ID.
func (s *MemoryStorage) ListClients(_ context.Context) ([]*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b *Client) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// -----------------------
// GrantStore
// -----------------------

// CreateAuthorizationCode stores an authorization code until its expiry.
func (s *MemoryStorage) CreateAuthorizationCode(_ context.Context, code *AuthorizationCode) error {
	if code == nil || code.Signature == "" {
		return errors.New("authorization code signature cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.authCodes[code.Signature] = &timedEntry[*AuthorizationCode]{
		value:     code,
		createdAt: time.Now(),
		expiresAt: code.ExpiresAt,
	}
	return nil
}

// ConsumeAuthorizationCode removes the code under the write lock, so exactly
// one concurrent caller observes it as unused.
func (s *MemoryStorage) ConsumeAuthorizationCode(_ context.Context, signature string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if used, ok := s.redeemedCodes[signature]; ok && !used.expired(now) {
		return used.value, ErrAlreadyUsed
	}

	entry, ok := s.authCodes[signature]
	if !ok || entry.expired(now) {
		delete(s.authCodes, signature)
		logger.Debugw("authorization code not found")
		return nil, fmt.Errorf("%w: authorization code", ErrNotFound)
	}

	delete(s.authCodes, signature)
	s.redeemedCodes[signature] = &timedEntry[*AuthorizationCode]{
		value:     entry.value,
		createdAt: now,
		expiresAt: now.Add(DefaultInvalidatedCodeTTL),
	}
	return entry.value, nil
}

// CreateToken stores a token and indexes it under its grant.
func (s *MemoryStorage) CreateToken(_ context.Context, token *Token) error {
	if token == nil || token.Signature == "" {
		return errors.New("token signature cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.Signature] = &timedEntry[*Token]{
		value:     token,
		createdAt: time.Now(),
		expiresAt: token.ExpiresAt,
	}
	if token.GrantID != "" {
		set, ok := s.grants[token.GrantID]
		if !ok {
			set = make(map[string]struct{})
			s.grants[token.GrantID] = set
		}
		set[token.Signature] = struct{}{}
	}
	return nil
}

// GetToken loads an unexpired token.
func (s *MemoryStorage) GetToken(_ context.Context, signature string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tokens[signature]
	if !ok || entry.expired(time.Now()) {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	return entry.value, nil
}

// ConsumeToken atomically loads and deletes a token.
func (s *MemoryStorage) ConsumeToken(_ context.Context, signature string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[signature]
	if !ok {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	s.unindexTokenLocked(entry.value)
	delete(s.tokens, signature)
	if entry.expired(time.Now()) {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	return entry.value, nil
}

// DeleteToken removes a token.
func (s *MemoryStorage) DeleteToken(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.tokens[signature]; ok {
		s.unindexTokenLocked(entry.value)
		delete(s.tokens, signature)
	}
	return nil
}

// RevokeGrant removes every token minted under grantID.
func (s *MemoryStorage) RevokeGrant(_ context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sig := range s.grants[grantID] {
		delete(s.tokens, sig)
	}
	delete(s.grants, grantID)
	return nil
}

// unindexTokenLocked removes a token from its grant index. Caller holds s.mu.
func (s *MemoryStorage) unindexTokenLocked(token *Token) {
	set, ok := s.grants[token.GrantID]
	if !ok {
		return
	}
	delete(set, token.Signature)
	if len(set) == 0 {
		delete(s.grants, token.GrantID)
	}
}

// MarkJTIUsed records a client assertion JTI until exp.
func (s *MemoryStorage) MarkJTIUsed(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if known, ok := s.assertionJTIs[jti]; ok && now.Before(known) {
		return fmt.Errorf("%w: jti %s", ErrAlreadyExists, jti)
	}
	s.assertionJTIs[jti] = exp
	return nil
}

// -----------------------
// SessionStore
// -----------------------

func copySession(sess *Session) *Session {
	out := *sess
	out.ClientIDs = slices.Clone(sess.ClientIDs)
	return &out
}

// CreateSession stores a new end-user session.
func (s *MemoryStorage) CreateSession(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%w: session", ErrAlreadyExists)
	}
	s.sessions[session.ID] = &timedEntry[*Session]{
		value:     copySession(session),
		createdAt: time.Now(),
		expiresAt: session.ExpiresAt,
	}
	return nil
}

// GetSession loads an unexpired session.
func (s *MemoryStorage) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok || entry.expired(time.Now()) {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	return copySession(entry.value), nil
}

// UpdateSession replaces an existing session.
func (s *MemoryStorage) UpdateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[session.ID]
	if !ok {
		return fmt.Errorf("%w: session", ErrNotFound)
	}
	entry.value = copySession(session)
	entry.expiresAt = session.ExpiresAt
	return nil
}

// DeleteSession removes a session. Deleting an unknown session is not an error.
func (s *MemoryStorage) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// -----------------------
// UMAStore
// -----------------------

// CreateResourceSet stores a protected resource.
func (s *MemoryStorage) CreateResourceSet(_ context.Context, rs *ResourceSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resourceSets[rs.ID]; ok {
		return fmt.Errorf("%w: resource set", ErrAlreadyExists)
	}
	s.resourceSets[rs.ID] = rs
	return nil
}

// GetResourceSet loads a protected resource.
func (s *MemoryStorage) GetResourceSet(_ context.Context, id string) (*ResourceSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.resourceSets[id]
	if !ok {
		return nil, fmt.Errorf("%w: resource set", ErrNotFound)
	}
	return rs, nil
}

func copyTicket(t *PermissionTicket) *PermissionTicket {
	out := *t
	out.Permissions = slices.Clone(t.Permissions)
	return &out
}

// CreatePermissionTicket stores a permission ticket until its expiry.
func (s *MemoryStorage) CreatePermissionTicket(_ context.Context, ticket *PermissionTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets[ticket.Ticket] = &timedEntry[*PermissionTicket]{
		value:     copyTicket(ticket),
		createdAt: time.Now(),
		expiresAt: ticket.ExpiresAt,
	}
	return nil
}

// GetPermissionTicket loads a ticket. Expired tickets are returned with their
// expiry intact so callers can distinguish expired from unknown tickets.
func (s *MemoryStorage) GetPermissionTicket(_ context.Context, ticket string) (*PermissionTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tickets[ticket]
	if !ok {
		return nil, fmt.Errorf("%w: permission ticket", ErrNotFound)
	}
	return copyTicket(entry.value), nil
}

// UpdatePermissionTicket replaces an existing ticket.
func (s *MemoryStorage) UpdatePermissionTicket(_ context.Context, ticket *PermissionTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tickets[ticket.Ticket]
	if !ok {
		return fmt.Errorf("%w: permission ticket", ErrNotFound)
	}
	entry.value = copyTicket(ticket)
	return nil
}

// -----------------------
// FederationStore
// -----------------------

// CreateTrust records a federation trust for a client.
func (s *MemoryStorage) CreateTrust(_ context.Context, trust *FederationTrust) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.trusts[trust.ClientID] {
		if t.FederationID == trust.FederationID && t.RedirectURI == trust.RedirectURI {
			return fmt.Errorf("%w: federation trust", ErrAlreadyExists)
		}
	}
	s.trusts[trust.ClientID] = append(s.trusts[trust.ClientID], trust)
	return nil
}

// ListTrusts returns the federation trusts recorded for clientID.
func (s *MemoryStorage) ListTrusts(_ context.Context, clientID string) ([]*FederationTrust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.trusts[clientID]), nil
}

// Stats holds entry counts for testing and monitoring.
type Stats struct {
	Clients       int
	AuthCodes     int
	RedeemedCodes int
	Tokens        int
	Grants        int
	AssertionJTIs int
	Sessions      int
	ResourceSets  int
	Tickets       int
}

// Stats returns current statistics about storage contents.
func (s *MemoryStorage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Clients:       len(s.clients),
		AuthCodes:     len(s.authCodes),
		RedeemedCodes: len(s.redeemedCodes),
		Tokens:        len(s.tokens),
		Grants:        len(s.grants),
		AssertionJTIs: len(s.assertionJTIs),
		Sessions:      len(s.sessions),
		ResourceSets:  len(s.resourceSets),
		Tickets:       len(s.tickets),
	}
}

// Compile-time interface compliance check
var _ Storage = (*MemoryStorage)(nil)
