// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/oxauth/pkg/logger"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds Redis connection configuration for runtime use.
type RedisConfig struct {
	// SentinelConfig is required - Sentinel-only deployment.
	SentinelConfig *SentinelConfig `json:"sentinel,omitempty" yaml:"sentinel,omitempty"`

	// ACLUserConfig is required - ACL user authentication only.
	ACLUserConfig *ACLUserConfig `json:"acl_user,omitempty" yaml:"acl_user,omitempty"`

	// KeyPrefix for multi-tenancy, see DeriveKeyPrefix.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
}

// SentinelConfig contains Redis Sentinel configuration.
type SentinelConfig struct {
	MasterName    string   `json:"master_name" yaml:"master_name"`
	SentinelAddrs []string `json:"sentinel_addrs" yaml:"sentinel_addrs"`
	DB            int      `json:"db,omitempty" yaml:"db,omitempty"`
}

// ACLUserConfig contains Redis ACL user authentication configuration.
type ACLUserConfig struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// RedisStorage implements the Storage interface with a Redis Sentinel backend,
// sharing grant and session state between server replicas.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStorage creates Redis-backed storage with Sentinel failover support.
// Returns error if configuration validation fails or connection cannot be established.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    cfg.SentinelConfig.MasterName,
		SentinelAddrs: cfg.SentinelConfig.SentinelAddrs,
		DB:            cfg.SentinelConfig.DB,
		Username:      cfg.ACLUserConfig.Username,
		Password:      cfg.ACLUserConfig.Password,
		DialTimeout:   cfg.DialTimeout,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func validateConfig(cfg *RedisConfig) error {
	if cfg.SentinelConfig == nil {
		return errors.New("sentinel configuration is required")
	}
	if cfg.SentinelConfig.MasterName == "" {
		return errors.New("sentinel master name is required")
	}
	if len(cfg.SentinelConfig.SentinelAddrs) == 0 {
		return errors.New("at least one sentinel address is required")
	}
	if cfg.ACLUserConfig == nil {
		return errors.New("ACL user configuration is required")
	}
	if cfg.KeyPrefix == "" {
		return errors.New("key prefix is required")
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// Health checks Redis connectivity.
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ttlUntil converts an absolute expiry into a Redis TTL. A zero expiry means
// no TTL; an expiry in the past yields a negative duration.
func ttlUntil(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	return time.Until(expiresAt)
}

func (s *RedisStorage) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// getJSON loads key into v. Missing keys map to ErrNotFound.
func (s *RedisStorage) getJSON(ctx context.Context, key, what string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		}
		return fmt.Errorf("failed to get %s: %w", what, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}

// -----------------------
// ClientStore
// -----------------------

// CreateClient stores a new client. Clients do not expire.
func (s *RedisStorage) CreateClient(ctx context.Context, client *Client) error {
	if client == nil || client.ID == "" {
		return errors.New("client ID cannot be empty")
	}
	key := redisKey(s.keyPrefix, KeyTypeClient, client.ID)

	stored := *client
	stored.Revision = 1
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store client: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: client %s", ErrAlreadyExists, client.ID)
	}

	indexKey := redisSetKey(s.keyPrefix, KeyTypeClientIndex, "all")
	if err := s.client.SAdd(ctx, indexKey, client.ID).Err(); err != nil {
		// Compensating transaction: delete the client we just stored
		_ = s.client.Del(ctx, key).Err()
		return fmt.Errorf("failed to index client: %w", err)
	}
	client.Revision = 1
	return nil
}

// GetClient loads the client by its ID.
func (s *RedisStorage) GetClient(ctx context.Context, id string) (*Client, error) {
	var client Client
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeClient, id), "client", &client); err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debugw("client not found", "client_id", id)
		}
		return nil, err
	}
	return &client, nil
}

// UpdateClient replaces an existing client. The revision check and the
// write run in a WATCH transaction on the client key.
func (s *RedisStorage) UpdateClient(ctx context.Context, client *Client) error {
	key := redisKey(s.keyPrefix, KeyTypeClient, client.ID)

	next := *client
	next.Revision++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: client %s", ErrNotFound, client.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to load client: %w", err)
		}
		var stored Client
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal client: %w", err)
		}
		if stored.Revision != client.Revision {
			return fmt.Errorf("%w: client %s", ErrConflict, client.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: client %s", ErrConflict, client.ID)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("failed to update client: %w", err)
	}
	client.Revision = next.Revision
	return nil
}

// ListClients returns every registered client.
func (s *RedisStorage) ListClients(ctx context.Context) ([]*Client, error) {
	ids, err := s.client.SMembers(ctx, redisSetKey(s.keyPrefix, KeyTypeClientIndex, "all")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// -----------------------
// GrantStore
// -----------------------

// CreateAuthorizationCode stores an authorization code with a TTL matching its expiry.
func (s *RedisStorage) CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	if code == nil || code.Signature == "" {
		return errors.New("authorization code signature cannot be empty")
	}
	ttl := ttlUntil(code.ExpiresAt)
	if ttl < 0 {
		return nil
	}
	return s.setJSON(ctx, redisKey(s.keyPrefix, KeyTypeAuthCode, code.Signature), code, ttl)
}

// ConsumeAuthorizationCode redeems a code with GETDEL, so exactly one
// concurrent caller receives it.
func (s *RedisStorage) ConsumeAuthorizationCode(ctx context.Context, signature string) (*AuthorizationCode, error) {
	key := redisKey(s.keyPrefix, KeyTypeAuthCode, signature)
	redeemedKey := redisKey(s.keyPrefix, KeyTypeRedeemedCode, signature)

	data, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	if errors.Is(err, redis.Nil) {
		var used AuthorizationCode
		if err := s.getJSON(ctx, redeemedKey, "authorization code", &used); err != nil {
			return nil, err
		}
		return &used, ErrAlreadyUsed
	}

	var code AuthorizationCode
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	if err := s.client.Set(ctx, redeemedKey, data, DefaultInvalidatedCodeTTL).Err(); err != nil {
		// The code is already gone; replay detection degrades to not-found.
		logger.Warnw("failed to record redeemed authorization code", "error", err)
	}
	return &code, nil
}

// CreateToken stores a token and adds it to its grant index.
func (s *RedisStorage) CreateToken(ctx context.Context, token *Token) error {
	if token == nil || token.Signature == "" {
		return errors.New("token signature cannot be empty")
	}
	ttl := ttlUntil(token.ExpiresAt)
	if ttl < 0 {
		return nil
	}

	key := redisKey(s.keyPrefix, KeyTypeToken, token.Signature)
	if err := s.setJSON(ctx, key, token, ttl); err != nil {
		return err
	}
	if token.GrantID == "" {
		return nil
	}

	// Secondary index grant ID -> signatures. If index operations fail,
	// delete the token to prevent tokens that cannot be revoked.
	grantKey := redisSetKey(s.keyPrefix, KeyTypeGrant, token.GrantID)
	if err := s.client.SAdd(ctx, grantKey, token.Signature).Err(); err != nil {
		_ = s.client.Del(ctx, key).Err()
		return fmt.Errorf("failed to index token: %w", err)
	}
	// The index must outlive the longest-lived token in the grant: NX sets
	// the first expiry, GT extends it for longer-lived tokens.
	if ttl > 0 {
		if err := s.client.ExpireNX(ctx, grantKey, ttl).Err(); err != nil {
			s.unindexToken(ctx, key, grantKey, token.Signature)
			return fmt.Errorf("failed to set grant index ttl: %w", err)
		}
		if err := s.client.ExpireGT(ctx, grantKey, ttl).Err(); err != nil {
			s.unindexToken(ctx, key, grantKey, token.Signature)
			return fmt.Errorf("failed to extend grant index ttl: %w", err)
		}
	}
	return nil
}

// unindexToken is the compensating transaction for a failed index update.
func (s *RedisStorage) unindexToken(ctx context.Context, key, grantKey, signature string) {
	_ = s.client.Del(ctx, key).Err()
	_ = s.client.SRem(ctx, grantKey, signature).Err()
}

// GetToken loads an unexpired token.
func (s *RedisStorage) GetToken(ctx context.Context, signature string) (*Token, error) {
	var token Token
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeToken, signature), "token", &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// ConsumeToken atomically loads and deletes a token with GETDEL.
func (s *RedisStorage) ConsumeToken(ctx context.Context, signature string) (*Token, error) {
	data, err := s.client.GetDel(ctx, redisKey(s.keyPrefix, KeyTypeToken, signature)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: token", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if token.GrantID != "" {
		_ = s.client.SRem(ctx, redisSetKey(s.keyPrefix, KeyTypeGrant, token.GrantID), signature).Err()
	}
	return &token, nil
}

// DeleteToken removes a token and its grant index entry.
func (s *RedisStorage) DeleteToken(ctx context.Context, signature string) error {
	_, err := s.ConsumeToken(ctx, signature)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeGrant removes every token minted under grantID.
func (s *RedisStorage) RevokeGrant(ctx context.Context, grantID string) error {
	grantKey := redisSetKey(s.keyPrefix, KeyTypeGrant, grantID)

	sigs, err := s.client.SMembers(ctx, grantKey).Result()
	if err != nil {
		return fmt.Errorf("failed to load grant index: %w", err)
	}

	keys := make([]string, 0, len(sigs)+1)
	for _, sig := range sigs {
		keys = append(keys, redisKey(s.keyPrefix, KeyTypeToken, sig))
	}
	keys = append(keys, grantKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	logger.Debugw("revoked grant", "grant_id", grantID, "tokens", len(sigs))
	return nil
}

// MarkJTIUsed records a client assertion JTI with SETNX until exp.
func (s *RedisStorage) MarkJTIUsed(ctx context.Context, jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		// Already expired, the assertion is rejected on its exp claim.
		return nil
	}

	ok, err := s.client.SetNX(ctx, redisKey(s.keyPrefix, KeyTypeJTI, jti), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to record jti: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: jti %s", ErrAlreadyExists, jti)
	}
	return nil
}

// -----------------------
// SessionStore
// -----------------------

// CreateSession stores a new end-user session.
func (s *RedisStorage) CreateSession(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	ttl := ttlUntil(session.ExpiresAt)
	if ttl < 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKey(s.keyPrefix, KeyTypeSession, session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: session", ErrAlreadyExists)
	}
	return nil
}

// GetSession loads an unexpired session.
func (s *RedisStorage) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeSession, id), "session", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession replaces an existing session.
func (s *RedisStorage) UpdateSession(ctx context.Context, session *Session) error {
	key := redisKey(s.keyPrefix, KeyTypeSession, session.ID)
	ttl := ttlUntil(session.ExpiresAt)
	if ttl < 0 {
		return s.client.Del(ctx, key).Err()
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetXX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: session", ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session.
func (s *RedisStorage) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKey(s.keyPrefix, KeyTypeSession, id)).Err()
}

// -----------------------
// UMAStore
// -----------------------

// CreateResourceSet stores a protected resource.
func (s *RedisStorage) CreateResourceSet(ctx context.Context, rs *ResourceSet) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal resource set: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKey(s.keyPrefix, KeyTypeResourceSet, rs.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store resource set: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: resource set", ErrAlreadyExists)
	}
	return nil
}

// GetResourceSet loads a protected resource.
func (s *RedisStorage) GetResourceSet(ctx context.Context, id string) (*ResourceSet, error) {
	var rs ResourceSet
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeResourceSet, id), "resource set", &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// ticketRetention keeps expired tickets readable for a while so callers can
// report expired_ticket instead of invalid_ticket.
const ticketRetention = 10 * time.Minute

// CreatePermissionTicket stores a permission ticket.
func (s *RedisStorage) CreatePermissionTicket(ctx context.Context, ticket *PermissionTicket) error {
	return s.setJSON(ctx, redisKey(s.keyPrefix, KeyTypeTicket, ticket.Ticket), ticket, ticketTTL(ticket))
}

func ticketTTL(ticket *PermissionTicket) time.Duration {
	ttl := ttlUntil(ticket.ExpiresAt)
	if ttl == 0 {
		return 0
	}
	return max(ttl, 0) + ticketRetention
}

// GetPermissionTicket loads a ticket, including recently expired ones.
func (s *RedisStorage) GetPermissionTicket(ctx context.Context, ticket string) (*PermissionTicket, error) {
	var t PermissionTicket
	if err := s.getJSON(ctx, redisKey(s.keyPrefix, KeyTypeTicket, ticket), "permission ticket", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdatePermissionTicket replaces an existing ticket.
func (s *RedisStorage) UpdatePermissionTicket(ctx context.Context, ticket *PermissionTicket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal permission ticket: %w", err)
	}
	ok, err := s.client.SetXX(ctx, redisKey(s.keyPrefix, KeyTypeTicket, ticket.Ticket), data, ticketTTL(ticket)).Result()
	if err != nil {
		return fmt.Errorf("failed to update permission ticket: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: permission ticket", ErrNotFound)
	}
	return nil
}

// -----------------------
// FederationStore
// -----------------------

// CreateTrust records a federation trust in the client's trust hash.
func (s *RedisStorage) CreateTrust(ctx context.Context, trust *FederationTrust) error {
	data, err := json.Marshal(trust)
	if err != nil {
		return fmt.Errorf("failed to marshal federation trust: %w", err)
	}
	field := trust.FederationID + "|" + trust.RedirectURI
	ok, err := s.client.HSetNX(ctx, redisKey(s.keyPrefix, KeyTypeTrust, trust.ClientID), field, data).Result()
	if err != nil {
		return fmt.Errorf("failed to store federation trust: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: federation trust", ErrAlreadyExists)
	}
	return nil
}

// ListTrusts returns the federation trusts recorded for clientID.
func (s *RedisStorage) ListTrusts(ctx context.Context, clientID string) ([]*FederationTrust, error) {
	values, err := s.client.HVals(ctx, redisKey(s.keyPrefix, KeyTypeTrust, clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list federation trusts: %w", err)
	}
	trusts := make([]*FederationTrust, 0, len(values))
	for _, v := range values {
		var t FederationTrust
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal federation trust: %w", err)
		}
		trusts = append(trusts, &t)
	}
	return trusts, nil
}

// Compile-time interface compliance check
var _ Storage = (*RedisStorage)(nil)
