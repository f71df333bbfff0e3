// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session manages end-user SSO sessions and RP-initiated logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/logger"
)

// Defaults for Config.
const (
	DefaultLifetime      = 24 * time.Hour
	DefaultHintLeeway    = 5 * time.Minute
	DefaultNotifyTimeout = 5 * time.Second
	DefaultNotifyRetries = 3
)

// Config configures a Manager.
type Config struct {
	// Issuer is the iss of logout tokens and the iss appended to
	// front-channel logout URIs.
	Issuer string `json:"issuer" yaml:"issuer"`

	// Lifetime is how long a session lives after creation.
	Lifetime time.Duration `json:"lifetime" yaml:"lifetime"`

	// HintLeeway is how long after expiry an id_token_hint is still accepted.
	HintLeeway time.Duration `json:"hint_leeway" yaml:"hint_leeway"`

	// AllowRedirectFallback redirects to a whitelisted post-logout URI even
	// when neither the hint nor the session is valid.
	AllowRedirectFallback bool `json:"allow_redirect_fallback" yaml:"allow_redirect_fallback"`

	// FallbackRedirectWhitelist lists the post-logout URIs eligible for the
	// fallback redirect.
	FallbackRedirectWhitelist []string `json:"fallback_redirect_whitelist,omitempty" yaml:"fallback_redirect_whitelist,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Lifetime <= 0 {
		c.Lifetime = DefaultLifetime
	}
	if c.HintLeeway <= 0 {
		c.HintLeeway = DefaultHintLeeway
	}
}

// Manager creates, resumes and ends sessions.
type Manager struct {
	sessions storage.SessionStore
	clients  storage.ClientStore
	engine   *jws.Engine
	notifier *Notifier
	cfg      Config
	now      func() time.Time
}

// NewManager creates a Manager. notifier may be nil, in which case logout
// notifications are skipped.
func NewManager(
	sessions storage.SessionStore, clients storage.ClientStore, engine *jws.Engine, notifier *Notifier, cfg Config,
) *Manager {
	cfg.applyDefaults()
	return &Manager{
		sessions: sessions,
		clients:  clients,
		engine:   engine,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Get returns the live session id, or storage.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*storage.Session, error) {
	if id == "" {
		return nil, storage.ErrNotFound
	}
	s, err := m.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt) {
		return nil, fmt.Errorf("%w: session expired", storage.ErrNotFound)
	}
	return s, nil
}

// CreateOrResume records clientID in the session existingID when it belongs
// to subject, and creates a new session otherwise.
func (m *Manager) CreateOrResume(ctx context.Context, subject, clientID, existingID string) (*storage.Session, error) {
	if existingID != "" {
		s, err := m.Get(ctx, existingID)
		switch {
		case err == nil && s.Subject == subject:
			s.AddClient(clientID)
			if err := m.sessions.UpdateSession(ctx, s); err != nil {
				return nil, fmt.Errorf("failed to update session: %w", err)
			}
			return s, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	now := m.now()
	s := &storage.Session{
		ID:        uuid.NewString(),
		Subject:   subject,
		AuthTime:  now,
		ClientIDs: []string{clientID},
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.Lifetime),
	}
	if err := m.sessions.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logger.Debugw("session created", "client_id", clientID)
	return s, nil
}

// Drop deletes a session, for example when prompt=login forces a new login.
func (m *Manager) Drop(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.sessions.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
