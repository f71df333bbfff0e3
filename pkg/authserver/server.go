// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// Server is the OpenID Connect provider.
type Server interface {
	// Handler returns an http.Handler that serves every provider endpoint;
	// see the handlers package for the paths.
	Handler() http.Handler

	// Storage returns the backend the server was built on.
	Storage() storage.Storage

	// Close waits for pending logout notifications, flushes telemetry and
	// releases the storage backend.
	Close() error
}

// New creates a provider with the storage backend named in cfg.
func New(ctx context.Context, cfg Config) (Server, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	stor, err := NewStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	srv, err := newServer(ctx, cfg, stor)
	if err != nil {
		_ = stor.Close()
		return nil, err
	}
	return srv, nil
}

// NewWithStorage creates a provider on a caller-built storage backend. The
// server owns stor and closes it on Close.
func NewWithStorage(ctx context.Context, cfg Config, stor storage.Storage) (Server, error) {
	slog.Debug("creating OpenID Connect provider", "issuer", cfg.Issuer)
	if stor == nil {
		return nil, fmt.Errorf("storage is required")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return newServer(ctx, cfg, stor)
}
