// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
)

// DurableStore is a persistent backend for clients and federation trusts.
type DurableStore interface {
	ClientStore
	FederationStore
	Health(ctx context.Context) error
	Close() error
}

// CompositeStorage routes clients and federation trusts to a durable store
// and everything else to a MemoryStorage.
type CompositeStorage struct {
	*MemoryStorage
	durable DurableStore
}

// NewCompositeStorage combines durable and ephemeral backends.
func NewCompositeStorage(durable DurableStore, ephemeral *MemoryStorage) *CompositeStorage {
	return &CompositeStorage{MemoryStorage: ephemeral, durable: durable}
}

// CreateClient stores a new client in the durable store.
func (c *CompositeStorage) CreateClient(ctx context.Context, client *Client) error {
	return c.durable.CreateClient(ctx, client)
}

// GetClient loads a client from the durable store.
func (c *CompositeStorage) GetClient(ctx context.Context, id string) (*Client, error) {
	return c.durable.GetClient(ctx, id)
}

// UpdateClient replaces a client in the durable store.
func (c *CompositeStorage) UpdateClient(ctx context.Context, client *Client) error {
	return c.durable.UpdateClient(ctx, client)
}

// ListClients lists clients from the durable store.
func (c *CompositeStorage) ListClients(ctx context.Context) ([]*Client, error) {
	return c.durable.ListClients(ctx)
}

// CreateTrust records a federation trust in the durable store.
func (c *CompositeStorage) CreateTrust(ctx context.Context, trust *FederationTrust) error {
	return c.durable.CreateTrust(ctx, trust)
}

// ListTrusts lists federation trusts from the durable store.
func (c *CompositeStorage) ListTrusts(ctx context.Context, clientID string) ([]*FederationTrust, error) {
	return c.durable.ListTrusts(ctx, clientID)
}

// Health checks both backends.
func (c *CompositeStorage) Health(ctx context.Context) error {
	return errors.Join(c.durable.Health(ctx), c.MemoryStorage.Health(ctx))
}

// Close closes both backends.
func (c *CompositeStorage) Close() error {
	return errors.Join(c.MemoryStorage.Close(), c.durable.Close())
}

// Compile-time interface compliance check
var _ Storage = (*CompositeStorage)(nil)
