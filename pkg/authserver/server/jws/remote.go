// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// DefaultFetchTimeout bounds registration of a new jwks_uri with the cache.
const DefaultFetchTimeout = 5 * time.Second

// RemoteKeySets fetches and caches client JWKS documents from jwks_uri.
type RemoteKeySets struct {
	cache   *jwk.Cache
	timeout time.Duration
	mu      sync.Mutex
}

// NewRemoteKeySets creates a cache that refreshes in the background until
// ctx is cancelled. httpClient should carry a request timeout.
func NewRemoteKeySets(ctx context.Context, httpClient *http.Client, timeout time.Duration) (*RemoteKeySets, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}
	return &RemoteKeySets{cache: cache, timeout: timeout}, nil
}

// Fetch returns the key set published at url.
func (r *RemoteKeySets) Fetch(ctx context.Context, url string) (*jose.JSONWebKeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.register(ctx, url); err != nil {
		return nil, err
	}
	set, err := r.cache.Lookup(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}

	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JWKS: %w", err)
	}
	return ParseKeySet(raw)
}

func (r *RemoteKeySets) register(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.IsRegistered(ctx, url) {
		return nil
	}
	if err := r.cache.Register(ctx, url); err != nil {
		return fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	return nil
}
