// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	servercrypto "github.com/stacklok/oxauth/pkg/authserver/server/crypto"
)

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=provider.go KeyProvider

// KeyProvider provides signing keys for JWT operations.
// Implementations handle key sourcing (file, memory, generation).
type KeyProvider interface {
	// SigningKey returns a key able to sign with alg. An empty alg selects
	// DefaultAlgorithm. Returns ErrNoSigningKey if no key serves alg.
	SigningKey(ctx context.Context, alg string) (*SigningKeyData, error)

	// PublicKeys returns all public keys for the JWKS endpoint.
	PublicKeys(ctx context.Context) ([]*PublicKeyData, error)
}

// FileProvider loads signing keys from PEM files in a directory.
// Each algorithm family is served by the first loaded key of that family.
// All keys are exposed via PublicKeys() for JWKS.
// Keys are loaded once at construction time; changes require restart.
type FileProvider struct {
	allKeys []*SigningKeyData
}

// NewFileProvider creates a provider that loads keys from a directory.
// Config.SigningKeyFile is loaded first, so it wins for its family.
// Config.FallbackKeyFiles add other families or keys kept only for JWKS.
func NewFileProvider(cfg Config) (*FileProvider, error) {
	if cfg.SigningKeyFile == "" {
		return nil, fmt.Errorf("signing key file is required")
	}

	signingKey, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, cfg.SigningKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	allKeys := []*SigningKeyData{signingKey}
	for _, filename := range cfg.FallbackKeyFiles {
		key, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback key %s: %w", filename, err)
		}
		allKeys = append(allKeys, key)
	}

	return &FileProvider{allKeys: allKeys}, nil
}

// loadKeyFromFile loads a single key from a PEM file.
func loadKeyFromFile(keyPath string) (*SigningKeyData, error) {
	signer, err := servercrypto.LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}

	params, err := servercrypto.DeriveSigningKeyParams(signer, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to derive key parameters: %w", err)
	}

	return &SigningKeyData{
		KeyID:     params.KeyID,
		Algorithm: params.Algorithm,
		Key:       params.Key,
		CreatedAt: time.Now(),
	}, nil
}

// SigningKey returns the first loaded key compatible with alg.
// Returns a copy to prevent external mutation of internal state.
func (p *FileProvider) SigningKey(_ context.Context, alg string) (*SigningKeyData, error) {
	if alg == "" {
		alg = p.allKeys[0].Algorithm
	}
	for _, key := range p.allKeys {
		if servercrypto.ValidateAlgorithmForKey(alg, key.Key) == nil {
			return &SigningKeyData{
				KeyID:     key.KeyID,
				Algorithm: alg,
				Key:       key.Key,
				CreatedAt: key.CreatedAt,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, alg)
}

// PublicKeys returns public keys for all loaded keys.
// This enables verification of tokens signed with any of the loaded keys,
// supporting key rotation scenarios where old keys must remain valid.
func (p *FileProvider) PublicKeys(_ context.Context) ([]*PublicKeyData, error) {
	pubKeys := make([]*PublicKeyData, 0, len(p.allKeys))
	for _, key := range p.allKeys {
		pubKeys = append(pubKeys, publicKeyData(key))
	}
	return pubKeys, nil
}

// GeneratingProvider generates one ephemeral key per algorithm family on
// first access. Suitable for development but NOT recommended for production.
// Generated keys are lost on restart, invalidating all issued tokens.
type GeneratingProvider struct {
	defaultAlg string
	mu         sync.Mutex
	keys       map[string]*SigningKeyData
}

// NewGeneratingProvider creates a provider that generates ephemeral keys.
// If defaultAlg is empty, DefaultAlgorithm is used.
func NewGeneratingProvider(defaultAlg string) *GeneratingProvider {
	if defaultAlg == "" {
		defaultAlg = DefaultAlgorithm
	}
	return &GeneratingProvider{
		defaultAlg: defaultAlg,
		keys:       make(map[string]*SigningKeyData),
	}
}

// SigningKey returns the key for alg's family, generating one if needed.
// Thread-safe: uses mutex to ensure only one key per family is generated.
func (p *GeneratingProvider) SigningKey(_ context.Context, alg string) (*SigningKeyData, error) {
	if alg == "" {
		alg = p.defaultAlg
	}
	family := Family(alg)
	if family == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, alg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.keys[family]
	if !ok {
		var err error
		key, err = generateKey(alg)
		if err != nil {
			return nil, err
		}
		slog.Warn("generated ephemeral signing key - tokens will be invalid after restart",
			"family", family,
			"key_id", key.KeyID,
		)
		p.keys[family] = key
	}

	return &SigningKeyData{
		KeyID:     key.KeyID,
		Algorithm: alg,
		Key:       key.Key,
		CreatedAt: key.CreatedAt,
	}, nil
}

// PublicKeys returns the public keys generated so far. The default
// algorithm's key is generated if it does not exist yet, so JWKS is never
// empty.
func (p *GeneratingProvider) PublicKeys(ctx context.Context) ([]*PublicKeyData, error) {
	if _, err := p.SigningKey(ctx, p.defaultAlg); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pubKeys := make([]*PublicKeyData, 0, len(p.keys))
	for _, key := range p.keys {
		pubKeys = append(pubKeys, publicKeyData(key))
	}
	slices.SortFunc(pubKeys, func(a, b *PublicKeyData) int {
		return cmp.Compare(a.KeyID, b.KeyID)
	})
	return pubKeys, nil
}

func generateKey(alg string) (*SigningKeyData, error) {
	privateKey, err := servercrypto.GenerateSigningKey(alg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	params, err := servercrypto.DeriveSigningKeyParams(privateKey, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to derive key parameters: %w", err)
	}

	return &SigningKeyData{
		KeyID:     params.KeyID,
		Algorithm: params.Algorithm,
		Key:       privateKey,
		CreatedAt: time.Now(),
	}, nil
}

func publicKeyData(key *SigningKeyData) *PublicKeyData {
	return &PublicKeyData{
		KeyID:     key.KeyID,
		Algorithm: key.Algorithm,
		PublicKey: key.Key.Public(),
		CreatedAt: key.CreatedAt,
	}
}

// Compile-time interface checks.
var (
	_ KeyProvider = (*FileProvider)(nil)
	_ KeyProvider = (*GeneratingProvider)(nil)
)
