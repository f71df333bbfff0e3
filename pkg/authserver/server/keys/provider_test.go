// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	servercrypto "github.com/stacklok/oxauth/pkg/authserver/server/crypto"
)

// writeKey generates a key for alg, writes it as PEM and returns the filename.
func writeKey(t *testing.T, dir, filename, alg string) crypto.Signer {
	t.Helper()
	key, err := servercrypto.GenerateSigningKey(alg)
	require.NoError(t, err)
	data, err := servercrypto.EncodePrivateKeyPEM(key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), data, 0600))
	return key
}

func TestFamily(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"RS256": "RSA",
		"RS512": "RSA",
		"PS384": "RSA",
		"ES256": "ES256",
		"ES512": "ES512",
		"HS256": "",
		"none":  "",
		"":      "",
	}
	for alg, want := range tests {
		assert.Equal(t, want, Family(alg), alg)
	}
}

// TestFileProvider tests the FileProvider implementation.
func TestFileProvider(t *testing.T) {
	t.Parallel()

	t.Run("loads valid EC key", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeKey(t, dir, "signing.pem", "ES256")

		provider, err := NewFileProvider(Config{KeyDir: dir, SigningKeyFile: "signing.pem"})
		require.NoError(t, err)

		key, err := provider.SigningKey(context.Background(), "")
		require.NoError(t, err)
		assert.NotEmpty(t, key.KeyID)
		assert.Equal(t, "ES256", key.Algorithm)

		pubKeys, err := provider.PublicKeys(context.Background())
		require.NoError(t, err)
		require.Len(t, pubKeys, 1)
		assert.Equal(t, key.KeyID, pubKeys[0].KeyID)
	})

	t.Run("RSA key serves RS and PS algorithms", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeKey(t, dir, "rsa.pem", "RS256")

		provider, err := NewFileProvider(Config{KeyDir: dir, SigningKeyFile: "rsa.pem"})
		require.NoError(t, err)

		rs, err := provider.SigningKey(context.Background(), "RS384")
		require.NoError(t, err)
		ps, err := provider.SigningKey(context.Background(), "PS512")
		require.NoError(t, err)
		assert.Equal(t, rs.KeyID, ps.KeyID)
		assert.Equal(t, "PS512", ps.Algorithm)

		_, err = provider.SigningKey(context.Background(), "ES256")
		assert.ErrorIs(t, err, ErrNoSigningKey)
	})

	t.Run("fallback keys serve other families", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeKey(t, dir, "rsa.pem", "RS256")
		writeKey(t, dir, "p384.pem", "ES384")

		provider, err := NewFileProvider(Config{
			KeyDir:           dir,
			SigningKeyFile:   "rsa.pem",
			FallbackKeyFiles: []string{"p384.pem"},
		})
		require.NoError(t, err)

		ec, err := provider.SigningKey(context.Background(), "ES384")
		require.NoError(t, err)
		rsa, err := provider.SigningKey(context.Background(), "")
		require.NoError(t, err)
		assert.NotEqual(t, rsa.KeyID, ec.KeyID)
		assert.Equal(t, "RS256", rsa.Algorithm)

		pubKeys, err := provider.PublicKeys(context.Background())
		require.NoError(t, err)
		require.Len(t, pubKeys, 2)
		assert.Equal(t, rsa.KeyID, pubKeys[0].KeyID)
	})

	t.Run("primary key wins within its family", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		primary := writeKey(t, dir, "signing.pem", "ES256")
		writeKey(t, dir, "old.pem", "ES256")

		provider, err := NewFileProvider(Config{
			KeyDir:           dir,
			SigningKeyFile:   "signing.pem",
			FallbackKeyFiles: []string{"old.pem"},
		})
		require.NoError(t, err)

		key, err := provider.SigningKey(context.Background(), "ES256")
		require.NoError(t, err)
		wantID, err := servercrypto.DeriveKeyID(primary)
		require.NoError(t, err)
		assert.Equal(t, wantID, key.KeyID)
	})

	t.Run("fails for non-existent file", func(t *testing.T) {
		t.Parallel()
		_, err := NewFileProvider(Config{KeyDir: "/nonexistent", SigningKeyFile: "key.pem"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load signing key")
	})

	t.Run("fails when signing key file is empty", func(t *testing.T) {
		t.Parallel()
		_, err := NewFileProvider(Config{KeyDir: "/some/dir"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signing key file is required")
	})

	t.Run("fails when fallback key file is invalid", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeKey(t, dir, "signing.pem", "ES256")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "invalid.pem"), []byte("not a valid pem"), 0600))

		_, err := NewFileProvider(Config{
			KeyDir:           dir,
			SigningKeyFile:   "signing.pem",
			FallbackKeyFiles: []string{"invalid.pem"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load fallback key")
	})
}

// TestGeneratingProvider tests the GeneratingProvider implementation.
func TestGeneratingProvider(t *testing.T) {
	t.Parallel()

	t.Run("generates one key per family", func(t *testing.T) {
		t.Parallel()
		provider := NewGeneratingProvider("")

		rs, err := provider.SigningKey(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, DefaultAlgorithm, rs.Algorithm)

		ps, err := provider.SigningKey(context.Background(), "PS256")
		require.NoError(t, err)
		assert.Equal(t, rs.KeyID, ps.KeyID)

		es256, err := provider.SigningKey(context.Background(), "ES256")
		require.NoError(t, err)
		es512, err := provider.SigningKey(context.Background(), "ES512")
		require.NoError(t, err)
		assert.NotEqual(t, es256.KeyID, es512.KeyID)
		require.NoError(t, servercrypto.ValidateAlgorithmForKey("ES512", es512.Key))

		pubKeys, err := provider.PublicKeys(context.Background())
		require.NoError(t, err)
		assert.Len(t, pubKeys, 3)
	})

	t.Run("PublicKeys generates default key if needed", func(t *testing.T) {
		t.Parallel()
		provider := NewGeneratingProvider("ES384")

		pubKeys, err := provider.PublicKeys(context.Background())
		require.NoError(t, err)
		require.Len(t, pubKeys, 1)
		assert.Equal(t, "ES384", pubKeys[0].Algorithm)
	})

	t.Run("fails for HMAC algorithm", func(t *testing.T) {
		t.Parallel()
		provider := NewGeneratingProvider("")

		_, err := provider.SigningKey(context.Background(), "HS256")
		assert.ErrorIs(t, err, ErrNoSigningKey)
	})

	t.Run("thread-safe concurrent access", func(t *testing.T) {
		t.Parallel()
		provider := NewGeneratingProvider("ES256")

		var wg sync.WaitGroup
		var keys [10]*SigningKeyData
		var errs [10]error

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				keys[idx], errs[idx] = provider.SigningKey(context.Background(), "ES256")
			}(i)
		}
		wg.Wait()

		for i := 0; i < 10; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, keys[0].KeyID, keys[i].KeyID)
		}
	})
}

// TestNewProviderFromConfig tests the factory function.
func TestNewProviderFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("creates FileProvider from config", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeKey(t, dir, "signing.pem", "ES256")

		provider, err := NewProviderFromConfig(Config{KeyDir: dir, SigningKeyFile: "signing.pem"})
		require.NoError(t, err)
		_, ok := provider.(*FileProvider)
		assert.True(t, ok, "expected FileProvider")
	})

	t.Run("creates GeneratingProvider when no key dir configured", func(t *testing.T) {
		t.Parallel()
		provider, err := NewProviderFromConfig(Config{DefaultAlgorithm: "ES256"})
		require.NoError(t, err)

		key, err := provider.SigningKey(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "ES256", key.Algorithm)
	})

	t.Run("fails with invalid key file", func(t *testing.T) {
		t.Parallel()
		_, err := NewProviderFromConfig(Config{KeyDir: "/nonexistent", SigningKeyFile: "key.pem"})
		require.Error(t, err)
	})
}
