// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

const testEndpoint = "https://op.example.com/register"

func newTestRegistry(t *testing.T, policy Policy, sector *SectorVerifier) (*Registry, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })
	return NewRegistry(store, policy, sector, testEndpoint), store
}

func webMetadata() *Metadata {
	return &Metadata{
		ApplicationType: ApplicationTypeWeb,
		ClientName:      "test client",
		RedirectURIs:    []string{"https://rp.example.com/cb"},
		ResponseTypes:   []string{"code", "token id_token"},
		Scope:           "openid profile",
	}
}

func requireRFCError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, oautherr.From(err).ErrorField, "error: %v", err)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()
	registry, store := newTestRegistry(t, Policy{SecretLifetime: time.Hour}, nil)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	resp, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ClientID)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.NotEmpty(t, resp.RegistrationAccessToken)
	assert.Equal(t, testEndpoint+"?client_id="+resp.ClientID, resp.RegistrationClientURI)
	assert.GreaterOrEqual(t, resp.ClientIDIssuedAt, before.Unix())
	assert.LessOrEqual(t, resp.ClientIDIssuedAt, time.Now().Unix())
	assert.Greater(t, resp.ClientSecretExpiresAt, resp.ClientIDIssuedAt)

	// Defaults applied.
	assert.Equal(t, AuthMethodClientSecretBasic, resp.TokenEndpointAuthMethod)
	assert.Equal(t, SubjectTypePublic, resp.SubjectType)
	assert.Equal(t, []string{"code", "id_token token"}, resp.ResponseTypes)
	assert.ElementsMatch(t, []string{GrantAuthorizationCode, GrantRefreshToken, GrantImplicit}, resp.GrantTypes)

	stored, err := store.GetClient(ctx, resp.ClientID)
	require.NoError(t, err)
	assert.Equal(t, resp.ClientSecret, stored.Secret)
	assert.NotEqual(t, resp.RegistrationAccessToken, stored.RegistrationTokenHash, "only the token hash is stored")
	assert.Equal(t, []string{"openid", "profile"}, stored.Scopes)
}

func TestRegistry_UniqueClientIDs(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry(t, Policy{}, nil)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := registry.Register(context.Background(), webMetadata())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[resp.ClientID], "duplicate client_id")
			seen[resp.ClientID] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestRegistry_ReadRoundTrip(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry(t, Policy{}, nil)
	ctx := context.Background()

	registered, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	first, err := registry.Read(ctx, registered.ClientID, registered.RegistrationAccessToken)
	require.NoError(t, err)
	second, err := registry.Read(ctx, registered.ClientID, registered.RegistrationAccessToken)
	require.NoError(t, err)

	if diff := cmp.Diff(registered, first); diff != "" {
		t.Errorf("read differs from registration (-registered +read):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated reads differ (-first +second):\n%s", diff)
	}
}

func TestRegistry_ReadRejectsBadToken(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry(t, Policy{}, nil)
	ctx := context.Background()

	registered, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	_, err = registry.Read(ctx, registered.ClientID, "wrong")
	requireRFCError(t, err, "invalid_token")
	assert.Equal(t, http.StatusUnauthorized, oautherr.Status(err))

	_, err = registry.Read(ctx, "unknown", registered.RegistrationAccessToken)
	requireRFCError(t, err, "invalid_token")

	_, err = registry.Read(ctx, registered.ClientID, "")
	requireRFCError(t, err, "invalid_token")
}

func TestRegistry_Update(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry(t, Policy{}, nil)
	ctx := context.Background()

	registered, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	md := webMetadata()
	md.ClientName = "renamed"
	md.RedirectURIs = []string{"https://rp.example.com/cb2"}
	updated, err := registry.Update(ctx, registered.ClientID, registered.RegistrationAccessToken, md)
	require.NoError(t, err)

	assert.Equal(t, registered.ClientID, updated.ClientID)
	assert.Equal(t, registered.ClientSecret, updated.ClientSecret)
	assert.Equal(t, "renamed", updated.ClientName)

	read, err := registry.Read(ctx, registered.ClientID, registered.RegistrationAccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://rp.example.com/cb2"}, read.RedirectURIs)

	bad := webMetadata()
	bad.ClientName = ""
	_, err = registry.Update(ctx, registered.ClientID, registered.RegistrationAccessToken, bad)
	requireRFCError(t, err, "invalid_client_metadata")

	// A failed update leaves the stored client untouched.
	read, err = registry.Read(ctx, registered.ClientID, registered.RegistrationAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "renamed", read.ClientName)
}

func TestRegistry_RotateSecret(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry(t, Policy{SecretLifetime: time.Hour}, nil)
	ctx := context.Background()

	registered, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	rotated, err := registry.RotateSecret(ctx, registered.ClientID, registered.RegistrationAccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, registered.ClientSecret, rotated.ClientSecret)
	assert.NotZero(t, rotated.ClientSecretExpiresAt)

	public := webMetadata()
	public.TokenEndpointAuthMethod = AuthMethodNone
	pub, err := registry.Register(ctx, public)
	require.NoError(t, err)
	assert.Empty(t, pub.ClientSecret)
	_, err = registry.RotateSecret(ctx, pub.ClientID, pub.RegistrationAccessToken)
	requireRFCError(t, err, "invalid_client_metadata")
}

func TestRegistry_ConcurrentRotation(t *testing.T) {
	t.Parallel()
	registry, store := newTestRegistry(t, Policy{SecretLifetime: time.Hour}, nil)
	ctx := context.Background()

	registered, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		secrets []string
		lost    int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := registry.RotateSecret(ctx, registered.ClientID, registered.RegistrationAccessToken)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.Equal(t, "concurrent_modification", oautherr.From(err).ErrorField, "error: %v", err)
				assert.Equal(t, http.StatusConflict, oautherr.Status(err))
				lost++
				return
			}
			secrets = append(secrets, resp.ClientSecret)
		}()
	}
	wg.Wait()

	require.NotEmpty(t, secrets)
	assert.Equal(t, workers, len(secrets)+lost)

	client, err := store.GetClient(ctx, registered.ClientID)
	require.NoError(t, err)
	// Each reported rotation is its own write; none was overwritten unseen.
	assert.Equal(t, int64(1+len(secrets)), client.Revision)
	assert.Contains(t, secrets, client.Secret)
}

func TestRegistry_UpdateRefusesStaleWrite(t *testing.T) {
	t.Parallel()
	store := &racingStore{MemoryStorage: storage.NewMemoryStorage()}
	t.Cleanup(func() { _ = store.Close() })
	registry := NewRegistry(store, Policy{}, nil, testEndpoint)
	ctx := context.Background()

	registered, err := registry.Register(ctx, webMetadata())
	require.NoError(t, err)

	// Another writer rotates the secret between our read and our write.
	store.beforeUpdate = func() {
		store.beforeUpdate = nil
		_, err := registry.RotateSecret(ctx, registered.ClientID, registered.RegistrationAccessToken)
		require.NoError(t, err)
	}
	md := webMetadata()
	md.ClientName = "renamed"
	_, err = registry.Update(ctx, registered.ClientID, registered.RegistrationAccessToken, md)
	requireRFCError(t, err, "concurrent_modification")

	client, err := store.GetClient(ctx, registered.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "test client", client.Name)
	assert.NotEqual(t, registered.ClientSecret, client.Secret)
}

// racingStore runs beforeUpdate ahead of the next client update.
type racingStore struct {
	*storage.MemoryStorage
	beforeUpdate func()
}

func (s *racingStore) UpdateClient(ctx context.Context, client *storage.Client) error {
	if hook := s.beforeUpdate; hook != nil {
		hook()
	}
	return s.MemoryStorage.UpdateClient(ctx, client)
}

func TestRegistry_CustomAttributes(t *testing.T) {
	t.Parallel()
	registry, store := newTestRegistry(t, Policy{CustomAttributes: []string{"myCustomAttr1"}}, nil)
	ctx := context.Background()

	md, err := ParseMetadata([]byte(`{
		"application_type": "web",
		"client_name": "attrs",
		"redirect_uris": ["https://rp.example.com/cb"],
		"custom_attributes_echo": true,
		"myCustomAttr1": "keep",
		"myCustomAttr2": "drop",
		"nonString": 42
	}`))
	require.NoError(t, err)

	resp, err := registry.Register(ctx, md)
	require.NoError(t, err)

	stored, err := store.GetClient(ctx, resp.ClientID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"myCustomAttr1": "keep"}, stored.CustomAttributes)
	assert.True(t, stored.EchoCustomAttributes)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "keep", body["myCustomAttr1"])
	assert.NotContains(t, body, "myCustomAttr2")
}

func TestRegistry_SectorIdentifier(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sector":
			_, _ = w.Write([]byte(`["https://rp.example.com/cb","https://rp2.example.com/cb"]`))
		case "/object":
			_, _ = w.Write([]byte(`{"redirect_uris":["https://rp.example.com/cb"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	registry, store := newTestRegistry(t, Policy{}, NewSectorVerifier(srv.Client(), time.Second))
	ctx := context.Background()

	tests := []struct {
		name    string
		sector  string
		uris    []string
		wantErr bool
	}{
		{"listed redirect uris", srv.URL + "/sector", []string{"https://rp.example.com/cb", "https://rp2.example.com/cb"}, false},
		{"redirect uri missing from document", srv.URL + "/sector", []string{"https://evil.example.com/cb"}, true},
		{"document not an array", srv.URL + "/object", []string{"https://rp.example.com/cb"}, true},
		{"document not found", srv.URL + "/missing", []string{"https://rp.example.com/cb"}, true},
		{"unreachable host", "https://127.0.0.1:1/sector", []string{"https://rp.example.com/cb"}, true},
	}

	//nolint:paralleltest // the client count below needs every subtest finished
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := webMetadata()
			md.SectorIdentifierURI = tt.sector
			md.RedirectURIs = tt.uris
			md.SubjectType = SubjectTypePairwise

			resp, err := registry.Register(ctx, md)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			requireRFCError(t, err, "invalid_client_metadata")
			assert.Equal(t, sectorMismatchDescription, oautherr.ToBody(err).ErrorDescription)
			assert.Nil(t, resp)
		})
	}

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1, "failed registrations persist nothing")
}

func TestParseMetadata_Schema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"redirect_uris not an array", `{"redirect_uris":"https://a/cb"}`},
		{"unknown auth method", `{"token_endpoint_auth_method":"tls_client_auth"}`},
		{"negative max age", `{"default_max_age":-1}`},
		{"jwks without keys", `{"jwks":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseMetadata([]byte(tt.body))
			requireRFCError(t, err, "invalid_client_metadata")
		})
	}
}

func TestRegistry_RFCErrorShape(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry(t, Policy{}, nil)

	md := webMetadata()
	md.ApplicationType = ""
	_, err := registry.Register(context.Background(), md)
	require.Error(t, err)
	assert.ErrorIs(t, err, oautherr.ErrInvalidClientMetadata)
	var rfcErr *fosite.RFC6749Error
	require.ErrorAs(t, err, &rfcErr)
	assert.Equal(t, http.StatusBadRequest, rfcErr.CodeField)
}
