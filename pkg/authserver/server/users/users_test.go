// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestRepository(t *testing.T) *StaticRepository {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	repo, err := NewStaticRepository([]StaticUser{
		{
			Subject:  "sub-alice",
			Username: "alice",
			Password: "wonderland",
			Claims: map[string]any{
				"name":         "Alice Liddell",
				"email":        "alice@example.com",
				"phone_number": "+1 555 0100",
			},
		},
		{Subject: "sub-bob", Username: "bob", Password: string(hashed)},
	}, bcrypt.MinCost)
	require.NoError(t, err)
	return repo
}

func TestStaticRepository_Authenticate(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantSub  string
		wantErr  error
	}{
		{"plaintext configured password", "alice", "wonderland", "sub-alice", nil},
		{"pre-hashed password", "bob", "hunter2", "sub-bob", nil},
		{"wrong password", "alice", "looking-glass", "", ErrInvalidCredentials},
		{"unknown user", "carol", "wonderland", "", ErrInvalidCredentials},
		{"empty password", "bob", "", "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user, err := repo.Authenticate(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, user.Subject)
		})
	}
}

func TestStaticRepository_GetBySubject(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)

	user, err := repo.GetBySubject(context.Background(), "sub-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	// Returned users are copies.
	user.Claims["name"] = "changed"
	again, err := repo.GetBySubject(context.Background(), "sub-alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", again.Claims["name"])

	_, err = repo.GetBySubject(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewStaticRepository_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewStaticRepository([]StaticUser{{Username: "x"}}, bcrypt.MinCost)
	assert.Error(t, err)

	_, err = NewStaticRepository([]StaticUser{
		{Subject: "1", Username: "x", Password: "p"},
		{Subject: "2", Username: "x", Password: "p"},
	}, bcrypt.MinCost)
	assert.ErrorContains(t, err, "duplicate")
}

func TestFilterClaims(t *testing.T) {
	t.Parallel()
	user := &User{
		Subject: "sub-alice",
		Claims: map[string]any{
			"name":         "Alice",
			"email":        "alice@example.com",
			"phone_number": "+1 555 0100",
			"address":      map[string]any{"country": "UK"},
		},
	}

	assert.Equal(t, map[string]any{"sub": "sub-alice"}, FilterClaims(user, []string{"openid"}))
	assert.Equal(t, map[string]any{
		"sub":   "sub-alice",
		"name":  "Alice",
		"email": "alice@example.com",
	}, FilterClaims(user, []string{"openid", "profile", "email"}))

	withAddress := FilterClaims(user, []string{"address", "phone"})
	assert.Contains(t, withAddress, "address")
	assert.Contains(t, withAddress, "phone_number")
	assert.NotContains(t, withAddress, "email")
}
