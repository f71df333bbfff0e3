// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withStorage runs a test function with a fresh MemoryStorage instance.
func withStorage(t *testing.T, fn func(context.Context, *MemoryStorage)) {
	t.Helper()
	t.Parallel()
	s := NewMemoryStorage()
	defer s.Close()
	fn(context.Background(), s)
}

func TestMemoryStorage(t *testing.T) {
	t.Parallel()
	runStorageSuite(t, func(t *testing.T) Storage {
		t.Helper()
		s := NewMemoryStorage()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStorage_ExpiredEntries(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreateAuthorizationCode(ctx, newTestCode("old", -time.Second)))
		_, err := s.ConsumeAuthorizationCode(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.CreateToken(ctx, newTestToken("stale", "g", TokenKindAccess, -time.Second)))
		_, err = s.GetToken(ctx, "stale")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.ConsumeToken(ctx, "stale")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStorage_CleanupExpired(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreateToken(ctx, newTestToken("live", "g1", TokenKindAccess, time.Hour)))
		require.NoError(t, s.CreateToken(ctx, newTestToken("dead", "g2", TokenKindAccess, -time.Minute)))
		require.NoError(t, s.CreateAuthorizationCode(ctx, newTestCode("dead-code", -time.Minute)))
		require.NoError(t, s.MarkJTIUsed(ctx, "old-jti", time.Now().Add(-time.Minute)))
		require.NoError(t, s.CreateSession(ctx, &Session{ID: "gone", ExpiresAt: time.Now().Add(-time.Minute)}))

		s.cleanupExpired()

		stats := s.Stats()
		assert.Equal(t, 1, stats.Tokens)
		assert.Equal(t, 1, stats.Grants)
		assert.Equal(t, 0, stats.AuthCodes)
		assert.Equal(t, 0, stats.AssertionJTIs)
		assert.Equal(t, 0, stats.Sessions)
	})
}

func TestMemoryStorage_CleanupLoop(t *testing.T) {
	t.Parallel()
	s := NewMemoryStorage(WithCleanupInterval(10 * time.Millisecond))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateToken(ctx, newTestToken("soon", "g", TokenKindAccess, 5*time.Millisecond)))

	assert.Eventually(t, func() bool {
		return s.Stats().Tokens == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreateClient(ctx, newTestClient("c")))

		got, err := s.GetClient(ctx, "c")
		require.NoError(t, err)
		got.RedirectURIs[0] = "https://evil.example.com"
		got.CustomAttributes["tier"] = "free"

		again, err := s.GetClient(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, "https://rp.example.com/cb", again.RedirectURIs[0])
		assert.Equal(t, "gold", again.CustomAttributes["tier"])
	})
}

func TestMemoryStorage_ExpiredTicketStillReadable(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *MemoryStorage) {
		require.NoError(t, s.CreatePermissionTicket(ctx, &PermissionTicket{
			Ticket:    "t",
			Status:    TicketRequested,
			ExpiresAt: time.Now().Add(-time.Second),
		}))
		ticket, err := s.GetPermissionTicket(ctx, "t")
		require.NoError(t, err)
		assert.True(t, time.Now().After(ticket.ExpiresAt))
	})
}
