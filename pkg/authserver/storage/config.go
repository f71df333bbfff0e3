// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import "time"

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses Redis Sentinel storage.
	TypeRedis Type = "redis"

	// TypeSQLite keeps clients and federation trusts in SQLite and
	// short-lived grant state in memory.
	TypeSQLite Type = "sqlite"

	// DefaultCleanupInterval is how often the background cleanup runs.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultInvalidatedCodeTTL is how long redeemed codes are kept for replay detection.
	DefaultInvalidatedCodeTTL = 30 * time.Minute
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type `json:"type,omitempty" yaml:"type,omitempty"`

	// Redis configures the Redis backend. Required when Type is redis.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`

	// SQLitePath is the database file used when Type is sqlite.
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	// CleanupInterval overrides DefaultCleanupInterval for the memory backend.
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty" yaml:"cleanup_interval,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
	}
}
