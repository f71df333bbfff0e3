// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"fmt"

	"github.com/stacklok/oxauth/pkg/authserver/storage"
	"github.com/stacklok/oxauth/pkg/authserver/storage/sqlite"
	"github.com/stacklok/oxauth/pkg/logger"
)

// NewStorage creates the storage backend described by cfg.
func NewStorage(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
	var memOpts []storage.MemoryStorageOption
	if cfg.CleanupInterval > 0 {
		memOpts = append(memOpts, storage.WithCleanupInterval(cfg.CleanupInterval))
	}

	switch cfg.Type {
	case storage.TypeMemory, "":
		logger.Debug("using in-memory storage")
		return storage.NewMemoryStorage(memOpts...), nil

	case storage.TypeRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis configuration is required for redis storage")
		}
		logger.Debugw("using redis storage",
			"master", sentinelMaster(cfg.Redis), "key_prefix", cfg.Redis.KeyPrefix)
		return storage.NewRedisStorage(ctx, *cfg.Redis)

	case storage.TypeSQLite:
		logger.Debugw("using sqlite storage for clients", "path", cfg.SQLitePath)
		durable, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return storage.NewCompositeStorage(durable, storage.NewMemoryStorage(memOpts...)), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func sentinelMaster(cfg *storage.RedisConfig) string {
	if cfg.SentinelConfig == nil {
		return ""
	}
	return cfg.SentinelConfig.MasterName
}
