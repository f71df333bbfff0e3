// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import "fmt"

// KeyType identifies the kind of entry stored under a Redis key.
type KeyType string

// Redis key types. Entry keys are "{prefix}{type}:{id}"; set indexes use the
// same layout with an index key type.
const (
	KeyTypeClient       KeyType = "client"
	KeyTypeClientIndex  KeyType = "clients"
	KeyTypeAuthCode     KeyType = "authcode"
	KeyTypeRedeemedCode KeyType = "redeemed"
	KeyTypeToken        KeyType = "token"
	KeyTypeGrant        KeyType = "grant"
	KeyTypeJTI          KeyType = "jti"
	KeyTypeSession      KeyType = "session"
	KeyTypeResourceSet  KeyType = "resource"
	KeyTypeTicket       KeyType = "ticket"
	KeyTypeTrust        KeyType = "trust"
)

// redisKey builds the key for a single entry.
func redisKey(prefix string, keyType KeyType, id string) string {
	return fmt.Sprintf("%s%s:%s", prefix, keyType, id)
}

// redisSetKey builds the key for a set index.
func redisSetKey(prefix string, keyType KeyType, id string) string {
	return fmt.Sprintf("%s%s:set:%s", prefix, keyType, id)
}

// DeriveKeyPrefix returns the key prefix for a named deployment.
func DeriveKeyPrefix(name string) string {
	if name == "" {
		name = "default"
	}
	return fmt.Sprintf("oxauth:%s:", name)
}
