// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys provides signing key management for the authorization server.
// It handles key lifecycle including loading from files, generation per
// algorithm family, and retrieval for signing and for the JWKS document.
package keys

import (
	"crypto"
	"errors"
	"strings"
	"time"
)

// DefaultAlgorithm is the default signing algorithm for ID tokens and other
// server-issued JWTs when a client does not register one.
const DefaultAlgorithm = "RS256"

// ErrNoSigningKey is returned when no key can sign with the requested algorithm.
var ErrNoSigningKey = errors.New("no signing key available for algorithm")

// SigningKeyData represents a signing key with its metadata.
// This contains private key material and should not be exposed externally.
type SigningKeyData struct {
	// KeyID is the unique identifier for this key (RFC 7638 thumbprint).
	KeyID string

	// Algorithm is the algorithm the key was requested for (e.g., "ES256", "PS384").
	Algorithm string

	// Key is the private key used for signing.
	Key crypto.Signer

	// CreatedAt is when this key was generated or loaded.
	CreatedAt time.Time
}

// PublicKeyData represents the public portion of a signing key.
// This is safe to expose via the JWKS endpoint.
type PublicKeyData struct {
	// KeyID is the unique identifier for this key (RFC 7638 thumbprint).
	KeyID string

	// Algorithm is the default algorithm advertised for the key.
	Algorithm string

	// PublicKey is the public key for verification.
	PublicKey crypto.PublicKey

	// CreatedAt is when this key was generated or loaded.
	CreatedAt time.Time
}

// Family returns the key family serving alg. RS and PS algorithms share one
// RSA key; each ES algorithm has its own curve. HMAC and unknown algorithms
// return "".
func Family(alg string) string {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		return "RSA"
	case alg == "ES256", alg == "ES384", alg == "ES512":
		return alg
	default:
		return ""
	}
}
