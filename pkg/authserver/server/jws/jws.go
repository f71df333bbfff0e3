// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jws signs and verifies the compact JWTs the server issues and
// accepts: ID tokens, request objects, logout tokens and signed federation
// metadata. Asymmetric algorithms run on go-jose; HMAC algorithms use the
// golang-jwt signing methods so that client secrets of any length work.
package jws

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/oxauth/pkg/authserver/server/keys"
)

// AlgNone is the unsecured JWS algorithm, accepted only when explicitly allowed.
const AlgNone = "none"

// Verification and signing errors.
var (
	ErrAlgorithmMismatch    = errors.New("jws: algorithm mismatch")
	ErrKeyFamilyMismatch    = errors.New("jws: key family does not match algorithm")
	ErrSignatureInvalid     = errors.New("jws: signature invalid")
	ErrTokenExpired         = errors.New("jws: token expired")
	ErrUnsupportedAlgorithm = errors.New("jws: unsupported algorithm")
	ErrMalformed            = errors.New("jws: malformed token")
	ErrKeyNotFound          = errors.New("jws: no verification key")
)

// SupportedAlgorithms lists every signing algorithm the engine handles.
var SupportedAlgorithms = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
}

// IsSupported reports whether alg is a supported signing algorithm.
func IsSupported(alg string) bool {
	return slices.Contains(SupportedAlgorithms, alg)
}

// IsHMAC reports whether alg is one of the HS algorithms.
func IsHMAC(alg string) bool {
	return strings.HasPrefix(alg, "HS") && IsSupported(alg)
}

// SignOptions selects how a token is signed.
type SignOptions struct {
	// Alg is the JWS algorithm. Empty selects the key provider's default.
	Alg string
	// KID pins a specific key; when empty the key is chosen by algorithm family.
	KID string
	// HMACSecret is the shared secret for HS algorithms.
	HMACSecret []byte
	// Type overrides the typ header (default "JWT").
	Type string
}

// VerifyOptions controls verification.
type VerifyOptions struct {
	// ExpectedAlg, when set, must equal the header alg.
	ExpectedAlg string
	// HMACSecret verifies HS algorithms.
	HMACSecret []byte
	// KeySet verifies asymmetric algorithms. Nil means the engine's own keys.
	KeySet *jose.JSONWebKeySet
	// AllowNone accepts unsecured tokens. ExpectedAlg must also be "none".
	AllowNone bool
	// Leeway is the clock skew tolerated on exp.
	Leeway time.Duration
	// SkipExpiry disables the exp check.
	SkipExpiry bool
}

// Header is the protected header of a compact JWS.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// Engine signs with server keys and verifies with server or client keys.
type Engine struct {
	keys keys.KeyProvider
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given key provider.
func NewEngine(provider keys.KeyProvider) *Engine {
	return &Engine{keys: provider, now: time.Now}
}

// Sign serializes claims and signs them as a compact JWS.
func (e *Engine) Sign(ctx context.Context, claims any, opts SignOptions) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}
	typ := opts.Type
	if typ == "" {
		typ = "JWT"
	}

	if IsHMAC(opts.Alg) {
		if len(opts.HMACSecret) == 0 {
			return "", fmt.Errorf("%w: %s requires a shared secret", ErrKeyNotFound, opts.Alg)
		}
		return signHMAC(opts.Alg, typ, payload, opts.HMACSecret)
	}
	if opts.Alg != "" && keys.Family(opts.Alg) == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, opts.Alg)
	}

	key, err := e.keys.SigningKey(ctx, opts.Alg)
	if err != nil {
		return "", fmt.Errorf("failed to get signing key: %w", err)
	}
	if opts.KID != "" && opts.KID != key.KeyID {
		return "", fmt.Errorf("%w: kid %s", ErrKeyNotFound, opts.KID)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.SignatureAlgorithm(key.Algorithm),
			Key:       jose.JSONWebKey{Key: key.Key, KeyID: key.KeyID},
		},
		(&jose.SignerOptions{}).WithType(jose.ContentType(typ)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return obj.CompactSerialize()
}

func signHMAC(alg, typ string, payload, secret []byte) (string, error) {
	header, err := json.Marshal(Header{Alg: alg, Typ: typ})
	if err != nil {
		return "", err
	}
	signingInput := encodeSegment(header) + "." + encodeSegment(payload)
	sig, err := jwt.GetSigningMethod(alg).Sign(signingInput, secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signingInput + "." + encodeSegment(sig), nil
}

// ParseHeader decodes the protected header without verifying anything.
func ParseHeader(token string) (*Header, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &h, nil
}

// Verify checks token's signature and expiry and returns its claims.
func (e *Engine) Verify(ctx context.Context, token string, opts VerifyOptions) (Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if opts.ExpectedAlg != "" && header.Alg != opts.ExpectedAlg {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrAlgorithmMismatch, header.Alg, opts.ExpectedAlg)
	}

	var payload []byte
	switch {
	case header.Alg == AlgNone:
		if !opts.AllowNone || opts.ExpectedAlg != AlgNone {
			return nil, fmt.Errorf("%w: none", ErrUnsupportedAlgorithm)
		}
		payload, err = verifyNone(token)
	case IsHMAC(header.Alg):
		if len(opts.HMACSecret) == 0 {
			return nil, fmt.Errorf("%w: no shared secret for %s", ErrKeyFamilyMismatch, header.Alg)
		}
		payload, err = verifyHMAC(token, header.Alg, opts.HMACSecret)
	case IsSupported(header.Alg):
		keySet := opts.KeySet
		if keySet == nil {
			keySet, err = e.PublicKeySet(ctx)
			if err != nil {
				return nil, err
			}
		}
		payload, err = verifyAsymmetric(token, header, keySet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, header.Alg)
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var claims Claims
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}

	if !opts.SkipExpiry {
		if exp, ok := claims.Time("exp"); ok && e.now().After(exp.Add(opts.Leeway)) {
			return claims, ErrTokenExpired
		}
	}
	return claims, nil
}

func verifyNone(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if parts[2] != "" {
		return nil, ErrSignatureInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return payload, nil
}

func verifyHMAC(token, alg string, secret []byte) ([]byte, error) {
	i := strings.LastIndex(token, ".")
	sig, err := base64.RawURLEncoding.DecodeString(token[i+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := jwt.GetSigningMethod(alg).Verify(token[:i], sig, secret); err != nil {
		return nil, ErrSignatureInvalid
	}
	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return payload, nil
}

func verifyAsymmetric(token string, header *Header, keySet *jose.JSONWebKeySet) ([]byte, error) {
	obj, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.SignatureAlgorithm(header.Alg)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	candidates := keySet.Keys
	if header.Kid != "" {
		candidates = keySet.Key(header.Kid)
	}
	if len(candidates) == 0 {
		return nil, ErrKeyNotFound
	}

	matched := false
	for _, k := range candidates {
		if !keyMatchesAlg(header.Alg, k.Key) {
			continue
		}
		matched = true
		if payload, err := obj.Verify(k.Key); err == nil {
			return payload, nil
		}
	}
	if !matched {
		return nil, ErrKeyFamilyMismatch
	}
	return nil, ErrSignatureInvalid
}

// keyMatchesAlg checks that a public key belongs to alg's family. EC keys
// must be on the curve bound to the ES algorithm.
func keyMatchesAlg(alg string, key any) bool {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return keys.Family(alg) == "RSA"
	case *ecdsa.PublicKey:
		switch alg {
		case "ES256":
			return k.Curve == elliptic.P256()
		case "ES384":
			return k.Curve == elliptic.P384()
		case "ES512":
			return k.Curve == elliptic.P521()
		}
	}
	return false
}

// PublicKeySet returns the server's public keys as a JWK set.
func (e *Engine) PublicKeySet(ctx context.Context) (*jose.JSONWebKeySet, error) {
	pubKeys, err := e.keys.PublicKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get public keys: %w", err)
	}
	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(pubKeys))}
	for _, pk := range pubKeys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       pk.PublicKey,
			KeyID:     pk.KeyID,
			Algorithm: pk.Algorithm,
			Use:       "sig",
		})
	}
	return set, nil
}

// ParseKeySet decodes an inline JWKS document.
func ParseKeySet(raw []byte) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("invalid JWKS: %w", err)
	}
	return &set, nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
