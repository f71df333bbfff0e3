// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides key loading, key generation and PKCE helpers for
// the authorization server.
package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// MinRSAKeyBits is the smallest RSA modulus accepted for signing keys.
const MinRSAKeyBits = 2048

// LoadSigningKey loads a private key from a PEM file.
// Supports RSA (PKCS1 and PKCS8) and ECDSA (SEC1 and PKCS8) formats.
func LoadSigningKey(keyPath string) (crypto.Signer, error) {
	keyPEM, err := os.ReadFile(keyPath) // #nosec G304 - keyPath is provided by operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return ParseSigningKey(keyPEM)
}

// ParseSigningKey parses a PEM encoded private key.
func ParseSigningKey(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block from signing key")
	}

	var signer crypto.Signer
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		signer = rsaKey
	} else if ecKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		signer = ecKey
	} else {
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		s, ok := key.(crypto.Signer)
		if !ok {
			return nil, errors.New("signing key does not implement crypto.Signer")
		}
		signer = s
	}

	if rsaKey, ok := signer.(*rsa.PrivateKey); ok && rsaKey.N.BitLen() < MinRSAKeyBits {
		return nil, fmt.Errorf("RSA key size %d bits is below minimum required %d bits", rsaKey.N.BitLen(), MinRSAKeyBits)
	}
	return signer, nil
}

// EncodePrivateKeyPEM encodes a signing key as PKCS8 PEM.
func EncodePrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// DeriveKeyID computes a key ID from the public key using RFC 7638 JWK Thumbprint.
// The thumbprint is computed as base64url(SHA-256(JWK canonical form)).
func DeriveKeyID(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}

	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// DeriveAlgorithm determines the default JWS algorithm for the given key.
func DeriveAlgorithm(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		return deriveECAlgorithm(k.Curve)
	default:
		return "", fmt.Errorf("unsupported key type: %T", key)
	}
}

func deriveECAlgorithm(curve elliptic.Curve) (string, error) {
	switch curve {
	case elliptic.P256():
		return "ES256", nil
	case elliptic.P384():
		return "ES384", nil
	case elliptic.P521():
		return "ES512", nil
	default:
		return "", fmt.Errorf("unsupported EC curve: %s", curve.Params().Name)
	}
}

// curveForAlgorithm returns the curve an ES algorithm is bound to.
func curveForAlgorithm(alg string) (elliptic.Curve, bool) {
	switch alg {
	case "ES256":
		return elliptic.P256(), true
	case "ES384":
		return elliptic.P384(), true
	case "ES512":
		return elliptic.P521(), true
	}
	return nil, false
}

// ValidateAlgorithmForKey checks if the provided algorithm is compatible with the key type.
// RSA keys serve both the RS and PS families; EC keys serve the ES
// algorithm bound to their curve.
func ValidateAlgorithmForKey(alg string, key crypto.Signer) error {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") {
			switch alg[2:] {
			case "256", "384", "512":
				return nil
			}
		}
		return fmt.Errorf("algorithm %s is not compatible with RSA key", alg)
	case *ecdsa.PrivateKey:
		expectedAlg, err := deriveECAlgorithm(k.Curve)
		if err != nil {
			return err
		}
		if alg != expectedAlg {
			return fmt.Errorf("algorithm %s is not compatible with EC key using curve %s (expected %s)",
				alg, k.Curve.Params().Name, expectedAlg)
		}
		return nil
	default:
		return fmt.Errorf("unsupported key type: %T", key)
	}
}

// GenerateSigningKey creates a fresh private key suitable for alg.
func GenerateSigningKey(alg string) (crypto.Signer, error) {
	if curve, ok := curveForAlgorithm(alg); ok {
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate EC key: %w", err)
		}
		return key, nil
	}
	if strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") {
		key, err := rsa.GenerateKey(rand.Reader, MinRSAKeyBits)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("cannot generate key for algorithm %s", alg)
}

// SigningKeyParams contains the derived or configured parameters for a signing key.
type SigningKeyParams struct {
	// Key is the private key used for signing.
	Key crypto.Signer
	// KeyID is the key identifier (either derived from thumbprint or configured).
	KeyID string
	// Algorithm is the signing algorithm (either derived from key type or configured).
	Algorithm string
}

// DeriveSigningKeyParams derives or validates signing key parameters.
// If keyID or algorithm are empty, they are derived from the key.
// If they are provided, they are validated against the key type.
func DeriveSigningKeyParams(key crypto.Signer, keyID, algorithm string) (*SigningKeyParams, error) {
	params := &SigningKeyParams{Key: key, KeyID: keyID, Algorithm: algorithm}

	if params.KeyID == "" {
		derivedID, err := DeriveKeyID(key)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key ID: %w", err)
		}
		params.KeyID = derivedID
	}

	if params.Algorithm == "" {
		derivedAlg, err := DeriveAlgorithm(key)
		if err != nil {
			return nil, fmt.Errorf("failed to derive algorithm: %w", err)
		}
		params.Algorithm = derivedAlg
	} else if err := ValidateAlgorithmForKey(algorithm, key); err != nil {
		return nil, err
	}

	return params, nil
}
