// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCE challenge methods (RFC 7636 Section 4.2).
const (
	PKCEChallengeMethodS256  = "S256"
	PKCEChallengeMethodPlain = "plain"
)

// GeneratePKCEVerifier generates a cryptographically random code_verifier
// per RFC 7636 Section 4.1.
//
// This function delegates to oauth2.GenerateVerifier() from golang.org/x/oauth2.
// It will panic on crypto/rand read failure.
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge computes the code_challenge from a code_verifier
// using the S256 method per RFC 7636 Section 4.2.
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyPKCE checks a code_verifier against the stored challenge. An empty
// method means plain.
func VerifyPKCE(method, challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	computed := verifier
	switch method {
	case PKCEChallengeMethodS256:
		computed = ComputePKCEChallenge(verifier)
	case PKCEChallengeMethodPlain, "":
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
