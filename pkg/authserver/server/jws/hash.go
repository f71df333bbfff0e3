// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jws

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
)

// Hash computes the at_hash / c_hash value for value: the left half of the
// digest selected by alg's size, base64url encoded without padding.
func Hash(alg, value string) (string, error) {
	var h hash.Hash
	switch bits(alg) {
	case "256":
		h = sha256.New()
	case "384":
		h = sha512.New384()
	case "512":
		h = sha512.New()
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}

func bits(alg string) string {
	if len(alg) != 5 {
		return ""
	}
	return alg[2:]
}
