// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jws

import (
	"encoding/json"
	"math"
	"time"
)

// Claims is a decoded JWT claim set.
type Claims map[string]any

// String returns the named claim when it is a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Int64 returns the named numeric claim.
func (c Claims) Int64(name string) (int64, bool) {
	switch v := c[name].(type) {
	case float64:
		return int64(math.Floor(v)), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Time returns a NumericDate claim as a time.
func (c Claims) Time(name string) (time.Time, bool) {
	n, ok := c.Int64(name)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

// Audience returns the aud claim, accepting both the string and array forms.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

// HasAudience reports whether aud contains want.
func (c Claims) HasAudience(want string) bool {
	for _, a := range c.Audience() {
		if a == want {
			return true
		}
	}
	return false
}
