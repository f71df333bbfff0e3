// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package users

// ScopeClaims maps the standard OpenID scopes to the claims they release.
var ScopeClaims = map[string][]string{
	"profile": {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// FilterClaims returns the subset of the user's claims released by scopes.
// sub is always included.
func FilterClaims(u *User, scopes []string) map[string]any {
	out := map[string]any{"sub": u.Subject}
	for _, scope := range scopes {
		for _, name := range ScopeClaims[scope] {
			if v, ok := u.Claims[name]; ok {
				out[name] = v
			}
		}
	}
	return out
}
