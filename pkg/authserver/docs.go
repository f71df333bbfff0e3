// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver assembles the OpenID Connect provider from its
// protocol components.
//
// The provider supports:
//   - Dynamic client registration and RFC 7592 client management
//   - Authorization code, implicit and hybrid flows with PKCE
//   - Password, client credentials, refresh token and token exchange grants
//   - UserInfo, ClientInfo and RFC 7662 introspection
//   - RP-initiated logout with front- and back-channel notification
//   - UMA 2.0 resource registration, permission tickets and RPTs
//   - Federation metadata and join requests
//
// # Usage
//
// The primary entry point is New, which builds the storage backend named
// in the configuration and returns a Server with a single handler:
//
//	cfg, err := authserver.LoadConfig("oxauth.yaml")
//	if err != nil {
//	    return err
//	}
//	srv, err := authserver.New(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	mux.Handle("/", srv.Handler())
//
// NewWithStorage accepts a caller-built storage.Storage instead.
//
// # Configuration
//
// Config is read from YAML. Every section has defaults, so a file holding
// only an issuer serves a development provider with in-memory storage and
// ephemeral signing keys.
package authserver
