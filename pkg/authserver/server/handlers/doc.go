// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides the HTTP layer of the OpenID Connect provider.
//
// Handlers translate HTTP requests into calls on the protocol services
// (registration, authorize, token, session, tokeninfo, uma and federation)
// and render their results. They hold no state of their own.
package handlers
