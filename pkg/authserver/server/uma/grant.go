// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package uma

import (
	"context"
	"errors"
	"fmt"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/registration"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

// GrantType is the uma-ticket grant.
const GrantType = registration.GrantUMATicket

// Handler returns the token endpoint handler for the uma-ticket grant.
// An optional claim_token (an access token of this server) names the
// requesting party.
func (s *Service) Handler() token.GrantHandler {
	return func(ctx context.Context, client *storage.Client, req *token.Request) (*token.Response, error) {
		subject, err := s.claimSubject(ctx, req.Form.Get("claim_token"))
		if err != nil {
			return nil, err
		}
		return s.RequestRPT(ctx, client, req.Form.Get("ticket"), subject)
	}
}

func (s *Service) claimSubject(ctx context.Context, claimToken string) (string, error) {
	if claimToken == "" {
		return "", nil
	}
	tok, err := s.grants.GetToken(ctx, token.Signature(claimToken))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fosite.ErrInvalidGrant.WithHint("The claim token is invalid.")
		}
		return "", fmt.Errorf("failed to load claim token: %w", err)
	}
	if tok.Kind != storage.TokenKindAccess || !s.now().Before(tok.ExpiresAt) {
		return "", fosite.ErrInvalidGrant.WithHint("The claim token is invalid.")
	}
	return tok.Subject, nil
}

// RegisterGrant installs the uma-ticket grant on issuer.
func (s *Service) RegisterGrant(issuer *token.Issuer) {
	issuer.Register(GrantType, s.Handler())
}
