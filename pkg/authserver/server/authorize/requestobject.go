// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authorize

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ory/fosite"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/server/token"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

const maxRequestObjectSize = 64 << 10

// fetchRequestURI downloads a request object by reference. A fragment, when
// present, must be the base64url SHA-256 of the body.
func (e *Engine) fetchRequestURI(ctx context.Context, requestURI string) (string, error) {
	u, err := url.Parse(requestURI)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", oautherr.ErrInvalidRequestURI.WithHint("The request_uri must be an absolute https URL.")
	}
	fragment := u.Fragment
	u.Fragment = ""

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestURITimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", oautherr.ErrInvalidRequestURI.WithHint("The request_uri is invalid.")
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return "", oautherr.ErrInvalidRequestURI.WithHint("The request_uri could not be fetched.")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", oautherr.ErrInvalidRequestURI.WithHintf("The request_uri returned status %d.", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestObjectSize))
	if err != nil {
		return "", oautherr.ErrInvalidRequestURI.WithHint("The request_uri body could not be read.")
	}

	if fragment != "" {
		sum := sha256.Sum256(body)
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(want), []byte(fragment)) != 1 {
			return "", oautherr.ErrInvalidRequestURI.WithHint("The request_uri content does not match its hash.")
		}
	}
	return strings.TrimSpace(string(body)), nil
}

// verifyRequestObject checks the request object signature and merges its
// claims into req. Claims present in both places must agree.
func (e *Engine) verifyRequestObject(ctx context.Context, client *storage.Client, req *Request) (jws.Claims, error) {
	header, err := jws.ParseHeader(req.Request)
	if err != nil {
		return nil, oautherr.ErrInvalidRequestObject.WithHint("The request object is malformed.")
	}

	expected := client.RequestObjectSigningAlg
	if expected == "" {
		expected = header.Alg
	}
	opts := jws.VerifyOptions{ExpectedAlg: expected, AllowNone: client.RequestObjectSigningAlg == jws.AlgNone}
	switch {
	case header.Alg == jws.AlgNone:
	case jws.IsHMAC(header.Alg):
		opts.HMACSecret = []byte(client.Secret)
	default:
		keySet, err := token.ClientKeySet(ctx, client, e.remote)
		if err != nil {
			return nil, oautherr.ErrInvalidRequestObject.WithHint("The client keys could not be resolved.")
		}
		opts.KeySet = keySet
	}

	claims, err := e.jwt.Verify(ctx, req.Request, opts)
	if err != nil {
		return nil, oautherr.ErrInvalidRequestObject.WithHintf("The request object could not be verified: %v.", errorReason(err))
	}

	if aud := claims.Audience(); len(aud) > 0 && !claims.HasAudience(e.cfg.Issuer) {
		return nil, oautherr.ErrInvalidRequestObject.WithHint("The request object audience does not include the issuer.")
	}
	if iss := claims.String("iss"); iss != "" && iss != client.ID {
		return nil, oautherr.ErrInvalidRequestObject.WithHint("The request object issuer must be the client.")
	}
	if err := mergeClaims(claims, req); err != nil {
		return nil, err
	}
	return claims, nil
}

func errorReason(err error) string {
	for _, sentinel := range []error{
		jws.ErrAlgorithmMismatch, jws.ErrKeyFamilyMismatch, jws.ErrSignatureInvalid,
		jws.ErrTokenExpired, jws.ErrUnsupportedAlgorithm, jws.ErrKeyNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "malformed"
}

func mergeClaims(claims jws.Claims, req *Request) error {
	fields := []struct {
		name  string
		value *string
		equal func(a, b string) bool
	}{
		{"response_type", &req.ResponseType, sameSet},
		{"client_id", &req.ClientID, nil},
		{"scope", &req.Scope, sameSet},
		{"redirect_uri", &req.RedirectURI, nil},
		{"state", &req.State, nil},
		{"nonce", &req.Nonce, nil},
		{"prompt", &req.Prompt, sameSet},
		{"max_age", &req.MaxAge, nil},
		{"code_challenge", &req.CodeChallenge, nil},
		{"code_challenge_method", &req.CodeChallengeMethod, nil},
		{"acr_values", &req.ACRValues, sameSet},
		{"response_mode", &req.ResponseMode, nil},
	}

	for _, f := range fields {
		raw, ok := claims[f.name]
		if !ok {
			continue
		}
		value, ok := claimString(raw)
		if !ok {
			return oautherr.ErrInvalidRequestObject.WithHintf("The %s claim has an invalid type.", f.name)
		}
		if *f.value == "" {
			*f.value = value
			continue
		}
		equal := f.equal
		if equal == nil {
			equal = func(a, b string) bool { return a == b }
		}
		if !equal(*f.value, value) {
			return oautherr.ErrInvalidRequestObject.WithHintf("The %s claim does not match the request parameter.", f.name)
		}
	}
	return nil
}

func claimString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer: // json.Number
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func sameSet(a, b string) bool {
	return fosite.Arguments(strings.Fields(a)).Matches(strings.Fields(b)...)
}
