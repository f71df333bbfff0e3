// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/logger"
)

// DefaultSectorIdentifierTimeout bounds a sector_identifier_uri fetch.
const DefaultSectorIdentifierTimeout = 5 * time.Second

// maxSectorDocumentSize caps the sector identifier document.
const maxSectorDocumentSize = 64 << 10

// sectorMismatchDescription is the error description returned for any
// sector identifier failure.
const sectorMismatchDescription = "Failed to validate redirect uris. No redirect_uri in sector_identifier_uri content."

// SectorVerifier fetches sector identifier documents. Concurrent
// registrations naming the same URI share a single fetch.
type SectorVerifier struct {
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
}

// NewSectorVerifier creates a verifier. A nil client uses http.DefaultClient.
func NewSectorVerifier(client *http.Client, timeout time.Duration) *SectorVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultSectorIdentifierTimeout
	}
	return &SectorVerifier{client: client, timeout: timeout}
}

// Verify checks that the document at sectorURI lists every redirect URI.
func (v *SectorVerifier) Verify(ctx context.Context, sectorURI string, redirectURIs []string) error {
	listed, err := v.fetch(ctx, sectorURI)
	if err != nil {
		logger.Debugw("sector identifier fetch failed", "sector_identifier_uri", sectorURI, "error", err)
		return oautherr.ErrInvalidClientMetadata.WithDescription(sectorMismatchDescription)
	}
	for _, uri := range redirectURIs {
		if !slices.Contains(listed, uri) {
			logger.Debugw("redirect uri missing from sector identifier document",
				"sector_identifier_uri", sectorURI, "redirect_uri", uri)
			return oautherr.ErrInvalidClientMetadata.WithDescription(sectorMismatchDescription)
		}
	}
	return nil
}

func (v *SectorVerifier) fetch(ctx context.Context, sectorURI string) ([]string, error) {
	result, err, _ := v.group.Do(sectorURI, func() (any, error) {
		// The shared fetch must not be cancelled by whichever caller started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return v.doFetch(fetchCtx, sectorURI)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (v *SectorVerifier) doFetch(ctx context.Context, sectorURI string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sectorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sector identifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sector identifier returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSectorDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read sector identifier: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("sector identifier document is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, errors.New("sector identifier document is not a JSON array")
	}
	var uris []string
	for _, item := range doc.Array() {
		if item.Type == gjson.String {
			uris = append(uris, item.String())
		}
	}
	return uris, nil
}
