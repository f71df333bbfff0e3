// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder counts protocol events. A nil Recorder records nothing.
type Recorder struct {
	tokens         metric.Int64Counter
	tokenErrors    metric.Int64Counter
	registrations  metric.Int64Counter
	authorizations metric.Int64Counter
	logouts        metric.Int64Counter
	notifications  metric.Int64Counter
}

// NewRecorder creates the protocol counters on mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &Recorder{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&r.tokens, "oxauth.tokens.issued", "Token endpoint responses that issued tokens"},
		{&r.tokenErrors, "oxauth.tokens.errors", "Token endpoint responses that failed"},
		{&r.registrations, "oxauth.clients.registered", "Dynamically registered clients"},
		{&r.authorizations, "oxauth.authorizations", "Authorization requests by outcome"},
		{&r.logouts, "oxauth.sessions.ended", "Sessions ended through the end-session endpoint"},
		{&r.notifications, "oxauth.logout.notifications", "Logout notifications by channel and result"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return r, nil
}

// TokenIssued records a successful token response.
func (r *Recorder) TokenIssued(ctx context.Context, grantType string) {
	if r == nil {
		return
	}
	r.tokens.Add(ctx, 1, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// TokenFailed records a token error response with its OAuth error code.
func (r *Recorder) TokenFailed(ctx context.Context, grantType, code string) {
	if r == nil {
		return
	}
	r.tokenErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("error", code),
	))
}

// ClientRegistered records a dynamic client registration.
func (r *Recorder) ClientRegistered(ctx context.Context, applicationType string) {
	if r == nil {
		return
	}
	r.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("application_type", applicationType)))
}

// Authorization records the outcome of an authorization request: "granted"
// or the OAuth error code.
func (r *Recorder) Authorization(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.authorizations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionEnded records a logout.
func (r *Recorder) SessionEnded(ctx context.Context) {
	if r == nil {
		return
	}
	r.logouts.Add(ctx, 1)
}

// LogoutDelivered records a front- or back-channel logout delivery attempt
// that has finished retrying.
func (r *Recorder) LogoutDelivered(kind string, ok bool) {
	if r == nil {
		return
	}
	r.notifications.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("channel", kind),
		attribute.Bool("delivered", ok),
	))
}
