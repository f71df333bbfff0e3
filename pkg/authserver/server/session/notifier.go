// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/oxauth/pkg/logger"
)

// maxConcurrentNotifications bounds the fan-out of one logout.
const maxConcurrentNotifications = 8

// BackChannelTarget is a back-channel logout delivery.
type BackChannelTarget struct {
	ClientID    string
	URI         string
	LogoutToken string
}

// Notifier delivers front-channel and back-channel logout notifications in
// the background. Failures are logged and never reported to the caller.
type Notifier struct {
	client     *http.Client
	timeout    time.Duration
	maxTries   uint
	initial    time.Duration
	wg         sync.WaitGroup
	onDelivery func(kind string, ok bool)
	log        *slog.Logger
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		n.initial = d
	}
}

// WithDeliveryHook registers a callback invoked once per delivery with its
// kind ("frontchannel" or "backchannel") and outcome.
func WithDeliveryHook(hook func(kind string, ok bool)) NotifierOption {
	return func(n *Notifier) {
		n.onDelivery = hook
	}
}

// WithLogger replaces the component logger used for retry and failure logs.
func WithLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		n.log = l
	}
}

// NewNotifier creates a Notifier. timeout bounds each HTTP attempt and
// retries is the number of retries after the first attempt.
func NewNotifier(client *http.Client, timeout time.Duration, retries uint, opts ...NotifierOption) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	n := &Notifier{
		client:   client,
		timeout:  timeout,
		maxTries: retries + 1,
		initial:  200 * time.Millisecond,
		log:      logger.With("component", "logout_notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify starts delivering the notifications and returns immediately. The
// deliveries outlive ctx's cancellation but keep its values.
func (n *Notifier) Notify(ctx context.Context, front []string, back []BackChannelTarget) {
	if len(front) == 0 && len(back) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		// Every attempt is bounded, so the whole run is too.
		budget := time.Duration(n.maxTries) * (n.timeout + 10*n.initial)
		runCtx, cancel := context.WithTimeout(detached, budget)
		defer cancel()

		var g errgroup.Group
		g.SetLimit(maxConcurrentNotifications)
		for _, uri := range front {
			g.Go(func() error {
				n.deliver(runCtx, "frontchannel", uri, func(ctx context.Context) (*http.Request, error) {
					return http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
				})
				return nil
			})
		}
		for _, target := range back {
			g.Go(func() error {
				n.deliver(runCtx, "backchannel", target.URI, func(ctx context.Context) (*http.Request, error) {
					body := url.Values{"logout_token": {target.LogoutToken}}.Encode()
					req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URI, strings.NewReader(body))
					if err != nil {
						return nil, err
					}
					req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
					return req, nil
				})
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (n *Notifier) deliver(ctx context.Context, kind, uri string, build func(context.Context) (*http.Request, error)) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = n.initial
	expBackoff.MaxInterval = 10 * n.initial
	expBackoff.Reset()

	operation := func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		req, err := build(attemptCtx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := n.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode < 300:
			return struct{}{}, nil
		case resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(n.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			n.log.Debug("retrying logout notification", "kind", kind, "error", err, "delay", d)
		}),
	)
	if err != nil {
		n.log.Warn("logout notification failed", "kind", kind, "uri", redactQuery(uri), "error", err)
	}
	if n.onDelivery != nil {
		n.onDelivery(kind, err == nil)
	}
}

// Wait blocks until every started notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func redactQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}
