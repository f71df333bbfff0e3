// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ory/fosite"
	"golang.org/x/time/rate"

	"github.com/stacklok/oxauth/pkg/logger"
)

// limiterIdleTTL is how long an idle per-IP limiter is kept.
const limiterIdleTTL = 10 * time.Minute

// errRateLimited answers requests over the registration rate.
var errRateLimited = &fosite.RFC6749Error{
	ErrorField:       "rate_limited",
	DescriptionField: "Too many requests, retry later.",
	CodeField:        http.StatusTooManyRequests,
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per remote IP.
type ipRateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	lastSweep time.Time
}

func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limit:    limit,
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*ipLimiter),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, v := range l.limiters {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Middleware rejects requests from an IP over its rate with 429.
func (l *ipRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			logger.Warnw("registration rate limit exceeded", "remote_ip", ip)
			w.Header().Set("Retry-After", "1")
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
