// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-core/logging"

	"github.com/stacklok/oxauth/pkg/authserver/server/jws"
	"github.com/stacklok/oxauth/pkg/authserver/server/keys"
	"github.com/stacklok/oxauth/pkg/authserver/server/oautherr"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

const (
	testIssuer     = "https://op.example.com"
	testPostLogout = "https://rp.example.com/logged-out"
)

type fixture struct {
	store    *storage.MemoryStorage
	engine   *jws.Engine
	notifier *Notifier
	manager  *Manager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	engine := jws.NewEngine(keys.NewGeneratingProvider(keys.DefaultAlgorithm))
	notifier := NewNotifier(http.DefaultClient, time.Second, 2, WithInitialBackoff(10*time.Millisecond))
	t.Cleanup(notifier.Wait)

	cfg.Issuer = testIssuer
	return &fixture{
		store:    store,
		engine:   engine,
		notifier: notifier,
		manager:  NewManager(store, store, engine, notifier, cfg),
	}
}

func (f *fixture) client(t *testing.T, id string, mutate func(*storage.Client)) *storage.Client {
	t.Helper()
	c := &storage.Client{
		ID:                     id,
		Secret:                 "secret-" + id,
		PostLogoutRedirectURIs: []string{testPostLogout},
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, f.store.CreateClient(context.Background(), c))
	return c
}

func (f *fixture) idToken(t *testing.T, aud, sid string, exp time.Time) string {
	t.Helper()
	token, err := f.engine.Sign(context.Background(), map[string]any{
		"iss": testIssuer,
		"sub": "user-1",
		"aud": aud,
		"sid": sid,
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}, jws.SignOptions{})
	require.NoError(t, err)
	return token
}

func TestManager_CreateOrResume(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	s1, err := f.manager.CreateOrResume(ctx, "user-1", "client-a", "")
	require.NoError(t, err)
	assert.NotEmpty(t, s1.ID)
	assert.Equal(t, []string{"client-a"}, s1.ClientIDs)
	assert.WithinDuration(t, time.Now().Add(DefaultLifetime), s1.ExpiresAt, time.Minute)

	resumed, err := f.manager.CreateOrResume(ctx, "user-1", "client-b", s1.ID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, resumed.ID)
	assert.Equal(t, []string{"client-a", "client-b"}, resumed.ClientIDs)

	stored, err := f.manager.Get(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"client-a", "client-b"}, stored.ClientIDs)

	other, err := f.manager.CreateOrResume(ctx, "user-2", "client-a", s1.ID)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, other.ID, "a session is never shared across subjects")

	fresh, err := f.manager.CreateOrResume(ctx, "user-1", "client-a", "unknown")
	require.NoError(t, err)
	assert.NotEqual(t, "unknown", fresh.ID)

	require.NoError(t, f.manager.Drop(ctx, s1.ID))
	_, err = f.manager.Get(ctx, s1.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEndSession_RedirectsWithState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.client(t, "client-a", nil)
	sess, err := f.manager.CreateOrResume(ctx, "user-1", "client-a", "")
	require.NoError(t, err)

	result, err := f.manager.EndSession(ctx, EndSessionRequest{
		IDTokenHint:           f.idToken(t, "client-a", sess.ID, time.Now().Add(time.Hour)),
		SessionID:             sess.ID,
		PostLogoutRedirectURI: testPostLogout,
		State:                 "af0ifjsldkj",
	})
	require.NoError(t, err)
	assert.Equal(t, testPostLogout+"?state=af0ifjsldkj", result.RedirectURL)
	assert.Empty(t, result.FrontChannelURIs)

	_, err = f.manager.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "session is deleted")
}

func TestEndSession_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.client(t, "client-a", nil)
	sess, err := f.manager.CreateOrResume(ctx, "user-1", "client-a", "")
	require.NoError(t, err)

	_, err = f.manager.EndSession(ctx, EndSessionRequest{
		IDTokenHint:           "not-a-token",
		SessionID:             "missing",
		PostLogoutRedirectURI: testPostLogout,
	})
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrantAndSession)

	_, err = f.manager.EndSession(ctx, EndSessionRequest{
		IDTokenHint:           f.idToken(t, "client-a", sess.ID, time.Now().Add(-time.Hour)),
		PostLogoutRedirectURI: testPostLogout,
	})
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrantAndSession, "hint expired beyond the leeway")

	_, err = f.manager.EndSession(ctx, EndSessionRequest{
		SessionID:             sess.ID,
		PostLogoutRedirectURI: "https://evil.example.com/",
	})
	assert.ErrorIs(t, err, oautherr.ErrPostLogoutURINotAssociated)

	_, err = f.manager.Get(ctx, sess.ID)
	require.NoError(t, err, "a rejected logout keeps the session")
}

func TestEndSession_HintWithinLeeway(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.client(t, "client-a", nil)

	result, err := f.manager.EndSession(ctx, EndSessionRequest{
		IDTokenHint:           f.idToken(t, "client-a", "", time.Now().Add(-time.Minute)),
		PostLogoutRedirectURI: testPostLogout,
	})
	require.NoError(t, err)
	assert.Equal(t, testPostLogout, result.RedirectURL)
}

func TestEndSession_RedirectFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{
		AllowRedirectFallback:     true,
		FallbackRedirectWhitelist: []string{testPostLogout},
	})

	result, err := f.manager.EndSession(context.Background(), EndSessionRequest{
		IDTokenHint:           "garbage",
		PostLogoutRedirectURI: testPostLogout,
		State:                 "s",
	})
	require.NoError(t, err)
	assert.Equal(t, testPostLogout+"?state=s", result.RedirectURL)

	_, err = f.manager.EndSession(context.Background(), EndSessionRequest{
		IDTokenHint:           "garbage",
		PostLogoutRedirectURI: "https://other.example.com/",
	})
	assert.ErrorIs(t, err, oautherr.ErrInvalidGrantAndSession)
}

func TestEndSession_Notifications(t *testing.T) {
	t.Parallel()

	var (
		mu           sync.Mutex
		frontQueries []url.Values
		logoutTokens []string
		done         = make(chan struct{}, 2)
	)
	rp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/front":
			frontQueries = append(frontQueries, r.URL.Query())
		case "/back":
			assert.NoError(t, r.ParseForm())
			logoutTokens = append(logoutTokens, r.PostForm.Get("logout_token"))
		}
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	t.Cleanup(rp.Close)

	f := newFixture(t, Config{})
	ctx := context.Background()
	f.client(t, "front", func(c *storage.Client) {
		c.FrontChannelLogoutURI = rp.URL + "/front"
		c.FrontChannelLogoutSessionRequired = true
	})
	f.client(t, "back", func(c *storage.Client) {
		c.BackChannelLogoutURI = rp.URL + "/back"
		c.FrontChannelLogoutURI = rp.URL + "/ignored"
	})
	sess, err := f.manager.CreateOrResume(ctx, "user-1", "front", "")
	require.NoError(t, err)
	_, err = f.manager.CreateOrResume(ctx, "user-1", "back", sess.ID)
	require.NoError(t, err)

	result, err := f.manager.EndSession(ctx, EndSessionRequest{
		SessionID:             sess.ID,
		PostLogoutRedirectURI: testPostLogout,
		State:                 "xyz",
	})
	require.NoError(t, err)
	assert.Empty(t, result.RedirectURL, "front-channel clients need the logout page")
	assert.Equal(t, testPostLogout+"?state=xyz", result.PostLogoutRedirectURI)
	require.Len(t, result.FrontChannelURIs, 1)
	assert.Contains(t, result.FrontChannelURIs[0], "sid="+sess.ID)

	for range 2 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("logout notification not delivered")
		}
	}
	f.notifier.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, frontQueries, 1)
	assert.Equal(t, testIssuer, frontQueries[0].Get("iss"))
	assert.Equal(t, sess.ID, frontQueries[0].Get("sid"))

	require.Len(t, logoutTokens, 1)
	claims, err := f.engine.Verify(ctx, logoutTokens[0], jws.VerifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "back", claims.String("aud"))
	assert.Equal(t, sess.ID, claims.String("sid"))
	assert.Equal(t, "user-1", claims.String("sub"))
	assert.Contains(t, claims["events"], backChannelLogoutEvent)
	assert.Empty(t, claims.String("nonce"))
}

func TestEndSessionResult_Write(t *testing.T) {
	t.Parallel()

	t.Run("redirect", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/end_session", nil)
		require.NoError(t, (&EndSessionResult{RedirectURL: testPostLogout}).Write(rec, r))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, testPostLogout, rec.Header().Get("Location"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	})

	t.Run("page", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/end_session", nil)
		result := &EndSessionResult{
			FrontChannelURIs:      []string{"https://rp.example.com/logout?sid=1&iss=x"},
			PostLogoutRedirectURI: `https://rp.example.com/done?state="</script>`,
		}
		require.NoError(t, result.Write(rec, r))

		body := rec.Body.String()
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Contains(t, body, `<iframe`)
		assert.Contains(t, body, `src="https://rp.example.com/logout?sid=1&amp;iss=x"`)
		assert.False(t, strings.Contains(body, `"</script>`), "redirect URI is escaped")
	})
}

func TestNotifier_Retries(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		attempts = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts[r.URL.Path]++
		n := attempts[r.URL.Path]
		mu.Unlock()

		switch {
		case r.URL.Path == "/flaky" && n < 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		case r.URL.Path == "/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)

	var (
		outcomes []bool
		omu      sync.Mutex
	)
	n := NewNotifier(srv.Client(), time.Second, 3,
		WithInitialBackoff(5*time.Millisecond),
		WithDeliveryHook(func(kind string, ok bool) {
			omu.Lock()
			defer omu.Unlock()
			assert.Equal(t, "frontchannel", kind)
			outcomes = append(outcomes, ok)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, []string{srv.URL + "/flaky", srv.URL + "/gone"}, nil)
	cancel() // deliveries are detached from the caller
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts["/flaky"])
	assert.Equal(t, 1, attempts["/gone"], "client errors are not retried")
	assert.ElementsMatch(t, []bool{true, false}, outcomes)
}

func TestNotifier_LogsFailureWithComponent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	base := logging.New(logging.WithOutput(&buf))
	n := NewNotifier(srv.Client(), time.Second, 0,
		WithLogger(base.With("component", "logout_notifier")),
	)

	n.Notify(context.Background(), []string{srv.URL + "/logout?sid=secret"}, nil)
	n.Wait()

	out := buf.String()
	assert.Contains(t, out, "logout notification failed")
	assert.Contains(t, out, "logout_notifier")
	assert.NotContains(t, out, "sid=secret")
}

func TestNewNotifier_DefaultLoggerIsScoped(t *testing.T) {
	t.Parallel()

	n := NewNotifier(nil, 0, 0)
	require.NotNil(t, n.log)
}
