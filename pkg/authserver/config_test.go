// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oxauth/pkg/authserver/server/federation"
	"github.com/stacklok/oxauth/pkg/authserver/server/users"
	"github.com/stacklok/oxauth/pkg/authserver/storage"
)

const sampleConfig = `
issuer: https://op.example.com
pairwise_salt: 0123456789abcdef0123
lifetimes:
  access_token: 15m
  refresh_token: 720h
storage:
  type: sqlite
  sqlite_path: /var/lib/oxauth/clients.db
registration:
  redirect_host_blacklist: ["*.evil.example"]
  custom_attributes: [tenant]
  secret_lifetime: 2160h
session:
  allow_redirect_fallback: true
  fallback_redirect_whitelist: ["https://rp.example.com/bye"]
federation:
  require_trust: true
  federations:
    - id: fed-1
      display_name: Federation One
uma:
  enabled: true
  policies:
    - 'permit (principal, action, resource);'
introspection:
  whitelist: [10.0.0.0/8]
http:
  registration_rate: 0.5
  registration_burst: 5
users:
  - subject: user-1
    username: alice
    password: wonderland
    claims:
      email: alice@example.com
telemetry:
  enable_prometheus_metrics_path: true
  sampling_rate: 0.1
`

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://op.example.com", cfg.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Lifetimes.AccessToken)
	assert.Equal(t, 720*time.Hour, cfg.Lifetimes.RefreshToken)
	assert.Equal(t, storage.TypeSQLite, cfg.Storage.Type)
	assert.Equal(t, []string{"tenant"}, cfg.Registration.CustomAttributes)
	assert.Equal(t, 2160*time.Hour, cfg.Registration.SecretLifetime)
	assert.True(t, cfg.Session.AllowRedirectFallback)
	require.Len(t, cfg.Federation.Federations, 1)
	assert.Equal(t, "fed-1", cfg.Federation.Federations[0].ID)
	assert.True(t, cfg.Federation.RequireTrust)
	assert.True(t, cfg.UMA.Enabled)
	assert.Equal(t, 0.5, cfg.HTTP.RegistrationRate)
	assert.Equal(t, []users.StaticUser{{
		Subject: "user-1", Username: "alice", Password: "wonderland",
		Claims: map[string]any{"email": "alice@example.com"},
	}}, cfg.Users)
	assert.True(t, cfg.Telemetry.EnablePrometheusMetricsPath)

	cfg.applyDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig([]byte("issuer: https://op.example.com\nunknown_key: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_key")

	_, err = ParseConfig([]byte("lifetimes:\n  access_token: soon\n"))
	assert.Error(t, err)
}

func TestParseConfig_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Issuer)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "oxauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://op.example.com", cfg.Issuer)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg := Config{Issuer: "https://op.example.com"}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "minimal", mutate: func(*Config) {}},
		{name: "loopback http issuer", mutate: func(c *Config) { c.Issuer = "http://127.0.0.1:8080" }},
		{name: "missing issuer", mutate: func(c *Config) { c.Issuer = "" }, wantErr: "issuer is required"},
		{name: "relative issuer", mutate: func(c *Config) { c.Issuer = "/op" }, wantErr: "absolute URL"},
		{name: "issuer with query", mutate: func(c *Config) { c.Issuer = "https://op.example.com?a=b" }, wantErr: "query"},
		{name: "plain http issuer", mutate: func(c *Config) { c.Issuer = "http://op.example.com" }, wantErr: "https"},
		{name: "short salt", mutate: func(c *Config) { c.PairwiseSalt = "short" }, wantErr: "pairwise_salt"},
		{name: "hmac id token alg", mutate: func(c *Config) { c.DefaultIDTokenAlg = "HS256" }, wantErr: "default_id_token_alg"},
		{name: "unknown id token alg", mutate: func(c *Config) { c.DefaultIDTokenAlg = "XX999" }, wantErr: "default_id_token_alg"},
		{name: "redis without settings", mutate: func(c *Config) { c.Storage.Type = storage.TypeRedis }, wantErr: "storage.redis"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Type = storage.TypeSQLite }, wantErr: "sqlite_path"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "etcd" }, wantErr: "unknown storage type"},
		{
			name: "duplicate federation",
			mutate: func(c *Config) {
				c.Federation.Federations = []federation.Federation{{ID: "a"}, {ID: "a"}}
			},
			wantErr: "duplicate federation id",
		},
		{
			name:    "fallback without whitelist",
			mutate:  func(c *Config) { c.Session.AllowRedirectFallback = true },
			wantErr: "fallback_redirect_whitelist",
		},
		{
			name: "duplicate username",
			mutate: func(c *Config) {
				c.Users = []users.StaticUser{{Subject: "1", Username: "a"}, {Subject: "2", Username: "a"}}
			},
			wantErr: "duplicate username",
		},
		{
			name:    "user without subject",
			mutate:  func(c *Config) { c.Users = []users.StaticUser{{Username: "a"}} },
			wantErr: "subject and username",
		},
		{name: "bad sampling rate", mutate: func(c *Config) { c.Telemetry.SamplingRate = 2 }, wantErr: "telemetry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClaimsSupported(t *testing.T) {
	t.Parallel()
	claims := claimsSupported([]users.StaticUser{
		{Claims: map[string]any{"zoneinfo": "UTC", "email": "a@example.com"}},
		{Claims: map[string]any{"email": "b@example.com", "sub": "x"}},
	})
	assert.Contains(t, claims, "sub")
	assert.Equal(t, []string{"email", "zoneinfo"}, claims[len(claims)-2:])
}
