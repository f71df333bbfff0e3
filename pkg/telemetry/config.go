// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"time"

	"github.com/stacklok/oxauth/pkg/versions"
)

// DefaultServiceName is reported as service.name when none is configured.
const DefaultServiceName = "oxauth"

// DefaultExportInterval is how often metrics are pushed to an OTLP endpoint.
const DefaultExportInterval = 30 * time.Second

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the service name for telemetry
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is the service version for telemetry
	ServiceVersion string `yaml:"service_version,omitempty"`

	// Endpoint is the OTLP/HTTP collector endpoint (host:port). Empty
	// disables OTLP export.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Headers are sent with every OTLP request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Insecure uses HTTP instead of HTTPS for the OTLP endpoint.
	Insecure bool `yaml:"insecure,omitempty"`

	// TracingEnabled controls OTLP span export.
	TracingEnabled bool `yaml:"tracing_enabled,omitempty"`

	// MetricsEnabled controls OTLP metric export. The Prometheus endpoint is
	// independent of this flag.
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty"`

	// SamplingRate is the trace sampling ratio (0.0-1.0).
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	// EnablePrometheusMetricsPath enables the /metrics scrape endpoint.
	EnablePrometheusMetricsPath bool `yaml:"enable_prometheus_metrics_path,omitempty"`
}

// DefaultConfig returns a configuration that exposes Prometheus metrics and
// exports nothing over OTLP.
func DefaultConfig() Config {
	return Config{
		ServiceName:                 DefaultServiceName,
		ServiceVersion:              versions.GetVersionInfo().Version,
		TracingEnabled:              true,
		MetricsEnabled:              true,
		SamplingRate:                0.05,
		EnablePrometheusMetricsPath: true,
	}
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = versions.GetVersionInfo().Version
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0.0 and 1.0, got %v", c.SamplingRate)
	}
	if c.Endpoint == "" && len(c.Headers) > 0 {
		return fmt.Errorf("headers require an OTLP endpoint")
	}
	return nil
}
