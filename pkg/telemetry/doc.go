// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry tracing and metrics for the
// authorization server.
//
// Metrics are always collected into a private Prometheus registry and can
// be scraped from the handler returned by [Provider.PrometheusHandler].
// When an OTLP endpoint is configured, spans and metrics are also pushed to
// it over HTTP.
package telemetry
