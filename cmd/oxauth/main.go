// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the oxauth OpenID Connect provider.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stacklok/oxauth/cmd/oxauth/app"
	"github.com/stacklok/oxauth/pkg/logger"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorw("oxauth exited with an error", "error", err)
		cancel()
		os.Exit(1)
	}
}
