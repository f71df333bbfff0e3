// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the oxauth command-line application.
package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/oxauth/pkg/authserver"
	"github.com/stacklok/oxauth/pkg/logger"
)

// EnvPrefix prefixes the environment variables bound to flags, e.g.
// OXAUTH_CONFIG and OXAUTH_ISSUER.
const EnvPrefix = "OXAUTH"

// NewRootCmd creates the root command. Each call returns a fresh command
// tree so tests can execute it repeatedly.
func NewRootCmd() *cobra.Command {
	v := viper.GetViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "oxauth",
		DisableAutoGenTag: true,
		Short:             "oxauth is an OpenID Connect provider",
		Long: `oxauth is an OpenID Connect provider and OAuth 2.0 authorization server.

It implements dynamic client registration, the authorization code, implicit and
hybrid flows, UserInfo, introspection, RP-initiated logout, UMA 2.0 and
federation metadata.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the oxauth configuration file")
	if err := v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newValidateCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig reads the configuration named by --config and applies the
// issuer override.
func loadConfig(v *viper.Viper) (*authserver.Config, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config or %s_CONFIG", EnvPrefix)
	}
	cfg, err := authserver.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if issuer := v.GetString("issuer"); issuer != "" {
		cfg.Issuer = issuer
	}
	return cfg, nil
}
