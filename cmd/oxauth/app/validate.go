// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the oxauth configuration file.

This command checks YAML syntax, unknown keys, required fields and
the consistency of the storage, federation, session and telemetry sections.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (issuer %s, %d users, %d federations)\n",
				cfg.Issuer, len(cfg.Users), len(cfg.Federation.Federations))
			return err
		},
	}
}
