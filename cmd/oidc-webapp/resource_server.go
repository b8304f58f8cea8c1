// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashicorp/oidc-webapp/config"
	"github.com/hashicorp/oidc-webapp/resource"
)

func newResourceServerCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resource-server",
		Short: "Run the resource server that accepts bearer access tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadResource(flags.envFiles...)
			if err != nil {
				return err
			}
			return serveResource(cmd.Context(), cfg)
		},
	}
}

func serveResource(ctx context.Context, cfg *config.ResourceConfig) error {
	const op = "serveResource"
	logger := cfg.Logger("resource-server")
	v, err := cfg.Validator(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s, err := resource.NewServer(v, cfg.Expected(), resource.WithLogger(logger.Named("resource")))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return listenAndServe(ctx, logger.Named("http"), cfg.ListenAddr, s.Routes())
}
