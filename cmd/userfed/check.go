package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/userfed/internal/provider"
)

func newCheckConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration against the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadOnce(ctx)
			if err != nil {
				return err
			}

			p := provider.New(provider.WithLogger(a.log))
			defer p.Shutdown()
			if err := p.ValidateConfiguration(ctx, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: table %s, pool %t\n", cfg.Table, cfg.UseConnectionPool)
			return nil
		},
	}
}
