package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tasklane/cmd/internal/app"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return app.Serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the status endpoints (overrides http_addr)")
	return cmd
}
