package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/froth-ops/froth/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the generation pipeline HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.cfg.Listen, a.engine, a.store, a.registry)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("config", configPath).Str("db", a.cfg.DBPath).Msg("starting froth server")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "froth.yaml", "path to config file")
	return cmd
}
