package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/froth-ops/froth/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start Froth as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcp.New(a.engine, a.store, a.auditor, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "froth.yaml", "path to config file")
	return cmd
}
