package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/froth-ops/froth/pkg/cache"
	"github.com/froth-ops/froth/pkg/config"
	"github.com/froth-ops/froth/pkg/vectorindex"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			store, err := cache.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			idx, err := vectorindex.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = idx.Close() }()

			stats, err := store.Stats()
			if err != nil {
				return err
			}
			indexed, err := idx.Count()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\nIndexed: %d\n", stats.Entries, indexed)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			store, err := cache.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "froth.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
