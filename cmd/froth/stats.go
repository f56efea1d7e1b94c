package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show quota consumption per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			users := []string{user}
			if user == "" {
				users, err = a.ledger.Users(ctx)
				if err != nil {
					return err
				}
			}
			if len(users) == 0 {
				fmt.Println("No quota usage recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tDAILY USED\tDAILY LIMIT\tDAILY LEFT\tMONTHLY USED\tMONTHLY LIMIT\tMONTHLY LEFT")
			for _, u := range users {
				snap, err := a.ledger.Stats(ctx, u)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					snap.UserID,
					snap.DailyUsed, snap.DailyLimit, snap.DailyRemaining,
					snap.MonthlyUsed, snap.MonthlyLimit, snap.MonthlyRemaining)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "froth.yaml", "path to config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "show a single user")
	return cmd
}
