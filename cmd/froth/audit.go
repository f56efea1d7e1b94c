package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/froth-ops/froth/pkg/models"
)

func newAuditCmd() *cobra.Command {
	var (
		configPath string
		user       string
		source     string
		since      string
		limit      int
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			if summary {
				stats, err := a.auditor.Stats(ctx)
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Println("No audit entries found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DAY\tSOURCE\tREQUESTS\tTOKENS CHARGED\tCOST")
				for _, s := range stats {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t$%.6f\n",
						s.Day, s.Source, s.Count, s.TokensCharged, s.CostUSD)
				}
				return w.Flush()
			}

			opts := models.AuditQueryOpts{
				UserID: user,
				Source: models.Source(source),
				Limit:  limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := a.auditor.Query(ctx, opts)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tUSER\tSOURCE\tCHARGED\tCOST\tSIMILARITY\tLATENCY")
			for _, e := range entries {
				sim := "-"
				if e.Source == models.SourceSimilarity {
					sim = fmt.Sprintf("%.3f", e.SimilarityScore)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.6f\t%s\t%dms\n",
					e.CreatedAt.Format("2006-01-02T15:04:05"),
					e.UserID, e.Source, e.TokensCharged, e.CostUSD, sim, e.LatencyMs)
			}
			return w.Flush()
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.auditor.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d audit entries.\n", removed)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "froth.yaml", "path to config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "filter by user")
	cmd.Flags().StringVar(&source, "source", "", "filter by resolution source")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show per-day aggregates instead of entries")
	cmd.AddCommand(cleanupCmd)
	return cmd
}
