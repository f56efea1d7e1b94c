package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/froth-ops/froth/pkg/models"
)

func newGenerateCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "generate <requirement>",
		Short: "Generate test cases for a requirement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirement := strings.Join(args, " ")

			a, err := newApp(configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.Handle(context.Background(), user, requirement)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "source: %s", result.Source)
			switch result.Source {
			case models.SourceGeneration:
				fmt.Fprintf(os.Stderr, "  (charged %d tokens, $%.6f)", result.TokensCharged, result.CostUSD)
			case models.SourceSimilarity:
				fmt.Fprintf(os.Stderr, "  (similarity %.3f, free)", result.SimilarityScore)
			case models.SourceCache:
				fmt.Fprint(os.Stderr, "  (free)")
			}
			fmt.Fprintln(os.Stderr)

			if artifact, err := models.ParseArtifact(result.Artifact); err == nil {
				fmt.Fprintf(os.Stderr, "%d test cases, %d edge cases\n",
					len(artifact.TestCases), len(artifact.EdgeCases))
			}

			var pretty bytes.Buffer
			if json.Indent(&pretty, result.Artifact, "", "  ") == nil {
				fmt.Println(pretty.String())
			} else {
				os.Stdout.Write(result.Artifact)
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "froth.yaml", "path to config file")
	cmd.Flags().StringVarP(&user, "user", "u", "default", "user to charge quota against")
	return cmd
}
