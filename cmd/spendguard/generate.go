package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/spendguard/pkg/expense"
	"github.com/hed1ad/spendguard/pkg/io/csv"
)

func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic training set",
		Long:  `Write synthetic expense history as CSV: lunch-sized category 1 claims and larger category 2 claims on weekdays.`,
		Args:  cobra.NoArgs,
		// Generation needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runGenerate,
	}

	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	cmd.Flags().Int("small", 100, "Number of category 1 expenses")
	cmd.Flags().Int("large", 50, "Number of category 2 expenses")
	cmd.Flags().Int64("seed", 42, "Random seed")
	cmd.Flags().Bool("with-anomalies", false, "Append known anomalous expenses")
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	small, _ := cmd.Flags().GetInt("small")
	large, _ := cmd.Flags().GetInt("large")
	seed, _ := cmd.Flags().GetInt64("seed")
	withAnomalies, _ := cmd.Flags().GetBool("with-anomalies")

	if small < 0 || large < 0 {
		return fmt.Errorf("counts must be non-negative")
	}

	vs := expense.Synthetic(seed, small, large)
	if withAnomalies {
		vs = append(vs, expense.KnownAnomalies()...)
	}

	if out == "" {
		return csv.WriteTrainingSet(cmd.OutOrStdout(), vs)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := csv.WriteTrainingSet(f, vs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d expenses to %s\n", len(vs), out)
	return nil
}
