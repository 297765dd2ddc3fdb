package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
	"github.com/hed1ad/spendguard/pkg/expense"
	pkgio "github.com/hed1ad/spendguard/pkg/io"
	"github.com/hed1ad/spendguard/pkg/io/csv"
	"github.com/hed1ad/spendguard/pkg/store"
)

const streamBuffer = 64

func NewScoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an expense against the saved ensemble",
		Long: `Score a single expense given by flags and print the result as JSON,
or score every row of a CSV file with --input and write CSV results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd, a)
		},
	}

	cmd.Flags().Float64("amount", 0, "Expense amount")
	cmd.Flags().Int("category", 0, "Category ID")
	cmd.Flags().Int("day", 0, "Day of week, 0=Monday .. 6=Sunday")
	cmd.Flags().String("role", "employee", "Claimant role (employee|manager)")
	cmd.Flags().String("input", "", "CSV file of expenses to score")
	cmd.Flags().StringP("output", "o", "", "Output file for --input (default: stdout)")
	return cmd
}

func runScore(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()

	s, closeStore, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	e, err := store.LoadEnsemble(ctx, s, a.cfg.Store.Key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: run train first", detectors.ErrModelNotReady)
	}
	if err != nil {
		return err
	}

	if input, _ := cmd.Flags().GetString("input"); input != "" {
		output, _ := cmd.Flags().GetString("output")
		return scoreFile(cmd, e, input, output)
	}

	v, err := vectorFromFlags(cmd)
	if err != nil {
		return err
	}

	result, err := iforest.Score(e, v.Features())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func vectorFromFlags(cmd *cobra.Command) (expense.FeatureVector, error) {
	for _, name := range []string{"amount", "category", "day"} {
		if !cmd.Flags().Changed(name) {
			return expense.FeatureVector{}, fmt.Errorf("--%s is required without --input", name)
		}
	}

	amount, _ := cmd.Flags().GetFloat64("amount")
	category, _ := cmd.Flags().GetInt("category")
	day, _ := cmd.Flags().GetInt("day")
	role, _ := cmd.Flags().GetString("role")

	v := expense.FeatureVector{
		Amount:      amount,
		CategoryID:  category,
		DayOfWeek:   day,
		RoleEncoded: expense.EncodeRole(role),
	}
	return v, v.Validate()
}

// scoreFile streams rows from input through the scorer into a CSV result
// writer without holding the whole file in memory.
func scoreFile(cmd *cobra.Command, e *iforest.Ensemble, input, output string) error {
	r, err := csv.NewReader(input)
	if err != nil {
		return fmt.Errorf("open %s: %w", input, err)
	}
	defer r.Close()

	// Hide Close from the writer so stdout stays open.
	var out io.Writer = struct{ io.Writer }{cmd.OutOrStdout()}
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		out = f
	}
	w := csv.NewResultWriter(out)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	rows := make(chan expense.FeatureVector, streamBuffer)
	samples := make(chan []float64, streamBuffer)
	scores := make(chan detectors.Score, streamBuffer)

	g.Go(func() error {
		return r.Stream(ctx, rows)
	})
	g.Go(func() error {
		defer close(samples)
		for v := range rows {
			select {
			case samples <- v.Features():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		defer close(scores)
		return iforest.ScoreStream(ctx, e, samples, scores)
	})

	now := time.Now().Unix()
	scored, anomalies := 0, 0
	var writeErr error
	for s := range scores {
		if writeErr != nil {
			continue
		}
		writeErr = writeScore(w, now, s)
		if writeErr != nil {
			cancel()
			continue
		}
		scored++
		if s.Result.IsAnomaly {
			anomalies++
		}
	}

	waitErr := g.Wait()
	closeErr := w.Close()
	switch {
	case writeErr != nil:
		return writeErr
	case waitErr != nil:
		return fmt.Errorf("score %s: %w", input, waitErr)
	case closeErr != nil:
		return closeErr
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Scored %d expenses, %d anomalies, %d rows skipped\n", scored, anomalies, r.Skipped())
	return nil
}

func writeScore(w pkgio.Writer, ts int64, s detectors.Score) error {
	if s.Err != nil {
		return s.Err
	}
	v, err := expense.FromFeatures(s.Features)
	if err != nil {
		return err
	}
	return w.Write(pkgio.Result{Timestamp: ts, Expense: v, ScoreResult: s.Result})
}
