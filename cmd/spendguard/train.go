package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hed1ad/spendguard/internal/logging"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
	"github.com/hed1ad/spendguard/pkg/expense"
	"github.com/hed1ad/spendguard/pkg/store"
)

func NewTrainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Build an ensemble from historical expenses",
		Long:  `Read the configured training source, build an isolation forest and save it to the artifact store.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, a)
		},
	}

	cmd.Flags().Int("trees", 0, "Override model.trees")
	cmd.Flags().Float64("contamination", -1, "Override model.contamination")
	return cmd
}

func runTrain(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	log := logging.WithComponent(a.logger, "train")

	mc := a.cfg.Model
	if trees, _ := cmd.Flags().GetInt("trees"); trees > 0 {
		mc.Trees = trees
	}
	if c, _ := cmd.Flags().GetFloat64("contamination"); c >= 0 {
		mc.Contamination = c
	}

	src, err := openSource(ctx, a.cfg.Training)
	if err != nil {
		return err
	}
	defer src.Close()

	vs, err := src.Read(ctx)
	if err != nil {
		return fmt.Errorf("read training set: %w", err)
	}
	log.WithFields(logrus.Fields{
		"source": a.cfg.Training.Source,
		"rows":   len(vs),
	}).Info("training set loaded")

	for i, v := range vs {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	opts := []iforest.Option{
		iforest.WithTrees(mc.Trees),
		iforest.WithSampleSize(mc.SampleSize),
		iforest.WithHeightLimit(mc.HeightLimit),
		iforest.WithConfig(mc.Detector()),
	}
	if mc.Workers > 0 {
		opts = append(opts, iforest.WithWorkers(mc.Workers))
	}

	start := time.Now()
	e, err := iforest.Build(expense.Matrix(vs), opts...)
	if err != nil {
		return err
	}

	s, closeStore, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	size, err := store.SaveEnsemble(ctx, s, a.cfg.Store.Key, e)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"model_id":       e.ID.String(),
		"trees":          e.Len(),
		"subsample_size": e.SubsampleSize,
		"height_limit":   e.HeightLimit,
		"threshold":      e.Threshold,
		"bytes":          size,
		"duration":       time.Since(start).Round(time.Millisecond).String(),
		"backend":        a.cfg.Store.Backend,
	}).Info("model trained and saved")
	return nil
}
