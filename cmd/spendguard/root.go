package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hed1ad/spendguard/internal/config"
	"github.com/hed1ad/spendguard/internal/logging"
)

// app holds the state shared by subcommands once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "spendguard",
		Short:         "Expense anomaly detection engine",
		Long:          `Trains an isolation forest on historical expenses and scores new ones.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewGenerateCmd(),
		NewTrainCmd(a),
		NewScoreCmd(a),
		NewServeCmd(a),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Config file (default: spendguard.yaml in ./configs or .)")
	cmd.PersistentFlags().String("log-level", "", "Override log level")
}

func (a *app) load(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	return nil
}
