package main

import (
	"context"
	"fmt"
	"os"

	"abtrust/adapters/rng"
	"abtrust/adapters/stats/power"
	"abtrust/app"
	"abtrust/internal/audit"
	"abtrust/internal/config"
	"abtrust/internal/planning"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalOptions are shared by every command
type globalOptions struct {
	configPath string
	seed       int64
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "abtrust",
		Short:         "Plan, assign and audit A/B experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("EXPERIMENT_CONFIG"), "YAML experiment definition")
	rootCmd.PersistentFlags().Int64Var(&opts.seed, "seed", 0, "Random seed for simulations and Monte Carlo (0 = config value)")

	rootCmd.AddCommand(
		newAssignCmd(opts),
		newPlanCmd(opts),
		newAnalyzeCmd(opts),
		newAACheckCmd(opts),
		newCalibrateCmd(opts),
		newOrthogonalityCmd(opts),
		newSimulateCmd(opts),
	)
	return rootCmd
}

// experimentConfig loads the YAML definition when given, then applies the seed flag
func (o *globalOptions) experimentConfig() (config.ExperimentConfig, error) {
	cfg := config.DefaultExperimentConfig()
	if o.configPath != "" {
		loaded, err := config.LoadExperimentFile(o.configPath)
		if err != nil {
			return config.ExperimentConfig{}, err
		}
		cfg = loaded
	}
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
	return cfg, cfg.Validate()
}

func newService() *app.ExperimentService {
	return app.NewExperimentService(
		planning.NewPlanner(power.NewNormalSolver()),
		audit.NewAuditor(audit.DefaultThresholds()),
		rng.ForSeed,
		nil,
		nil,
	)
}
