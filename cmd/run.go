package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/internal/config"
	"github.com/cdanielmachado/smetana/internal/observability"
	"github.com/cdanielmachado/smetana/internal/orchestrator"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [model files...]",
		Short: "Scores one or more communities built from the given metabolic models",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so the command line overrides
			// config file and environment values.
			bindings := map[string]string{
				"solver.backend":             "solver",
				"solver.max_uptake":          "max-uptake",
				"solver.min_growth":          "min-growth",
				"solver.solve_timeout":       "timeout",
				"detailed.trials":            "trials",
				"detailed.perturbation":      "perturbation",
				"detailed.coupling_fraction": "coupling",
				"detailed.ignore_coupling":   "ignore-coupling",
				"detailed.seed":              "seed",
				"engine.workers":             "workers",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}

			// The run section comes straight from flags and arguments.
			cfg.Run.Models = args
			cfg.Run.Mode, _ = cmd.Flags().GetString("mode")
			cfg.Run.Communities, _ = cmd.Flags().GetString("communities")
			cfg.Run.Media, _ = cmd.Flags().GetStringSlice("media")
			cfg.Run.MediaDB, _ = cmd.Flags().GetString("mediadb")
			cfg.Run.Exclude, _ = cmd.Flags().GetString("exclude")
			cfg.Run.Output, _ = cmd.Flags().GetString("output")
			cfg.Run.Format, _ = cmd.Flags().GetString("format")
			cfg.Run.Zeros, _ = cmd.Flags().GetBool("zeros")
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				cfg.Run.Mode = config.ModeDetailed
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger.Info("starting scoring run",
				zap.String("mode", cfg.Run.Mode),
				zap.Strings("models", cfg.Run.Models),
				zap.Strings("media", cfg.Run.Media),
				zap.Int("workers", cfg.Engine.Workers),
				zap.Int("trials", cfg.Detailed.Trials),
			)

			o, err := orchestrator.New(&cfg, logger, nil)
			if err != nil {
				return err
			}
			started := time.Now()
			if err := o.Run(ctx); err != nil {
				return err
			}
			logger.Info("scoring run finished", zap.Duration("elapsed", time.Since(started)))
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.String("mode", config.ModeGlobal, "score family to compute: global or detailed")
	flags.Bool("detailed", false, "shorthand for --mode detailed")
	flags.String("communities", "", "two-column TSV mapping communities to organisms")
	flags.StringSlice("media", nil, "medium ids to evaluate; \"complete\" and \"minimal\" are built in (default: complete)")
	flags.String("mediadb", "", "media library TSV (medium, compound columns)")
	flags.String("exclude", "", "file listing compounds to leave out of reports")
	flags.StringP("output", "o", "smetana_", "output path prefix")
	flags.String("format", "tsv", "output format: tsv or json")
	flags.Bool("zeros", false, "keep zero-valued detailed rows")
	flags.String("solver", "gonum", "LP/MILP backend")
	flags.Float64("max-uptake", 10, "uptake rate limit per medium compound")
	flags.Float64("min-growth", 0.1, "growth rate feasibility queries must reach")
	flags.Duration("timeout", 0, "wall-clock limit per community and medium (0 disables)")
	flags.Int("trials", 100, "randomized trials per detailed score")
	flags.Float64("perturbation", 0.5, "half-width of the random objective weight interval")
	flags.Float64("coupling", 0, "fraction of community growth each member must sustain")
	flags.Bool("ignore-coupling", false, "skip SCS and combine only uptake and production")
	flags.Int64("seed", 0, "random seed (0 seeds from the clock)")
	flags.Int("workers", 4, "organisms scored concurrently")

	return runCmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
