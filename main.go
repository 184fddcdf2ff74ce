// Command mega trains agents on intrinsic rewards derived from how much
// of their observations they control
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samuelfneumann/mega/agent"
	"github.com/samuelfneumann/mega/config"
	"github.com/samuelfneumann/mega/environment/gridworld"
	"github.com/samuelfneumann/mega/experiment"
	"github.com/samuelfneumann/mega/telemetry"
	"github.com/samuelfneumann/mega/utils/progressbar"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mega",
	Short: "Train agents on intrinsic rewards from control maps",
	Long: `mega trains agents in vectors of pixel environments on intrinsic
rewards computed from direct and latent control maps, optionally scaled
by count-based bonuses.`,
	SilenceUsage: true,
}

var (
	configPath string
	logDir     string
	numUpdates int
	seed       uint64
	verbose    bool
	mapImages  bool
	noSQLite   bool
	progress   bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run or resume a training run",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		c := config.Default()
		if configPath != "" {
			var err error
			if c, err = config.Load(configPath); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("seed") {
			c.Seed = seed
		}
		if err := c.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
			syscall.SIGTERM)
		defer stop()

		var sink telemetry.Sink = telemetry.NewLogger(logger)
		if logDir != "" {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return fmt.Errorf("could not create log dir: %w", err)
			}
			if err := c.Save(filepath.Join(logDir, "config.json")); err != nil {
				return err
			}
			if !noSQLite {
				db, err := telemetry.OpenSQLite(ctx,
					filepath.Join(logDir, "telemetry.db"), c.Env.String())
				if err != nil {
					return err
				}
				defer db.Close()
				logger.Info("recording telemetry", "run_id", db.RunID())
				sink = telemetry.Multi(sink, db)
			}
		}

		env, err := gridworld.New(c.Env, c.NumEnvs, c.Seed)
		if err != nil {
			return err
		}
		policy, err := agent.NewRandom(env.NumActions(), c.Seed)
		if err != nil {
			return err
		}

		opts := experiment.Options{
			LogDir:    logDir,
			MapImages: mapImages,
			Logger:    logger,
			Sink:      sink,
		}
		if c.EvalInterval > 0 {
			opts.EvalEnv, err = gridworld.New(c.Env, c.NumEnvs, c.EvalSeed())
			if err != nil {
				return err
			}
		}

		tr, err := experiment.New(ctx, c, env, policy, policy, opts)
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		if progress {
			bar = progressbar.New(os.Stderr, 40, c.NumUpdates())
			bar.Set(tr.Context().Update)
			defer bar.Close()
		}

		for i := 0; !tr.Done() && (numUpdates <= 0 || i < numUpdates); i++ {
			_, err := tr.RunUpdate(ctx)
			if bar != nil {
				bar.Set(tr.Context().Update)
				bar.Display()
			}
			if err != nil {
				if ctx.Err() != nil {
					// A second interrupt kills the process
					stop()
					if tr.InProgress() {
						logger.Warn("interrupted, finishing update",
							"update", tr.Context().Update)
						if _, err := tr.RunUpdate(context.Background()); err != nil {
							return err
						}
					}
					logger.Warn("storing checkpoint",
						"update", tr.Context().Update)
					return tr.Checkpoint()
				}
				return err
			}
		}
		return tr.Checkpoint()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(config.Default(), "", "\t")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"path to a JSON configuration file")
	trainCmd.Flags().StringVar(&logDir, "log-dir", "",
		"directory for checkpoints and telemetry")
	trainCmd.Flags().IntVar(&numUpdates, "updates", 0,
		"maximum number of updates to run, 0 to run to completion")
	trainCmd.Flags().Uint64Var(&seed, "seed", 0,
		"override the seed of the configuration")
	trainCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
	trainCmd.Flags().BoolVar(&mapImages, "map-images", false,
		"store control map images with each checkpoint")
	trainCmd.Flags().BoolVar(&noSQLite, "no-sqlite", false,
		"do not record telemetry to a SQLite database")
	trainCmd.Flags().BoolVar(&progress, "progress", false,
		"display a progress bar")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(configCmd)
}
