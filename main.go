package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "synthperturb",
		Short: "Perturb synthetic records so subgroup sums meet their targets",
		Long: `synthperturb scales the numeric columns of a synthetic dataset, subgroup by subgroup,
so that each column's sum moves toward a target while its value distribution stays
close to the reference data.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fileExists(configFile) {
				return fmt.Errorf("config file %s not found", configFile)
			}
			cfg, err := LoadConfig(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, configFile, cfg, stdout)
		},
	}
	rootCmd.SetOut(stdout)

	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "f", "config.json", "Config file path")
	flags.Int("trials", 0, "Trial budget per unit (overrides config)")
	flags.Int("workers", 0, "Number of workers, 0 uses all CPUs (overrides config)")
	flags.String("backend", "", "Array backend: serial or parallel (overrides config)")
	flags.Int("subgroups", 0, "Only process the first N subgroups (overrides config)")
	flags.String("log-level", "", "Log level (overrides config)")
	flags.String("plot-dir", "", "Write density plots to this directory (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "synthperturb "+Version)
		},
	})
	return rootCmd
}

func run(ctx context.Context, configFile string, cfg Config, stdout io.Writer) error {
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	runID := uuid.NewString()
	log := logger.WithField("run", runID)

	fmt.Fprintf(stdout, "Using config file: %s\n", configFile)
	fmt.Fprintf(stdout, "Input file: %s\n", cfg.InputFile)
	fmt.Fprintf(stdout, "Output file: %s\n", cfg.OutputFile)
	fmt.Fprintf(stdout, "Subgroup file: %s\n", cfg.SubgroupFile)

	data, err := loadInputData(cfg)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"input":     data.Input.Len(),
		"output":    data.Output.Len(),
		"subgroups": data.Subgroups.Len(),
	}).Info("data loaded")

	start := time.Now()
	results, err := parallelRun(ctx, cfg, data, log, stdout)
	if err != nil {
		return err
	}
	printSubgroupTables(stdout, results)

	if err := data.Output.WriteCSV(cfg.PerturbedFile); err != nil {
		return err
	}
	if cfg.ReportFile != "" {
		if err := writeReport(cfg.ReportFile, runID, results); err != nil {
			return err
		}
	}

	optimized, skipped := summarize(results)
	log.WithFields(logrus.Fields{
		"optimized": optimized,
		"skipped":   skipped,
		"elapsed":   time.Since(start).String(),
	}).Info("run completed")
	fmt.Fprintf(stdout, "\n✅ %d units optimized, %d skipped. Perturbed data written to %s\n", optimized, skipped, cfg.PerturbedFile)
	return nil
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
