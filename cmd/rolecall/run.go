package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/rolecall/internal/coordinator"
	"github.com/metalagman/rolecall/internal/memory"
	"github.com/metalagman/rolecall/internal/metrics"
	"github.com/metalagman/rolecall/internal/provider"
	"github.com/metalagman/rolecall/internal/report"
)

func runCmd() *cobra.Command {
	var (
		apiKey string
		output string
	)
	cmd := &cobra.Command{
		Use:   "run [agents.yaml]",
		Short: "Run the roles and tasks of a document",
		Long: "Run the roles and tasks of a document. Without an argument " +
			"agents.yaml in the working directory is used unless --strict is set. " +
			"Use - to read the document from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			src, err := documentSource(args, cmd.InOrStdin(), settings.Strict)
			if err != nil {
				return err
			}

			opts := []coordinator.Option{
				coordinator.WithRegistry(newRegistry(settings.DisableBackends)),
				coordinator.WithProviderOptions(provider.Options{
					WorkDir: workDir(settings.WorkDir),
				}),
			}
			if !settings.NoHistory {
				store, closeFn, err := openStore(settings.DBPath)
				if err != nil {
					return err
				}
				defer closeFn()
				opts = append(opts, coordinator.WithStore(store))
			}
			var collector *metrics.Collector
			if settings.MetricsFile != "" {
				collector = metrics.NewCollector()
				opts = append(opts, coordinator.WithMetrics(collector))
			}

			rep, err := coordinator.New(opts...).Execute(cmd.Context(), coordinator.Request{
				Source:          src,
				Framework:       settings.Framework,
				APIKey:          apiKey,
				Mode:            settings.Process,
				TaskTimeout:     settings.TaskTimeout,
				MaxParallel:     settings.MaxParallel,
				Memory:          settings.Memory,
				MemoryThreshold: settings.MemoryThreshold,
			})
			if err != nil {
				return err
			}

			if collector != nil {
				if err := collector.WriteFile(settings.MetricsFile); err != nil {
					log.Warn().Err(err).Msg("metrics: write failed")
				}
			}
			if err := renderReport(cmd.OutOrStdout(), rep, output); err != nil {
				return err
			}
			if !rep.Succeeded() {
				return incompleteError(rep)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("framework", "", "backend to run on, overrides the document")
	flags.String("process", "", "process mode: sequential or hierarchical")
	flags.Duration("timeout", 0, "default per-task timeout")
	flags.Int("max-parallel", 4, "concurrent tasks in hierarchical mode")
	flags.Bool("strict", false, "do not fall back to agents.yaml in the working directory")
	flags.Bool("memory", false, "share earlier task outputs as short-term and long-term memory")
	flags.Float64("memory-threshold", memory.DefaultThreshold, "quality an output needs to enter long-term memory")
	flags.Bool("no-history", false, "do not record the run in the history database")
	flags.String("metrics-file", "", "write Prometheus metrics to this file")
	flags.StringSlice("disable-backend", nil, "treat these backends as not installed")
	flags.StringVar(&apiKey, "api-key", "", "API key for every role, overrides the environment")
	flags.StringVarP(&output, "output", "o", formatTable, "report format: table, markdown or json")

	bindFlag(cmd, "framework", "framework")
	bindFlag(cmd, "process", "process")
	bindFlag(cmd, "task_timeout", "timeout")
	bindFlag(cmd, "max_parallel", "max-parallel")
	bindFlag(cmd, "strict", "strict")
	bindFlag(cmd, "memory", "memory")
	bindFlag(cmd, "memory_threshold", "memory-threshold")
	bindFlag(cmd, "no_history", "no-history")
	bindFlag(cmd, "metrics_file", "metrics-file")
	bindFlag(cmd, "disable_backends", "disable-backend")
	return cmd
}

func incompleteError(rep *report.ExecutionReport) error {
	counts := rep.Counts()
	return fmt.Errorf("%w: %d completed, %d failed, %d timed out, %d skipped, %d cancelled",
		errRunIncomplete,
		counts[report.StatusCompleted],
		counts[report.StatusError],
		counts[report.StatusTimeout],
		counts[report.StatusSkipped],
		counts[report.StatusCancelled],
	)
}
