package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(settings.DBPath)
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("RUN", "STARTED", "BACKEND", "MODE", "STATUS", "TASKS", "TOPIC")
			for _, r := range runs {
				t.Row(
					r.RunID,
					r.CreatedAt.Local().Format(time.DateTime),
					r.Backend,
					r.Mode,
					r.Status,
					strconv.Itoa(r.Tasks),
					oneLine(r.Topic, 40),
				)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most N runs, 0 for all")
	cmd.AddCommand(runsShowCmd(), runsRemoveCmd(), runsPruneCmd())
	return cmd
}

func runsShowCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(settings.DBPath)
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := store.LoadReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), rep, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "report format: table, markdown or json")
	return cmd
}

func runsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <run-id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(settings.DBPath)
			if err != nil {
				return err
			}
			defer closeFn()

			deleted, err := store.DeleteRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("run %q not found", args[0])
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}

func runsPruneCmd() *cobra.Command {
	var (
		keepLast int
		keepDays int
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			policy := settings.Retention
			if keepLast > 0 || keepDays > 0 {
				policy.KeepLast = keepLast
				policy.KeepDays = keepDays
			}
			if !policy.Enabled() {
				return fmt.Errorf("set --keep-last or --keep-days (or retention in %s)", defaultSettingsFile)
			}

			store, closeFn, err := openStore(settings.DBPath)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := store.PruneRuns(cmd.Context(), policy, time.Now(), dryRun)
			if err != nil {
				return err
			}
			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			log.Info().Int("considered", res.Considered).Int("kept", res.Kept).Msg("runs: pruned")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d runs (kept %d)\n", verb, res.Deleted, res.Kept)
			return err
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}
