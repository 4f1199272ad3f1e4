package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends and whether they can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("NAME", "ALIASES", "STATUS", "DETAIL")
			for _, a := range newRegistry(settings.DisableBackends).Availability(cmd.Context()) {
				detail := ""
				if a.Err != nil {
					detail = oneLine(a.Err.Error(), cellWidth)
				}
				t.Row(a.Name, strings.Join(a.Aliases, ", "), a.Status.String(), detail)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return err
		},
	}
}
