package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/config"
	"github.com/metalagman/rolecall/internal/coordinator"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/modelcfg"
)

func validateCmd() *cobra.Command {
	var (
		framework string
		apiKey    string
	)
	cmd := &cobra.Command{
		Use:   "validate [agents.yaml]",
		Short: "Check a document, its backend and its task order without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("framework") {
				framework = settings.Framework
			}
			src, err := documentSource(args, cmd.InOrStdin(), settings.Strict)
			if err != nil {
				return err
			}

			cfg, err := config.Load(src)
			if err != nil {
				return err
			}
			adapter, err := newRegistry(settings.DisableBackends).Select(cmd.Context(), framework, cfg.Framework)
			if err != nil {
				return err
			}
			mode := settings.Process
			if mode == "" {
				mode = cfg.Process
			}
			parsedMode, err := backend.ParseMode(mode)
			if err != nil {
				return err
			}

			models := coordinator.ResolveModels(modelcfg.NewResolver(), cfg, apiKey)
			g, err := graph.Build(cfg, models)
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), describeGraph(g, adapter.Name(), parsedMode))
			return err
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "backend to check, overrides the document")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key to check credentials with")
	return cmd
}

func describeGraph(g *graph.Graph, backendName string, mode backend.Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("backend"), backendName)
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("mode"), mode)
	if g.Topic != "" {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("topic"), g.Topic)
	}

	b.WriteString(titleStyle.Render("agents") + "\n")
	for _, a := range g.Agents {
		fmt.Fprintf(&b, "  %s model=%s credential=%s", a.Key, a.Model.Model, a.Model.APIKey.Source)
		if a.AllowsDelegation() {
			b.WriteString(" delegation")
		}
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("order") + "\n")
	for i, t := range g.Order() {
		fmt.Fprintf(&b, "  %d. %s (%s)", i+1, t.Key, t.Agent.Key)
		if deps := t.Dependencies(); len(deps) > 0 {
			keys := make([]string, 0, len(deps))
			for _, d := range deps {
				keys = append(keys, d.Key)
			}
			fmt.Fprintf(&b, " %s", dimStyle.Render("after "+strings.Join(keys, ", ")))
		}
		b.WriteString("\n")
	}
	return b.String()
}
