package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/metalagman/rolecall/internal/report"
)

const cellWidth = 60

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	statusStyles = map[report.Status]lipgloss.Style{
		report.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		report.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		report.StatusTimeout:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		report.StatusSkipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		report.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
	}
)

// Output formats of a report.
const (
	formatTable    = "table"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func renderReport(w io.Writer, rep *report.ExecutionReport, format string) error {
	switch format {
	case "", formatTable:
		return renderTable(w, rep)
	case formatMarkdown:
		return renderMarkdown(w, rep)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, rep *report.ExecutionReport) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "TASK", "ROLE", "STATUS", "DURATION", "RESULT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, rec := range rep.Records {
		result := rec.Output
		if rec.Status != report.StatusCompleted {
			result = rec.Error
		}
		role := rec.RoleKey
		if rec.ExecutedBy != "" {
			role += " via " + rec.ExecutedBy
		}
		t.Row(
			strconv.Itoa(rec.Seq),
			rec.TaskKey,
			role,
			styleStatus(rec.Status),
			rec.Duration.Round(time.Millisecond).String(),
			oneLine(result, cellWidth),
		)
	}

	header := fmt.Sprintf("%s %s", titleStyle.Render("run "+rep.RunID), dimStyle.Render(fmt.Sprintf(
		"backend=%s mode=%s status=%s duration=%s", rep.Backend, rep.Mode, rep.Status(), rep.Duration().Round(time.Millisecond))))
	_, err := fmt.Fprintf(w, "%s\n%s\n", header, t.String())
	return err
}

func renderMarkdown(w io.Writer, rep *report.ExecutionReport) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(reportMarkdown(rep))
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func reportMarkdown(rep *report.ExecutionReport) string {
	var b strings.Builder
	title := "Run " + rep.RunID
	if rep.Topic != "" {
		title += ": " + rep.Topic
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Backend `%s`, mode `%s`, status **%s**.\n", rep.Backend, rep.Mode, rep.Status())
	for _, rec := range rep.Records {
		fmt.Fprintf(&b, "\n## %d. %s (%s)\n\n", rec.Seq, rec.TaskKey, rec.Status)
		if rec.Status == report.StatusCompleted {
			b.WriteString(strings.TrimSpace(rec.Output))
		} else {
			fmt.Fprintf(&b, "> %s", rec.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func styleStatus(s report.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}
