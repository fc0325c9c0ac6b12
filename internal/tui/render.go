package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"grimm.is/alertwall/internal/client"
)

const targetColumn = 1

// RenderRules draws the chain as a bordered table in enforcement order.
func RenderRules(chain string, rules []client.Rule) string {
	var b strings.Builder
	title := "Rules"
	if chain != "" {
		title = fmt.Sprintf("Rules in %s", chain)
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n")

	if len(rules) == 0 {
		b.WriteString(StyleMuted.Render("no rules installed"))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{strconv.Itoa(r.ID), r.Target, r.Protocol, r.Source, r.Destination})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorDeep)).
		Headers("ID", "TARGET", "PROT", "SOURCE", "DESTINATION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleTableHeader
			}
			if col == targetColumn && row >= 0 && row < len(rows) {
				return TargetStyle(rows[row][targetColumn]).Padding(0, 1)
			}
			return StyleTableRow
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	return b.String()
}

// RenderEvent formats one live rule event as a single line.
func RenderEvent(e client.RuleEvent) string {
	var verb string
	switch e.Type {
	case "rule.added":
		verb = StyleStatusBad.Render("added")
	case "rule.deleted":
		verb = StyleStatusGood.Render("deleted")
	default:
		verb = StyleStatusWarn.Render(e.Type)
	}
	return fmt.Sprintf("%s %s %s %s",
		StyleMuted.Render(e.Timestamp.Local().Format(time.TimeOnly)),
		verb,
		TargetStyle(e.Rule.Target).Render(e.Rule.Target),
		e.Rule.Source)
}

// RenderHealth formats the API health summary as label/value lines.
func RenderHealth(h *client.Health) string {
	status := StyleStatusGood.Render(h.Status)
	if h.Status != "ok" {
		status = StyleStatusBad.Render(h.Status)
	}
	lines := []string{
		StyleLabel.Render("status") + status,
		StyleLabel.Render("backend") + h.Backend,
		StyleLabel.Render("chain") + h.Chain,
		StyleLabel.Render("uptime") + h.Uptime,
		StyleLabel.Render("version") + h.Version,
	}
	return strings.Join(lines, "\n") + "\n"
}
