package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/opspilot/opspilot/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true).
			MarginTop(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	healthyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	unhealthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	unknownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	severityStyles = map[models.IncidentSeverity]lipgloss.Style{
		models.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		models.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		models.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("OpsPilot"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  project %s  %s watching", a.projectID, a.spinner.View())))
	b.WriteString("\n")

	if a.err != nil {
		b.WriteString(unhealthyStyle.Render(fmt.Sprintf("error: %v", a.err)))
		b.WriteString("\n")
	}

	b.WriteString(a.agentsView())
	b.WriteString(a.tasksView())
	b.WriteString(a.incidentsView())
	b.WriteString(a.logView())

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q to quit"))
	return b.String()
}

func (a *App) agentsView() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Agents"))
	b.WriteString("\n")

	if len(a.agents) == 0 {
		b.WriteString(dimStyle.Render("  no agents registered"))
		b.WriteString("\n")
		return b.String()
	}

	for i := range a.agents {
		agent := &a.agents[i]
		health := a.health[agent.ID]
		b.WriteString(fmt.Sprintf("  %-24s %-12s %-9s %s\n",
			truncate(agent.Name, 24), agent.Domain, agent.Status, healthBadge(health.Status)))
	}
	return b.String()
}

func (a *App) tasksView() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Recent Tasks"))
	b.WriteString("\n")

	if len(a.tasks) == 0 {
		b.WriteString(dimStyle.Render("  no tasks yet"))
		b.WriteString("\n")
		return b.String()
	}

	for i := range a.tasks {
		t := &a.tasks[i]
		line := fmt.Sprintf("  %-20s %-8s %-10s", truncate(t.Type, 20), t.Priority, t.Status)
		if t.Status == models.TaskStatusFailed && t.Error != "" {
			line += dimStyle.Render("  " + truncate(t.Error, 40))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) incidentsView() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Incidents"))
	b.WriteString("\n")

	if len(a.incidents) == 0 {
		b.WriteString(healthyStyle.Render("  none open"))
		b.WriteString("\n")
		return b.String()
	}

	for i := range a.incidents {
		inc := &a.incidents[i]
		sev := severityStyles[inc.Severity].Render(string(inc.Severity))
		line := fmt.Sprintf("  %s  %-8s %s", sev, inc.Status, truncate(inc.Title, 48))
		if inc.Decision != nil {
			line += dimStyle.Render("  -> " + inc.Decision.Action)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) logView() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Activity"))
	b.WriteString("\n")

	if len(a.logs) == 0 {
		b.WriteString(dimStyle.Render("  waiting for events"))
		b.WriteString("\n")
		return b.String()
	}

	for _, l := range a.logs {
		b.WriteString(dimStyle.Render(l.at.Format("15:04:05")))
		b.WriteString(fmt.Sprintf("  %-22s %s\n", l.kind, truncate(l.text, 60)))
	}
	return b.String()
}

func healthBadge(h models.HealthStatus) string {
	switch h {
	case models.HealthHealthy:
		return healthyStyle.Render("healthy")
	case models.HealthUnhealthy:
		return unhealthyStyle.Render("unhealthy")
	default:
		return unknownStyle.Render("unknown")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
