// Package tui provides the terminal status dashboard for OpsPilot.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opspilot/opspilot/internal/orchestrator"
	"github.com/opspilot/opspilot/internal/registry"
	"github.com/opspilot/opspilot/pkg/models"
)

// How many rows each panel shows.
const (
	maxTaskRows     = 8
	maxIncidentRows = 5
	maxLogRows      = 6
)

// tickMsg drives the periodic data refresh.
type tickMsg time.Time

// refreshMsg carries freshly loaded dashboard data.
type refreshMsg struct {
	agents    []models.Agent
	health    map[string]registry.Health
	tasks     []models.Task
	incidents []models.Incident
}

// eventMsg wraps one orchestrator event.
type eventMsg orchestrator.Event

// logLine is one entry in the activity log panel.
type logLine struct {
	at   time.Time
	kind orchestrator.EventType
	text string
}

// App is the bubbletea model for the status dashboard.
type App struct {
	orch      *orchestrator.Orchestrator
	projectID string
	refresh   time.Duration

	spinner   spinner.Model
	agents    []models.Agent
	health    map[string]registry.Health
	tasks     []models.Task
	incidents []models.Incident
	logs      []logLine

	width    int
	height   int
	quitting bool
	err      error
}

// New creates the dashboard for one project.
func New(orch *orchestrator.Orchestrator, projectID string, refresh time.Duration) *App {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		orch:      orch,
		projectID: projectID,
		refresh:   refresh,
		spinner:   s,
		health:    make(map[string]registry.Health),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.load, a.tick(), a.nextEvent)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tickMsg:
		return a, tea.Batch(a.load, a.tick())

	case refreshMsg:
		a.agents = msg.agents
		a.health = msg.health
		a.tasks = msg.tasks
		a.incidents = msg.incidents

	case eventMsg:
		a.appendLog(orchestrator.Event(msg))
		return a, a.nextEvent

	case error:
		a.err = msg

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// tick schedules the next data refresh.
func (a *App) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// load fetches the dashboard data in one shot.
func (a *App) load() tea.Msg {
	agents, err := a.orch.ListAgents(a.projectID)
	if err != nil {
		return err
	}
	health := make(map[string]registry.Health, len(agents))
	for i := range agents {
		health[agents[i].ID] = a.orch.AgentHealth(agents[i].ID)
	}
	tasks, err := a.orch.RecentTasks(a.projectID, maxTaskRows)
	if err != nil {
		return err
	}
	incidents, err := a.orch.Incidents(a.projectID, maxIncidentRows)
	if err != nil {
		return err
	}
	return refreshMsg{agents: agents, health: health, tasks: tasks, incidents: incidents}
}

// nextEvent blocks on the orchestrator event stream.
func (a *App) nextEvent() tea.Msg {
	ev, ok := <-a.orch.Events()
	if !ok {
		return nil
	}
	return eventMsg(ev)
}

// appendLog adds an event to the activity log, keeping the newest rows.
func (a *App) appendLog(ev orchestrator.Event) {
	a.logs = append(a.logs, logLine{at: ev.Timestamp, kind: ev.Type, text: ev.Message})
	if len(a.logs) > maxLogRows {
		a.logs = a.logs[len(a.logs)-maxLogRows:]
	}
}
