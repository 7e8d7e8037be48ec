package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase"
)

// Model is the bubbletea model of the session dashboard.
type Model struct {
	// Dependencies (pointers first for alignment)
	container *app.Container
	dashboard *domain.Dashboard
	err       error

	// State (slices - contain pointers)
	tasks []*domain.Task // Ordered by dashboard bucket

	// Components
	keys           KeyMap
	styles         Styles
	help           help.Model
	spinner        spinner.Model
	detailViewport viewport.Model

	sessionID string
	notice    string
	refresh   time.Duration

	// Numeric state (smaller types last)
	mode          Mode
	confirmAction ConfirmAction
	cursor        int
	width         int
	height        int
	loading       bool
}

// New creates a dashboard model for one session.
// A zero refresh disables periodic reloading.
func New(c *app.Container, sessionID string, refresh time.Duration) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Colors.Primary)

	return &Model{
		container: c,
		sessionID: sessionID,
		refresh:   refresh,
		keys:      DefaultKeyMap(),
		styles:    DefaultStyles(),
		help:      help.New(),
		spinner:   sp,
		mode:      ModeNormal,
		loading:   true,
	}
}

// Run starts the dashboard in the alternate screen and blocks until it exits.
func Run(c *app.Container, sessionID string, refresh time.Duration) error {
	_, err := tea.NewProgram(New(c, sessionID, refresh), tea.WithAltScreen()).Run()
	return err
}

// Init loads the dashboard and starts the refresh timer.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadDashboard(), m.spinner.Tick, m.tick())
}

func (m *Model) tick() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return MsgTick{} })
}

// loadDashboard returns a command that loads the dashboard and the task list.
func (m *Model) loadDashboard() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		d, err := m.container.SessionDashboardUseCase().Execute(ctx, usecase.SessionDashboardInput{SessionID: m.sessionID})
		if err != nil {
			return MsgError{Err: err}
		}
		out, err := m.container.ListSessionTasksUseCase().Execute(ctx, usecase.ListSessionTasksInput{SessionID: m.sessionID})
		if err != nil {
			return MsgError{Err: err}
		}
		return MsgDashboardLoaded{Dashboard: d, Tasks: out.Tasks}
	}
}

// orderTasks sorts tasks by dashboard bucket, oldest first within a bucket.
func orderTasks(tasks []*domain.Task) []*domain.Task {
	rank := make(map[string]int, len(domain.BucketOrder))
	for i, b := range domain.BucketOrder {
		rank[b] = i
	}
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(a, b *domain.Task) int {
		if d := rank[domain.BucketFor(a.Status)] - rank[domain.BucketFor(b.Status)]; d != 0 {
			return d
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sorted
}

// SelectedTask returns the task under the cursor, or nil if none.
func (m *Model) SelectedTask() *domain.Task {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return nil
	}
	return m.tasks[m.cursor]
}

// Actions

func (m *Model) startTask(id string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.container.TransitionTaskUseCase().Execute(context.Background(), usecase.TransitionTaskInput{
			TaskID: id,
			Status: domain.StatusInProgress,
			Actor:  domain.ActorUser,
		})
		if err != nil {
			return MsgError{Err: err}
		}
		return MsgTaskUpdated{Task: out.Task, Message: "Started " + domain.ShortID(id)}
	}
}

func (m *Model) completeTask(id string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.container.CompleteTaskUseCase().Execute(context.Background(), usecase.CompleteTaskInput{
			TaskID: id,
			Actor:  domain.ActorUser,
		})
		if err != nil {
			return MsgError{Err: err}
		}
		msg := "Completed " + domain.ShortID(id)
		if len(out.Ready) > 0 {
			msg += fmt.Sprintf(", %d task(s) ready", len(out.Ready))
		}
		return MsgTaskUpdated{Task: out.Task, Message: msg}
	}
}

func (m *Model) retryTask(id string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.container.RetryTaskUseCase().Execute(context.Background(), usecase.RetryTaskInput{
			TaskID: id,
			Actor:  domain.ActorUser,
		})
		if err != nil {
			return MsgError{Err: err}
		}
		return MsgTaskUpdated{
			Task:    out.Task,
			Message: fmt.Sprintf("Queued %s for retry (attempt %d of %d)", domain.ShortID(id), out.Task.RetryCount, out.Task.MaxRetries),
		}
	}
}

func (m *Model) cancelTask(id string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.container.CancelTaskUseCase().Execute(context.Background(), usecase.CancelTaskInput{
			TaskID: id,
			Actor:  domain.ActorUser,
		})
		if err != nil {
			return MsgError{Err: err}
		}
		return MsgTaskUpdated{Task: out.Task, Message: "Cancelled " + domain.ShortID(id)}
	}
}

func (m *Model) initDetailViewport() {
	width := max(m.width-12, 40)
	height := max(m.height-10, 10)
	m.detailViewport = viewport.New(width, height)
	m.detailViewport.SetContent(m.detailContent())
}

func (m *Model) detailContent() string {
	task := m.SelectedTask()
	if task == nil {
		return "No task selected"
	}

	row := func(label, value string) string {
		return m.styles.DetailLabel.Render(label) + m.styles.DetailValue.Render(value)
	}

	var lines []string
	lines = append(lines, m.styles.DetailTitle.Render(task.Title))
	lines = append(lines, m.styles.DetailLabel.Render("Status")+m.styles.StatusStyle(task.Status).Render(task.Status.Display()))
	lines = append(lines, row("ID", task.ID))
	lines = append(lines, row("Type", task.TaskType))
	lines = append(lines, row("Progress", fmt.Sprintf("%d%%", task.Progress)))
	if task.CurrentStep != "" {
		lines = append(lines, row("Step", task.CurrentStep))
	}
	lines = append(lines, row("Retries", fmt.Sprintf("%d of %d", task.RetryCount, task.MaxRetries)))
	lines = append(lines, row("Created", task.CreatedAt.Local().Format("2006-01-02 15:04")))
	lines = append(lines, row("Updated", task.UpdatedAt.Local().Format("2006-01-02 15:04")))
	if task.StartedAt != nil {
		lines = append(lines, row("Started", task.StartedAt.Local().Format("2006-01-02 15:04")))
	}
	if task.CompletedAt != nil {
		lines = append(lines, row("Completed", task.CompletedAt.Local().Format("2006-01-02 15:04")))
	}
	if len(task.DependsOn) > 0 {
		short := make([]string, len(task.DependsOn))
		for i, id := range task.DependsOn {
			short[i] = domain.ShortID(id)
		}
		lines = append(lines, row("Depends on", strings.Join(short, ", ")))
	}
	if task.ErrorMessage != "" {
		lines = append(lines, m.styles.DetailLabel.Render("Error")+m.styles.ErrorMsg.Render(task.ErrorMessage))
	}
	if task.Description != "" {
		lines = append(lines, m.styles.DetailDesc.Render(task.Description))
	}
	if len(task.ResultData) > 0 {
		lines = append(lines, "", m.styles.DetailLabel.Render("Result"), string(task.ResultData))
	}
	return strings.Join(lines, "\n")
}
