package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/runoshun/research-crew/internal/domain"
)

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if m.mode == ModeDetail {
			m.initDetailViewport()
		}
		return m, nil

	case MsgDashboardLoaded:
		m.loading = false
		m.dashboard = msg.Dashboard
		m.setTasks(msg.Tasks)
		return m, nil

	case MsgTaskUpdated:
		m.notice = msg.Message
		m.err = nil
		m.mode = ModeNormal
		m.confirmAction = ConfirmNone
		return m, m.loadDashboard()

	case MsgTick:
		return m, tea.Batch(m.loadDashboard(), m.tick())

	case MsgError:
		m.loading = false
		m.err = msg.Err
		m.notice = ""
		m.mode = ModeNormal
		m.confirmAction = ConfirmNone
		return m, nil

	case MsgClearError:
		m.err = nil
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// setTasks replaces the task list and keeps the cursor on the same task when possible.
func (m *Model) setTasks(tasks []*domain.Task) {
	var selectedID string
	if t := m.SelectedTask(); t != nil {
		selectedID = t.ID
	}
	m.tasks = orderTasks(tasks)
	m.cursor = 0
	for i, t := range m.tasks {
		if t.ID == selectedID {
			m.cursor = i
			break
		}
	}
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeHelp:
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Quit) {
			m.mode = ModeNormal
		}
		return m, nil

	case ModeDetail:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Detail), msg.String() == "q":
			m.mode = ModeNormal
			return m, nil
		}
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd

	case ModeConfirm:
		return m.handleConfirmKey(msg)

	case ModeNormal:
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.mode = ModeHelp
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		m.notice = ""
		return m, tea.Batch(m.loadDashboard(), m.spinner.Tick)

	case key.Matches(msg, m.keys.Detail):
		if m.SelectedTask() == nil {
			return m, nil
		}
		m.mode = ModeDetail
		m.initDetailViewport()
		return m, nil
	}

	task := m.SelectedTask()
	if task == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		return m, m.startTask(task.ID)

	case key.Matches(msg, m.keys.Complete):
		return m, m.completeTask(task.ID)

	case key.Matches(msg, m.keys.Retry):
		m.mode = ModeConfirm
		m.confirmAction = ConfirmRetry
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		m.mode = ModeConfirm
		m.confirmAction = ConfirmCancel
		return m, nil
	}

	return m, nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Confirm) {
		m.mode = ModeNormal
		m.confirmAction = ConfirmNone
		return m, nil
	}

	task := m.SelectedTask()
	action := m.confirmAction
	m.mode = ModeNormal
	m.confirmAction = ConfirmNone
	if task == nil {
		return m, nil
	}

	switch action {
	case ConfirmRetry:
		return m, m.retryTask(task.ID)
	case ConfirmCancel:
		return m, m.cancelTask(task.ID)
	case ConfirmNone:
	}
	return m, nil
}
