package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/runoshun/research-crew/internal/domain"
)

const progressBarWidth = 30

// View renders the TUI.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch m.mode {
	case ModeHelp:
		content = m.viewHelp()
	case ModeDetail:
		content = m.viewDetail()
	case ModeNormal, ModeConfirm:
		content = m.viewMain()
	}

	return m.styles.App.Render(content)
}

// viewMain renders the dashboard with the grouped task list.
func (m *Model) viewMain() string {
	var b strings.Builder

	b.WriteString(m.viewHeader())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(m.styles.ErrorMsg.Render("Error: "+m.err.Error()) + "\n\n")
	} else if m.notice != "" {
		b.WriteString(m.styles.Notice.Render(m.notice) + "\n\n")
	}

	if m.dashboard == nil {
		if m.loading {
			b.WriteString(m.spinner.View() + " Loading dashboard...\n")
		}
		b.WriteString("\n")
		b.WriteString(m.viewFooter())
		return b.String()
	}

	b.WriteString(m.viewProgress())
	b.WriteString("\n\n")
	b.WriteString(m.viewTaskList())

	if stale := m.viewStale(); stale != "" {
		b.WriteString("\n")
		b.WriteString(stale)
	}
	if len(m.dashboard.NextActions) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.HeaderText.Render("Next actions"))
		b.WriteString("\n")
		for _, a := range m.dashboard.NextActions {
			b.WriteString("  • " + a + "\n")
		}
	}

	if m.mode == ModeConfirm {
		b.WriteString("\n")
		b.WriteString(m.viewConfirmDialog())
	}

	b.WriteString("\n")
	b.WriteString(m.viewFooter())
	return b.String()
}

// viewHeader renders the session name and status.
func (m *Model) viewHeader() string {
	if m.dashboard == nil {
		return m.styles.Header.Render("Session " + m.sessionID)
	}
	d := m.dashboard
	title := m.styles.HeaderText.Render(d.SessionName)
	meta := []string{string(d.SessionStatus)}
	if d.ResearchType != "" {
		meta = append(meta, d.ResearchType)
	}
	if d.Target != "" {
		meta = append(meta, d.Target)
	}
	meta = append(meta, "updated "+d.LastUpdated.Local().Format("15:04:05"))
	return m.styles.Header.Render(title + "  " + m.styles.HeaderMeta.Render(strings.Join(meta, " · ")))
}

// viewProgress renders the completion bar.
func (m *Model) viewProgress() string {
	p := m.dashboard.Progress
	filled := p.Percentage * progressBarWidth / 100
	bar := m.styles.ProgressFill.Render(strings.Repeat("█", filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat("░", progressBarWidth-filled))
	return fmt.Sprintf("%s %3d%%  %d/%d completed  %s", bar, p.Percentage, p.CompletedCount, p.TotalCount, p.Status)
}

// viewTaskList renders tasks grouped by dashboard bucket.
func (m *Model) viewTaskList() string {
	if len(m.tasks) == 0 {
		return m.styles.Footer.Render("No tasks in this session") + "\n"
	}

	var b strings.Builder
	current := ""
	for i, t := range m.tasks {
		if bucket := domain.BucketFor(t.Status); bucket != current {
			current = bucket
			b.WriteString(m.viewGroupHeader(bucket))
			b.WriteString("\n")
		}
		b.WriteString(m.viewTaskRow(t, i == m.cursor))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewGroupHeader(bucket string) string {
	label := m.styles.GroupHeaderLabel.Render(" " + bucket + " ")
	lineWidth := max(m.width-8-lipgloss.Width(label), 4)
	return m.styles.GroupHeaderLine.Render("──") + label + m.styles.GroupHeaderLine.Render(strings.Repeat("─", lineWidth))
}

func (m *Model) viewTaskRow(t *domain.Task, selected bool) string {
	cursor := "  "
	idStyle, titleStyle := m.styles.TaskID, m.styles.TaskTitle
	if selected {
		cursor = m.styles.CursorSelected.Render("> ")
		idStyle, titleStyle = m.styles.TaskIDSelected, m.styles.TaskTitleSelected
	}

	row := cursor +
		idStyle.Render(domain.ShortID(t.ID)) +
		m.styles.StatusStyle(t.Status).Width(14).Render(t.Status.Display()) +
		fmt.Sprintf("%3d%%  ", t.Progress) +
		titleStyle.Render(t.Title)
	if t.CurrentStep != "" {
		row += "  " + m.styles.TaskStep.Render(t.CurrentStep)
	}
	if t.Status == domain.StatusFailed && t.ErrorMessage != "" {
		row += "  " + m.styles.ErrorMsg.Render(t.ErrorMessage)
	}
	return row
}

func (m *Model) viewStale() string {
	if len(m.dashboard.StaleItems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.StaleItem.Render("Stale"))
	b.WriteString("\n")
	for _, s := range m.dashboard.StaleItems {
		b.WriteString(fmt.Sprintf("  %s %dh  %s: %s\n", domain.ShortID(s.TaskID), s.HoursStale, s.Title, s.RecommendedAction))
	}
	return b.String()
}

func (m *Model) viewConfirmDialog() string {
	task := m.SelectedTask()
	if task == nil {
		return ""
	}
	var verb string
	switch m.confirmAction {
	case ConfirmRetry:
		verb = "Retry"
	case ConfirmCancel:
		verb = "Cancel"
	case ConfirmNone:
		return ""
	}
	content := m.styles.DialogTitle.Render(fmt.Sprintf("%s task %s?", verb, domain.ShortID(task.ID))) +
		"\n" + task.Title + "\n\n" + m.styles.Footer.Render("y: confirm · any other key: abort")
	return m.styles.Dialog.Render(content)
}

func (m *Model) viewDetail() string {
	return m.detailViewport.View() + "\n" + m.styles.Footer.Render("esc: back")
}

func (m *Model) viewHelp() string {
	return m.styles.Help.Render(m.help.FullHelpView(m.keys.FullHelp()))
}

func (m *Model) viewFooter() string {
	return m.help.ShortHelpView(m.keys.ShortHelp())
}
