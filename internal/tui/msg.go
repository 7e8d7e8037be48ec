package tui

import "github.com/runoshun/research-crew/internal/domain"

// Msg is the sealed interface for all TUI messages.
//
// go-sumtype:decl Msg
type Msg interface {
	sealed()
}

// MsgDashboardLoaded is sent when the dashboard and task list are loaded.
type MsgDashboardLoaded struct {
	Dashboard *domain.Dashboard
	Tasks     []*domain.Task
}

func (MsgDashboardLoaded) sealed() {}

// MsgTaskUpdated is sent after an action changed a task.
type MsgTaskUpdated struct {
	Task    *domain.Task
	Message string
}

func (MsgTaskUpdated) sealed() {}

// MsgTick triggers a periodic refresh.
type MsgTick struct{}

func (MsgTick) sealed() {}

// MsgError is sent when a load or an action fails.
type MsgError struct {
	Err error
}

func (MsgError) sealed() {}

// MsgClearError clears the error line.
type MsgClearError struct{}

func (MsgClearError) sealed() {}
