package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// ApplyPlanInput contains the parameters for importing a plan.
type ApplyPlanInput struct {
	Content []byte // YAML plan
	DryRun  bool   // Validate without writing
}

// PlannedTask pairs a plan key with the task created for it.
type PlannedTask struct {
	Task *domain.Task // nil in dry-run mode
	Key  string
}

// ApplyPlanOutput contains the session and the tasks created from the plan.
type ApplyPlanOutput struct {
	Session *domain.Session // nil in dry-run mode when the plan creates a session
	Tasks   []PlannedTask   // In creation order
}

// ApplyPlan is the use case for creating a batch of dependent tasks from YAML.
// The whole plan is validated (including cycles) before anything is written.
type ApplyPlan struct {
	createSession *CreateSession
	createTask    *CreateTask
	sessions      domain.SessionRepository
	timeout       time.Duration
}

// NewApplyPlan creates a new ApplyPlan use case.
func NewApplyPlan(createSession *CreateSession, createTask *CreateTask, sessions domain.SessionRepository, timeout time.Duration) *ApplyPlan {
	return &ApplyPlan{
		createSession: createSession,
		createTask:    createTask,
		sessions:      sessions,
		timeout:       timeout,
	}
}

// Execute validates the plan and creates its tasks in dependency order.
func (uc *ApplyPlan) Execute(ctx context.Context, in ApplyPlanInput) (*ApplyPlanOutput, error) {
	plan, err := domain.ParsePlan(in.Content)
	if err != nil {
		return nil, err
	}
	order := plan.CreationOrder()

	out := &ApplyPlanOutput{Tasks: make([]PlannedTask, 0, len(order))}

	var session *domain.Session
	if plan.SessionID != "" {
		session, err = shared.GetSession(ctx, uc.sessions, plan.SessionID, uc.timeout)
		if err != nil {
			return nil, err
		}
		out.Session = session
	}

	if in.DryRun {
		for _, pt := range order {
			out.Tasks = append(out.Tasks, PlannedTask{Key: pt.Key})
		}
		return out, nil
	}

	if session == nil {
		created, err := uc.createSession.Execute(ctx, CreateSessionInput{
			Name:         plan.Session.Name,
			ResearchType: plan.Session.ResearchType,
			Target:       plan.Session.Target,
		})
		if err != nil {
			return nil, err
		}
		session = created.Session
		out.Session = session
	}

	ids := make(map[string]string, len(order))
	for _, pt := range order {
		deps := make([]string, 0, len(pt.DependsOn))
		for _, key := range pt.DependsOn {
			deps = append(deps, ids[key])
		}
		created, err := uc.createTask.Execute(ctx, CreateTaskInput{
			SessionID:   session.ID,
			TaskType:    pt.TaskType,
			Title:       pt.Title,
			Description: pt.Description,
			DependsOn:   deps,
			MaxRetries:  pt.MaxRetries,
		})
		if err != nil {
			return out, fmt.Errorf("create task %q: %w", pt.Key, err)
		}
		ids[pt.Key] = created.Task.ID
		out.Tasks = append(out.Tasks, PlannedTask{Key: pt.Key, Task: created.Task})
	}
	return out, nil
}
