package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// DefaultTaskType is used when a task is created without a type.
const DefaultTaskType = "general"

// CreateTaskInput contains the parameters for creating a new task.
// Fields are ordered to minimize memory padding.
type CreateTaskInput struct {
	MaxRetries  *int     // Retry budget (nil = configured default)
	SessionID   string   // Owning session (required)
	TaskType    string   // Free-form category (default "general")
	Title       string   // Task title (required)
	Description string   // Task description (optional)
	Actor       string   // Recorded in the creation audit entry
	DependsOn   []string // Predecessor task ids in the same session
}

// CreateTaskOutput contains the result of creating a task.
type CreateTaskOutput struct {
	Task *domain.Task
}

// CreateTaskOptions holds the configured task defaults.
type CreateTaskOptions struct {
	StoreTimeout time.Duration
	MaxRetries   int
	RejectCycles bool
}

// CreateTask is the use case for creating a new task.
type CreateTask struct {
	tasks    domain.TaskRepository
	sessions domain.SessionRepository
	sync     *shared.SessionSync
	locks    *shared.KeyedLocker
	ids      domain.IDGenerator
	clock    domain.Clock
	logger   domain.Logger
	opts     CreateTaskOptions
}

// NewCreateTask creates a new CreateTask use case.
func NewCreateTask(
	tasks domain.TaskRepository,
	sessions domain.SessionRepository,
	sync *shared.SessionSync,
	locks *shared.KeyedLocker,
	ids domain.IDGenerator,
	clock domain.Clock,
	logger domain.Logger,
	opts CreateTaskOptions,
) *CreateTask {
	return &CreateTask{
		tasks:    tasks,
		sessions: sessions,
		sync:     sync,
		locks:    locks,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// Execute creates a pending task and records its creation in the audit log.
func (uc *CreateTask) Execute(ctx context.Context, in CreateTaskInput) (*CreateTaskOutput, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domain.NewSessionError(domain.ErrValidation, in.SessionID, "title cannot be empty")
	}
	maxRetries := uc.opts.MaxRetries
	if in.MaxRetries != nil {
		maxRetries = *in.MaxRetries
	}
	if maxRetries < 0 {
		return nil, domain.NewSessionError(domain.ErrValidation, in.SessionID, "max_retries must not be negative")
	}
	taskType := strings.TrimSpace(in.TaskType)
	if taskType == "" {
		taskType = DefaultTaskType
	}

	task, err := uc.create(ctx, in, title, taskType, maxRetries, dedupe(in.DependsOn))
	if err != nil {
		return nil, err
	}

	if err := uc.sync.Attach(ctx, in.SessionID, task.ID); err != nil {
		uc.logger.Error(task.ID, "session", fmt.Sprintf("attach to session %s: %v", in.SessionID, err))
	}
	return &CreateTaskOutput{Task: task}, nil
}

// create validates dependencies and saves the task under the session lock.
// Creation and dependency edits are serialized per session so the
// dependency graph cannot change under the cycle check.
func (uc *CreateTask) create(ctx context.Context, in CreateTaskInput, title, taskType string, maxRetries int, deps []string) (*domain.Task, error) {
	unlock, err := uc.locks.Lock(ctx, shared.SessionKey(in.SessionID))
	if err != nil {
		return nil, domain.StorageFailure("lock session", err)
	}
	defer unlock()

	if _, err := shared.GetSession(ctx, uc.sessions, in.SessionID, uc.opts.StoreTimeout); err != nil {
		return nil, err
	}

	sctx, cancel := shared.StoreContext(ctx, uc.opts.StoreTimeout)
	siblings, err := uc.tasks.ListBySession(sctx, in.SessionID)
	cancel()
	if err != nil {
		return nil, domain.NewSessionError(domain.StorageFailure("list session tasks", err), in.SessionID, "")
	}
	known := make(map[string]bool, len(siblings))
	for _, t := range siblings {
		known[t.ID] = true
	}
	for _, dep := range deps {
		if !known[dep] {
			return nil, domain.NewSessionError(domain.ErrValidation, in.SessionID,
				fmt.Sprintf("dependency %s is not a task of this session", dep))
		}
	}

	now := uc.clock.Now()
	task := &domain.Task{
		ID:          uc.ids.NewID(),
		SessionID:   in.SessionID,
		TaskType:    taskType,
		Title:       title,
		Description: in.Description,
		Status:      domain.StatusPending,
		DependsOn:   deps,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if uc.opts.RejectCycles {
		graph := domain.NewDependencyGraph(append(siblings, task))
		if cycle := graph.DetectCycle(); cycle != nil {
			return nil, domain.NewTaskError(domain.ErrDependencyCycle, task.ID, strings.Join(cycle, " -> "))
		}
	}

	actor := in.Actor
	if actor == "" {
		actor = domain.ActorUser
	}
	entry := &domain.AuditEntry{
		Timestamp: now,
		TaskID:    task.ID,
		NewStatus: domain.StatusPending,
		ChangedBy: actor,
		Reason:    "task created",
	}

	sctx, cancel = shared.StoreContext(ctx, uc.opts.StoreTimeout)
	defer cancel()
	if err := uc.tasks.Save(sctx, task, 0, entry); err != nil {
		return nil, domain.NewTaskError(domain.StorageFailure("save task", err), task.ID, "")
	}
	uc.logger.Info(task.ID, "task", fmt.Sprintf("created in session %s: %q", in.SessionID, title))
	return task, nil
}

// dedupe removes empty and repeated ids, keeping the first occurrence.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
