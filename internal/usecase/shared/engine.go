package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// Change describes a requested status transition.
// Fields are ordered to minimize memory padding.
type Change struct {
	// Check runs against the freshly read task before the transition table.
	// It reports operation-specific preconditions (e.g. retry only on failed).
	Check        func(*domain.Task) error
	Progress     *int
	CurrentStep  *string
	ErrorMessage *string
	ResultData   json.RawMessage // Attached only when entering completed
	To           domain.Status
	Actor        string // Defaults to domain.ActorSystem
	Reason       string
	Trigger      domain.Trigger
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Retry        RetryPolicy
	StoreTimeout time.Duration
}

// Engine validates and applies every task status change.
// Each change is atomic per task: a per-task lock serializes callers in this
// process and the store's version check rejects writers from other processes.
type Engine struct {
	tasks    domain.TaskRepository
	resolver *Resolver
	sessions *SessionSync
	locks    *KeyedLocker
	clock    domain.Clock
	logger   domain.Logger
	opts     EngineOptions
}

// NewEngine creates a new Engine.
func NewEngine(
	tasks domain.TaskRepository,
	resolver *Resolver,
	sessions *SessionSync,
	locks *KeyedLocker,
	clock domain.Clock,
	logger domain.Logger,
	opts EngineOptions,
) *Engine {
	if logger == nil {
		logger = domain.NopLogger{}
	}
	return &Engine{
		tasks:    tasks,
		resolver: resolver,
		sessions: sessions,
		locks:    locks,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// errLanded stops a retried attempt whose previous write is already stored.
var errLanded = errors.New("previous attempt landed")

// attempt identifies a transition write whose outcome is unknown because
// the store reported a transient failure.
type attempt struct {
	updatedAt   time.Time
	to          domain.Status
	baseVersion int
}

// landed reports whether t is exactly the state the attempt wrote: the next
// version after the one it read, in the target status, stamped at its time.
// Backends may round timestamps, so they are compared to the millisecond.
func (a *attempt) landed(t *domain.Task) bool {
	if a == nil {
		return false
	}
	return t.Version == a.baseVersion+1 &&
		t.Status == a.to &&
		t.UpdatedAt.Sub(a.updatedAt).Abs() < time.Millisecond
}

// Apply validates ch against the task's current status and commits the
// transition together with its audit entry.
// Transient store failures are retried; every attempt re-reads the task and
// re-validates, so a change is never applied twice. A write that was stored
// even though the store reported a failure counts as success.
func (e *Engine) Apply(ctx context.Context, taskID string, ch Change) (*domain.Task, error) {
	if err := validateChange(taskID, ch); err != nil {
		return nil, err
	}

	var (
		result *domain.Task
		last   *attempt
	)
	err := e.opts.Retry.Do(ctx, func() error {
		task, err := e.mutate(ctx, taskID, func(task *domain.Task) (*domain.AuditEntry, error) {
			if last.landed(task) {
				return nil, errLanded
			}
			base := task.Version
			entry, err := e.transition(ctx, task, ch)
			if err != nil {
				return nil, err
			}
			last = &attempt{baseVersion: base, to: ch.To, updatedAt: task.UpdatedAt}
			return entry, nil
		})
		result = task
		return err
	})
	if err != nil && domain.IsTransient(err) && last != nil {
		// The last attempt may have been stored; check before reporting failure.
		if stored, getErr := GetTask(ctx, e.tasks, taskID, e.opts.StoreTimeout); getErr == nil && last.landed(stored) {
			result, err = stored, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if e.sessions != nil {
		e.sessions.RefreshQuietly(ctx, result.SessionID, result.ID)
	}
	return result, nil
}

// Update applies a change that is not a status transition, such as
// progress reporting. No audit entry is written.
func (e *Engine) Update(ctx context.Context, taskID string, fn func(*domain.Task) error) (*domain.Task, error) {
	var result *domain.Task
	err := e.opts.Retry.Do(ctx, func() error {
		task, err := e.mutate(ctx, taskID, func(task *domain.Task) (*domain.AuditEntry, error) {
			if err := fn(task); err != nil {
				return nil, err
			}
			task.UpdatedAt = e.clock.Now()
			return nil, nil
		})
		result = task
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mutate runs fn on a fresh copy of the task under the task lock and saves
// the result with a version check.
func (e *Engine) mutate(ctx context.Context, taskID string, fn func(*domain.Task) (*domain.AuditEntry, error)) (*domain.Task, error) {
	unlock, err := e.locks.Lock(ctx, TaskKey(taskID))
	if err != nil {
		return nil, domain.NewTaskError(domain.StorageFailure("lock task", err), taskID, "")
	}
	defer unlock()

	current, err := GetTask(ctx, e.tasks, taskID, e.opts.StoreTimeout)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	entry, err := fn(next)
	if errors.Is(err, errLanded) {
		e.logger.Warn(taskID, "status", "store reported a failure for a write that was stored")
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	sctx, cancel := StoreContext(ctx, e.opts.StoreTimeout)
	defer cancel()
	if err := e.tasks.Save(sctx, next, current.Version, entry); err != nil {
		if entry != nil {
			e.logger.Error(taskID, "status", fmt.Sprintf("transition %s -> %s not confirmed: %v",
				entry.OldStatus, entry.NewStatus, err))
		}
		return nil, domain.NewTaskError(domain.StorageFailure("save task", err), taskID, "")
	}

	if entry != nil {
		msg := fmt.Sprintf("%s -> %s by %s", entry.OldStatus, entry.NewStatus, entry.ChangedBy)
		if entry.Reason != "" {
			msg += ": " + entry.Reason
		}
		e.logger.Info(taskID, "status", msg)
	}
	return next, nil
}

// transition checks the transition table and applies the entry side effects.
func (e *Engine) transition(ctx context.Context, task *domain.Task, ch Change) (*domain.AuditEntry, error) {
	if ch.Check != nil {
		if err := ch.Check(task); err != nil {
			return nil, err
		}
	}

	from := task.Status
	if from == ch.To {
		return nil, domain.NewTaskError(domain.ErrInvalidTransition, task.ID,
			fmt.Sprintf("task is already %s", from))
	}
	required, ok := from.RequiredTrigger(ch.To)
	if !ok {
		return nil, domain.NewTaskError(domain.ErrInvalidTransition, task.ID,
			fmt.Sprintf("%s -> %s is not allowed", from, ch.To))
	}
	if required != ch.Trigger {
		return nil, domain.NewTaskError(domain.ErrInvalidTransition, task.ID,
			fmt.Sprintf("%s -> %s requires the %s trigger", from, ch.To, required))
	}

	if ch.Trigger == domain.TriggerRetry && task.RetryCount >= task.MaxRetries {
		return nil, domain.NewTaskError(domain.ErrRetryLimitExceeded, task.ID,
			fmt.Sprintf("maximum retry attempts exceeded (%d of %d)", task.RetryCount, task.MaxRetries))
	}

	// A task may not leave pending for in_progress before its predecessors complete.
	if ch.To == domain.StatusInProgress && (from == domain.StatusPending || from == domain.StatusStale) && e.resolver != nil {
		unmet, err := e.resolver.UnmetDependencies(ctx, task)
		if err != nil {
			return nil, err
		}
		if len(unmet) > 0 {
			return nil, domain.NewTaskError(domain.ErrInvalidState, task.ID,
				fmt.Sprintf("dependencies not completed: %v", unmet))
		}
	}

	now := e.clock.Now()
	task.Status = ch.To
	task.UpdatedAt = now
	if ch.Progress != nil {
		task.Progress = *ch.Progress
	}
	if ch.CurrentStep != nil {
		task.CurrentStep = *ch.CurrentStep
	}

	reason := ch.Reason
	switch ch.To {
	case domain.StatusInProgress:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case domain.StatusCompleted:
		task.Progress = 100
		task.CompletedAt = &now
		task.ErrorMessage = ""
		if ch.ResultData != nil {
			task.ResultData = ch.ResultData
		}
	case domain.StatusFailed:
		task.ErrorMessage = *ch.ErrorMessage
		task.CompletedAt = nil
		if reason == "" {
			reason = task.ErrorMessage
		}
	case domain.StatusCancelled:
		task.CurrentStep = domain.StepCancelled
	case domain.StatusPending:
		if ch.Trigger == domain.TriggerRetry {
			task.RetryCount++
			task.ErrorMessage = ""
			task.Progress = 0
			task.CurrentStep = domain.StepQueuedOnRetry
			task.CompletedAt = nil
			reason = fmt.Sprintf("retry attempt %d of %d", task.RetryCount, task.MaxRetries)
		}
	case domain.StatusWaitingUser, domain.StatusStale:
	}

	actor := ch.Actor
	if actor == "" {
		actor = domain.ActorSystem
	}
	return &domain.AuditEntry{
		Timestamp: now,
		TaskID:    task.ID,
		OldStatus: from,
		NewStatus: ch.To,
		ChangedBy: actor,
		Reason:    reason,
	}, nil
}

// validateChange checks the inputs of a change independently of the task state.
func validateChange(taskID string, ch Change) error {
	if !ch.To.IsValid() {
		return domain.NewTaskError(domain.ErrValidation, taskID,
			fmt.Sprintf("unknown target status %q", ch.To))
	}
	if ch.Progress != nil {
		if err := ValidateProgress(taskID, *ch.Progress); err != nil {
			return err
		}
	}
	if ch.To == domain.StatusFailed && (ch.ErrorMessage == nil || *ch.ErrorMessage == "") {
		return domain.NewTaskError(domain.ErrValidation, taskID, "error_message is required when failing a task")
	}
	if ch.ResultData != nil {
		if ch.To != domain.StatusCompleted {
			return domain.NewTaskError(domain.ErrValidation, taskID, "result_data is only attached on completion")
		}
		if !json.Valid(ch.ResultData) {
			return domain.NewTaskError(domain.ErrValidation, taskID, "result_data must be valid JSON")
		}
	}
	return nil
}

// ValidateProgress rejects progress values outside [0,100].
func ValidateProgress(taskID string, progress int) error {
	if progress < 0 || progress > 100 {
		return domain.NewTaskError(domain.ErrValidation, taskID,
			fmt.Sprintf("progress %d is outside [0,100]", progress))
	}
	return nil
}
