package shared

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	store  *testutil.MockStore
	clock  *testutil.MockClock
	logger *testutil.MockLogger
	engine *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store := testutil.NewMockStore()
	clock := testutil.NewMockClock(testNow)
	logger := &testutil.MockLogger{}
	locks := NewKeyedLocker()
	resolver := NewResolver(store, time.Second)
	sessions := NewSessionSync(store, store, locks, clock, logger, time.Second)
	engine := NewEngine(store, resolver, sessions, locks, clock, logger, EngineOptions{
		StoreTimeout: time.Second,
		Retry:        RetryPolicy{Attempts: 3},
	})
	store.PutSession(&domain.Session{ID: "s1", Name: "Acme", Status: domain.SessionPlanned})
	return &engineFixture{store: store, clock: clock, logger: logger, engine: engine}
}

func (f *engineFixture) put(id string, status domain.Status, mutate ...func(*domain.Task)) {
	task := &domain.Task{
		ID:         id,
		SessionID:  "s1",
		Title:      "Task " + id,
		TaskType:   "research",
		Status:     status,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  testNow.Add(-time.Hour),
		UpdatedAt:  testNow.Add(-time.Hour),
	}
	for _, m := range mutate {
		m(task)
	}
	f.store.Put(task)
	session := f.store.Sessions["s1"]
	session.AddTask(id)
}

func intPtr(v int) *int             { return &v }
func strPtr(v string) *string       { return &v }
func update(to domain.Status) Change { return Change{To: to, Trigger: domain.TriggerUpdate} }

func TestEngine_Apply_AllowedTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   domain.Status
		change Change
		want   domain.Status
	}{
		{"pending to in_progress", domain.StatusPending, update(domain.StatusInProgress), domain.StatusInProgress},
		{"pending to cancelled", domain.StatusPending, update(domain.StatusCancelled), domain.StatusCancelled},
		{"in_progress to completed", domain.StatusInProgress, update(domain.StatusCompleted), domain.StatusCompleted},
		{"in_progress to failed", domain.StatusInProgress, Change{To: domain.StatusFailed, ErrorMessage: strPtr("boom")}, domain.StatusFailed},
		{"in_progress to waiting_user", domain.StatusInProgress, update(domain.StatusWaitingUser), domain.StatusWaitingUser},
		{"in_progress to cancelled", domain.StatusInProgress, update(domain.StatusCancelled), domain.StatusCancelled},
		{"waiting_user to in_progress", domain.StatusWaitingUser, update(domain.StatusInProgress), domain.StatusInProgress},
		{"waiting_user to cancelled", domain.StatusWaitingUser, update(domain.StatusCancelled), domain.StatusCancelled},
		{"failed to pending via retry", domain.StatusFailed, Change{To: domain.StatusPending, Trigger: domain.TriggerRetry}, domain.StatusPending},
		{"pending to stale via sweep", domain.StatusPending, Change{To: domain.StatusStale, Trigger: domain.TriggerSweep}, domain.StatusStale},
		{"in_progress to stale via sweep", domain.StatusInProgress, Change{To: domain.StatusStale, Trigger: domain.TriggerSweep}, domain.StatusStale},
		{"stale to pending", domain.StatusStale, update(domain.StatusPending), domain.StatusPending},
		{"stale to in_progress", domain.StatusStale, update(domain.StatusInProgress), domain.StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.put("t1", tt.from, func(task *domain.Task) {
				if tt.from == domain.StatusFailed {
					task.ErrorMessage = "previous failure"
				}
			})

			got, err := f.engine.Apply(context.Background(), "t1", tt.change)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, testNow, got.UpdatedAt)
			assert.Equal(t, tt.want, f.store.Task("t1").Status)

			audit := f.store.AuditFor("t1")
			require.Len(t, audit, 1, "exactly one audit entry per transition")
			assert.Equal(t, tt.from, audit[0].OldStatus)
			assert.Equal(t, tt.want, audit[0].NewStatus)
			assert.Equal(t, domain.ActorSystem, audit[0].ChangedBy)
		})
	}
}

func TestEngine_Apply_RejectedTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   domain.Status
		change Change
	}{
		{"pending to completed", domain.StatusPending, update(domain.StatusCompleted)},
		{"pending to waiting_user", domain.StatusPending, update(domain.StatusWaitingUser)},
		{"completed to in_progress", domain.StatusCompleted, update(domain.StatusInProgress)},
		{"completed to cancelled", domain.StatusCompleted, update(domain.StatusCancelled)},
		{"cancelled to in_progress", domain.StatusCancelled, update(domain.StatusInProgress)},
		{"cancelled to cancelled", domain.StatusCancelled, update(domain.StatusCancelled)},
		{"failed to pending without retry", domain.StatusFailed, update(domain.StatusPending)},
		{"failed to in_progress", domain.StatusFailed, update(domain.StatusInProgress)},
		{"pending to stale without sweep", domain.StatusPending, update(domain.StatusStale)},
		{"waiting_user to stale", domain.StatusWaitingUser, Change{To: domain.StatusStale, Trigger: domain.TriggerSweep}},
		{"stale to cancelled", domain.StatusStale, update(domain.StatusCancelled)},
		{"in_progress to in_progress", domain.StatusInProgress, update(domain.StatusInProgress)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.put("t1", tt.from)

			_, err := f.engine.Apply(context.Background(), "t1", tt.change)

			require.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.Contains(t, err.Error(), "t1")
			assert.Equal(t, tt.from, f.store.Task("t1").Status)
			assert.Empty(t, f.store.AuditFor("t1"))
		})
	}
}

func TestEngine_Apply_SideEffects(t *testing.T) {
	t.Run("in_progress sets started_at once", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusPending)

		got, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusInProgress))
		require.NoError(t, err)
		require.NotNil(t, got.StartedAt)
		assert.Equal(t, testNow, *got.StartedAt)

		_, err = f.engine.Apply(context.Background(), "t1", update(domain.StatusWaitingUser))
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		got, err = f.engine.Apply(context.Background(), "t1", update(domain.StatusInProgress))
		require.NoError(t, err)
		assert.Equal(t, testNow, *got.StartedAt, "re-entry must not reset started_at")
	})

	t.Run("completed forces progress and clears error", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusInProgress, func(task *domain.Task) {
			task.Progress = 40
			task.ErrorMessage = "stale message"
		})

		got, err := f.engine.Apply(context.Background(), "t1", Change{
			To:         domain.StatusCompleted,
			ResultData: json.RawMessage(`{"employees":42}`),
		})

		require.NoError(t, err)
		assert.Equal(t, 100, got.Progress)
		require.NotNil(t, got.CompletedAt)
		assert.Empty(t, got.ErrorMessage)
		assert.JSONEq(t, `{"employees":42}`, string(got.ResultData))
	})

	t.Run("failed sets error and leaves completed_at unset", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusInProgress)

		got, err := f.engine.Apply(context.Background(), "t1", Change{
			To:           domain.StatusFailed,
			ErrorMessage: strPtr("timeout"),
		})

		require.NoError(t, err)
		assert.Equal(t, "timeout", got.ErrorMessage)
		assert.Nil(t, got.CompletedAt)
		assert.Equal(t, "timeout", f.store.AuditFor("t1")[0].Reason)
	})

	t.Run("cancelled sets marker", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusPending)

		got, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusCancelled))

		require.NoError(t, err)
		assert.Equal(t, domain.StepCancelled, got.CurrentStep)
	})

	t.Run("stale keeps retry state", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusInProgress, func(task *domain.Task) {
			task.RetryCount = 2
			task.ErrorMessage = "earlier"
		})

		got, err := f.engine.Apply(context.Background(), "t1", Change{
			To:      domain.StatusStale,
			Trigger: domain.TriggerSweep,
			Actor:   domain.ActorSweep,
		})

		require.NoError(t, err)
		assert.Equal(t, 2, got.RetryCount)
		assert.Equal(t, "earlier", got.ErrorMessage)
		assert.Equal(t, domain.ActorSweep, f.store.AuditFor("t1")[0].ChangedBy)
	})

	t.Run("retry resets state", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusFailed, func(task *domain.Task) {
			task.Progress = 25
			task.ErrorMessage = "timeout"
		})

		got, err := f.engine.Apply(context.Background(), "t1", Change{To: domain.StatusPending, Trigger: domain.TriggerRetry})

		require.NoError(t, err)
		assert.Equal(t, 1, got.RetryCount)
		assert.Equal(t, 0, got.Progress)
		assert.Empty(t, got.ErrorMessage)
		assert.Equal(t, domain.StepQueuedOnRetry, got.CurrentStep)
		assert.Equal(t, "retry attempt 1 of 3", f.store.AuditFor("t1")[0].Reason)
	})

	t.Run("progress and step are applied", func(t *testing.T) {
		f := newEngineFixture(t)
		f.put("t1", domain.StatusPending)

		got, err := f.engine.Apply(context.Background(), "t1", Change{
			To:          domain.StatusInProgress,
			Progress:    intPtr(25),
			CurrentStep: strPtr("Scraping website"),
		})

		require.NoError(t, err)
		assert.Equal(t, 25, got.Progress)
		assert.Equal(t, "Scraping website", got.CurrentStep)
	})
}

func TestEngine_Apply_Validation(t *testing.T) {
	tests := []struct {
		name   string
		change Change
	}{
		{"progress above 100", Change{To: domain.StatusInProgress, Progress: intPtr(101)}},
		{"negative progress", Change{To: domain.StatusInProgress, Progress: intPtr(-1)}},
		{"fail without message", Change{To: domain.StatusFailed}},
		{"fail with empty message", Change{To: domain.StatusFailed, ErrorMessage: strPtr("")}},
		{"result on non-completion", Change{To: domain.StatusInProgress, ResultData: json.RawMessage(`{}`)}},
		{"invalid result json", Change{To: domain.StatusCompleted, ResultData: json.RawMessage(`{`)}},
		{"unknown status", Change{To: domain.Status("archived")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.put("t1", domain.StatusInProgress)

			_, err := f.engine.Apply(context.Background(), "t1", tt.change)

			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, f.store.SaveCalls)
		})
	}
}

func TestEngine_Apply_RetryLimit(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusFailed, func(task *domain.Task) {
		task.RetryCount = 3
		task.ErrorMessage = "timeout"
	})

	_, err := f.engine.Apply(context.Background(), "t1", Change{To: domain.StatusPending, Trigger: domain.TriggerRetry})

	require.ErrorIs(t, err, domain.ErrRetryLimitExceeded)
	assert.Equal(t, 3, f.store.Task("t1").RetryCount)
}

func TestEngine_Apply_DependencyGate(t *testing.T) {
	f := newEngineFixture(t)
	f.put("a", domain.StatusInProgress)
	f.put("b", domain.StatusPending, func(task *domain.Task) { task.DependsOn = []string{"a"} })

	_, err := f.engine.Apply(context.Background(), "b", update(domain.StatusInProgress))
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Contains(t, err.Error(), "dependencies not completed")

	_, err = f.engine.Apply(context.Background(), "a", update(domain.StatusCompleted))
	require.NoError(t, err)

	got, err := f.engine.Apply(context.Background(), "b", update(domain.StatusInProgress))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestEngine_Apply_CancelBlockedTask(t *testing.T) {
	f := newEngineFixture(t)
	f.put("b", domain.StatusPending, func(task *domain.Task) { task.DependsOn = []string{"missing"} })

	got, err := f.engine.Apply(context.Background(), "b", update(domain.StatusCancelled))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestEngine_Apply_Check(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusPending)
	sentinel := domain.NewTaskError(domain.ErrInvalidState, "t1", "nope")

	_, err := f.engine.Apply(context.Background(), "t1", Change{
		To:    domain.StatusInProgress,
		Check: func(*domain.Task) error { return sentinel },
	})

	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Zero(t, f.store.SaveCalls)
}

func TestEngine_Apply_NotFound(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Apply(context.Background(), "ghost", update(domain.StatusInProgress))

	require.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestEngine_Apply_AuditFailureRollsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusInProgress)
	f.store.AuditErr = errors.New("disk full")

	_, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusCompleted))

	require.ErrorIs(t, err, domain.ErrStorage)
	stored := f.store.Task("t1")
	assert.Equal(t, domain.StatusInProgress, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Empty(t, f.store.AuditFor("t1"))
	assert.True(t, f.logger.HasLevel("ERROR"))
}

func TestEngine_Apply_TransientFailureRetried(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusFailed, func(task *domain.Task) { task.ErrorMessage = "timeout" })
	f.store.SaveFailures = 2

	got, err := f.engine.Apply(context.Background(), "t1", Change{To: domain.StatusPending, Trigger: domain.TriggerRetry})

	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount, "retry must be applied exactly once")
	assert.Equal(t, 3, f.store.SaveCalls)
	assert.Len(t, f.store.AuditFor("t1"), 1)
}

func TestEngine_Apply_TransientFailureExhausted(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusInProgress)
	f.store.SaveFailures = 10

	_, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusCompleted))

	require.ErrorIs(t, err, domain.ErrStorage)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, 3, f.store.SaveCalls)
}

func TestEngine_Apply_LostAcknowledgement(t *testing.T) {
	tests := []struct {
		name      string
		from      domain.Status
		change    Change
		lostAcks  int
		want      domain.Status
		wantRetry int
		wantCalls int
	}{
		{
			name:      "cancel acknowledged on retry",
			from:      domain.StatusPending,
			change:    update(domain.StatusCancelled),
			lostAcks:  1,
			want:      domain.StatusCancelled,
			wantCalls: 1,
		},
		{
			name:      "retry acknowledged on retry",
			from:      domain.StatusFailed,
			change:    Change{To: domain.StatusPending, Trigger: domain.TriggerRetry},
			lostAcks:  1,
			want:      domain.StatusPending,
			wantRetry: 1,
			wantCalls: 1,
		},
		{
			name:      "every acknowledgement lost",
			from:      domain.StatusInProgress,
			change:    update(domain.StatusCompleted),
			lostAcks:  10,
			want:      domain.StatusCompleted,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.put("t1", tt.from, func(task *domain.Task) { task.ErrorMessage = "timeout" })
			f.store.LostAcks = tt.lostAcks

			got, err := f.engine.Apply(context.Background(), "t1", tt.change)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.wantRetry, got.RetryCount)
			assert.Equal(t, tt.wantCalls, f.store.SaveCalls, "a stored write is not repeated")

			stored := f.store.Task("t1")
			assert.Equal(t, tt.want, stored.Status)
			assert.Equal(t, tt.wantRetry, stored.RetryCount)
			assert.Len(t, f.store.AuditFor("t1"), 1)
		})
	}
}

func TestEngine_Apply_LostAcknowledgementAfterFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusPending)
	f.store.SaveFailures = 1
	f.store.LostAcks = 1

	got, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusCancelled))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, domain.StepCancelled, got.CurrentStep)
	assert.Len(t, f.store.AuditFor("t1"), 1)
}

func TestEngine_Apply_StoreTimeout(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusInProgress)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Apply(ctx, "t1", update(domain.StatusCompleted))

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, domain.StatusInProgress, f.store.Task("t1").Status)
}

func TestEngine_Apply_RefreshesSession(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusPending)

	_, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusInProgress))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, f.store.Sessions["s1"].Status)

	_, err = f.engine.Apply(context.Background(), "t1", update(domain.StatusCompleted))
	require.NoError(t, err)
	session := f.store.Sessions["s1"]
	assert.Equal(t, domain.SessionCompleted, session.Status)
	assert.Equal(t, 100, session.Progress)
	assert.NotNil(t, session.CompletedAt)
}

func TestEngine_Apply_SessionRefreshFailureIsLogged(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusPending)
	f.store.SessErr = errors.New("sessions unavailable")

	got, err := f.engine.Apply(context.Background(), "t1", update(domain.StatusInProgress))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.True(t, f.logger.HasLevel("ERROR"))
}

func TestEngine_Apply_ConcurrentRetriesRespectLimit(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusFailed, func(task *domain.Task) {
		task.ErrorMessage = "timeout"
		task.MaxRetries = 1
	})

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Apply(context.Background(), "t1", Change{To: domain.StatusPending, Trigger: domain.TriggerRetry})
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 1, f.store.Task("t1").RetryCount)
	assert.Len(t, f.store.AuditFor("t1"), 1)
}

func TestEngine_Apply_ProgressStaysInRange(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusPending)

	steps := []Change{
		{To: domain.StatusInProgress, Progress: intPtr(30)},
		{To: domain.StatusWaitingUser, Progress: intPtr(60)},
		{To: domain.StatusInProgress},
		{To: domain.StatusFailed, ErrorMessage: strPtr("x")},
		{To: domain.StatusPending, Trigger: domain.TriggerRetry},
		{To: domain.StatusInProgress, Progress: intPtr(90)},
		{To: domain.StatusCompleted},
	}
	for _, step := range steps {
		got, err := f.engine.Apply(context.Background(), "t1", step)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Progress, 0)
		assert.LessOrEqual(t, got.Progress, 100)
	}
	assert.Len(t, f.store.AuditFor("t1"), len(steps))
}

func TestEngine_Update(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusInProgress)
	f.clock.Advance(time.Minute)

	got, err := f.engine.Update(context.Background(), "t1", func(task *domain.Task) error {
		task.Progress = 50
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, testNow.Add(time.Minute), got.UpdatedAt)
	assert.Empty(t, f.store.AuditFor("t1"), "updates write no audit entry")
	assert.Equal(t, 2, f.store.Task("t1").Version)
}

func TestEngine_Update_Error(t *testing.T) {
	f := newEngineFixture(t)
	f.put("t1", domain.StatusInProgress)

	_, err := f.engine.Update(context.Background(), "t1", func(*domain.Task) error {
		return domain.ErrValidation
	})

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.store.SaveCalls)
}
