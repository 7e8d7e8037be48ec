package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession_Execute(t *testing.T) {
	f := newFixture(t)
	ids := &testutil.SequenceIDs{Prefix: "session"}
	uc := NewCreateSession(f.store, ids, f.clock, f.logger, time.Second)

	out, err := uc.Execute(context.Background(), CreateSessionInput{
		Name:         " Globex market scan ",
		ResearchType: "market_analysis",
		Target:       "globex.example",
	})

	require.NoError(t, err)
	s := out.Session
	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, "Globex market scan", s.Name)
	assert.Equal(t, "market_analysis", s.ResearchType)
	assert.Equal(t, domain.SessionPlanned, s.Status)
	assert.Empty(t, s.TaskIDs)
	assert.Equal(t, testNow, s.CreatedAt)
	assert.Contains(t, f.store.Sessions, "session-1")
}

func TestCreateSession_Execute_Errors(t *testing.T) {
	f := newFixture(t)
	uc := NewCreateSession(f.store, f.ids, f.clock, f.logger, time.Second)

	_, err := uc.Execute(context.Background(), CreateSessionInput{Name: " "})
	require.ErrorIs(t, err, domain.ErrValidation)

	f.store.SessErr = errors.New("disk full")
	_, err = uc.Execute(context.Background(), CreateSessionInput{Name: "x"})
	require.ErrorIs(t, err, domain.ErrStorage)
}

func TestListSessions_Execute(t *testing.T) {
	f := newFixture(t)
	f.store.PutSession(&domain.Session{ID: "s0", Name: "Older", CreatedAt: testNow.Add(-72 * time.Hour)})
	f.store.PutSession(&domain.Session{ID: "s2", Name: "Newer", CreatedAt: testNow})

	out, err := NewListSessions(f.store, time.Second).Execute(context.Background())

	require.NoError(t, err)
	names := make([]string, 0, len(out.Sessions))
	for _, s := range out.Sessions {
		names = append(names, s.ID)
	}
	assert.Equal(t, []string{"s0", "s1", "s2"}, names)
}

func TestDeleteSession_Execute(t *testing.T) {
	f := newFixture(t)
	a := f.newTask(t, "Scrape")
	f.store.PutSession(&domain.Session{ID: "s2", Name: "Other"})
	f.put("keep", domain.StatusPending, func(t *domain.Task) { t.SessionID = "s2" })
	uc := NewDeleteSession(f.store, f.locks, f.logger, time.Second)

	err := uc.Execute(context.Background(), DeleteSessionInput{SessionID: "s1"})

	require.NoError(t, err)
	assert.NotContains(t, f.store.Sessions, "s1")
	assert.Nil(t, f.store.Task(a.ID))
	assert.NotNil(t, f.store.Task("keep"))
	assert.Len(t, f.store.AuditFor(a.ID), 1)

	err = uc.Execute(context.Background(), DeleteSessionInput{SessionID: "s1"})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}
