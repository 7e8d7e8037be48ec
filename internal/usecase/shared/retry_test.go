package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Do(t *testing.T) {
	transient := domain.StorageFailure("save", errors.New("busy"))

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", []error{nil}, 1, nil},
		{"transient then success", []error{transient, nil}, 2, nil},
		{"conflict then success", []error{domain.ErrConcurrentModification, nil}, 2, nil},
		{"validation is not retried", []error{domain.ErrValidation}, 1, domain.ErrValidation},
		{"exhausted", []error{transient, transient, transient, nil}, 3, domain.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
			calls := 0

			err := p.Do(context.Background(), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicy_Do_ZeroValueRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func() error {
		calls++
		return domain.ErrConcurrentModification
	})

	require.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Do_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 5, BaseDelay: time.Hour}
	calls := 0

	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return domain.ErrConcurrentModification
	})

	require.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 1, calls)
}
