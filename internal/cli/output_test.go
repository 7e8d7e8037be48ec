package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		want string
		d    time.Duration
	}{
		{d: 45 * time.Second, want: "45s"},
		{d: 5 * time.Minute, want: "5m"},
		{d: 3*time.Hour + 20*time.Minute, want: "3h"},
		{d: 50 * time.Hour, want: "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name string
		want string
		pct  int
	}{
		{name: "empty", pct: 0, want: "[..........]"},
		{name: "half", pct: 50, want: "[#####.....]"},
		{name: "full", pct: 100, want: "[##########]"},
		{name: "clamped low", pct: -5, want: "[..........]"},
		{name: "clamped high", pct: 120, want: "[##########]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressBar(tt.pct, 10))
		})
	}
}
