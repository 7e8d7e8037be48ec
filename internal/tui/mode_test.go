package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMode_String(t *testing.T) {
	tests := []struct {
		want string
		mode Mode
	}{
		{mode: ModeNormal, want: "normal"},
		{mode: ModeConfirm, want: "confirm"},
		{mode: ModeHelp, want: "help"},
		{mode: ModeDetail, want: "detail"},
		{mode: Mode(99), want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mode.String())
		})
	}
}
