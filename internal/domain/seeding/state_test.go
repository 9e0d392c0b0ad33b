package seeding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/apperror"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    State
		ev      Event
		want    State
		wantErr bool
	}{
		{StateNeverRun, EventRun, StateRan, false},
		{StateNeverRun, EventForceRun, StateRan, false},
		{StateNeverRun, EventLock, StateNeverRun, true},
		{StateRan, EventRun, StateRan, true},
		{StateRan, EventForceRun, StateRan, false},
		{StateRan, EventLock, StateLocked, false},
		{StateLocked, EventRun, StateLocked, true},
		{StateLocked, EventForceRun, StateLocked, true},
		{StateLocked, EventLock, StateLocked, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Next(tt.from, tt.ev)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperror.CodeInvalidTransition, apperror.CodeOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}
