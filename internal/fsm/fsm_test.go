package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceability-dashboard/internal/types"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to types.Status
		ok       bool
	}{
		{types.StatusPending, types.StatusOK, true},
		{types.StatusPending, types.StatusNG, true},
		{types.StatusNG, types.StatusOK, true},
		{types.StatusOK, types.StatusNG, true},
		{types.StatusOK, types.StatusOK, false},
		{types.StatusNG, types.StatusNG, false},
		{types.StatusOK, types.StatusPending, false},
		{"", types.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := Transition("42", tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestFSM_FireRunsCallback(t *testing.T) {
	f := NewFSM("7", types.StatusPending)
	var entered string
	f.RegisterCallback(types.StatusNG, func(id string) { entered = id })

	require.NoError(t, f.Fire(EventFail))
	assert.Equal(t, types.StatusNG, f.Current)
	assert.Equal(t, "7", entered)

	require.NoError(t, f.Fire(EventPass))
	assert.Equal(t, types.StatusOK, f.Current)

	assert.ErrorIs(t, f.Fire(EventPass), ErrInvalidTransition)
	assert.Equal(t, types.StatusOK, f.Current)
}
