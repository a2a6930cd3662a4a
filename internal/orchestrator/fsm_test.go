package orchestrator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachinePaths(t *testing.T) {
	tests := []struct {
		name    string
		pending bool
		events  []Event
		want    []State
	}{
		{
			name:    "structured verdict",
			pending: true,
			events:  []Event{EventVerdict},
			want:    []State{StateAwaitingConfirmation, StateResolved},
		},
		{
			name:    "inferred verdict",
			pending: false,
			events:  []Event{EventInferredVerdict},
			want:    []State{StateAwaitingDecision, StateResolved},
		},
		{
			name:    "reply",
			pending: false,
			events:  []Event{EventMessage, EventReply},
			want:    []State{StateAwaitingDecision, StateAwaitingDecision, StateResolved},
		},
		{
			name:    "action requested while another is pending",
			pending: true,
			events:  []Event{EventMessage, EventActionRequested},
			want:    []State{StateAwaitingConfirmation, StateAwaitingDecision, StateAwaitingConfirmation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(tt.pending)
			for _, ev := range tt.events {
				require.NoError(t, m.Fire(ev))
			}
			if diff := cmp.Diff(tt.want, m.Path()); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMachineRejectsInvalidEvents(t *testing.T) {
	m := NewMachine(false)
	assert.Error(t, m.Fire(EventVerdict))
	assert.Equal(t, StateAwaitingDecision, m.State())

	m = NewMachine(true)
	require.NoError(t, m.Fire(EventVerdict))
	assert.Error(t, m.Fire(EventReply), "resolved is terminal")
}

func TestClassify(t *testing.T) {
	never := func() bool { t.Fatal("inference must not run"); return false }
	yes := func() bool { return true }
	no := func() bool { return false }

	assert.Equal(t, EventVerdict, Classify(true, true, never))
	assert.Equal(t, EventMessage, Classify(true, false, never))
	assert.Equal(t, EventMessage, Classify(false, false, never))
	assert.Equal(t, EventInferredVerdict, Classify(false, true, yes))
	assert.Equal(t, EventMessage, Classify(false, true, no))
}
