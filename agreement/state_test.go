package agreement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{"proposal to pending", StateProposal, StatePending, true},
		{"proposal to expired", StateProposal, StateExpired, true},
		{"proposal to cancelled", StateProposal, StateCancelled, true},
		{"proposal to approved is illegal", StateProposal, StateApproved, false},
		{"pending to approving", StatePending, StateApproving, true},
		{"pending to rejected", StatePending, StateRejected, true},
		{"approving to approved", StateApproving, StateApproved, true},
		{"approving rolls back to pending", StateApproving, StatePending, true},
		{"approved to terminated", StateApproved, StateTerminated, true},
		{"approved to cancelled is illegal", StateApproved, StateCancelled, false},
		{"terminal states have no successor", StateTerminated, StatePending, false},
		{"cancelled has no successor", StateCancelled, StateApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, isValidTransition(tt.from, tt.to))
		})
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateCancelled, StateRejected, StateExpired, StateTerminated}
	for _, s := range terminal {
		require.True(t, s.Terminal(), "%s should be terminal", s)
	}

	nonTerminal := []State{StateProposal, StatePending, StateApproving, StateApproved}
	for _, s := range nonTerminal {
		require.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestOwnerCounterpart(t *testing.T) {
	require.Equal(t, OwnerProvider, OwnerRequestor.Counterpart())
	require.Equal(t, OwnerRequestor, OwnerProvider.Counterpart())
}
