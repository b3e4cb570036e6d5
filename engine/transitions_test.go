package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxmarket/core/agreement"
)

func newProposal(issuer agreement.Owner, prev agreement.ProposalID) *agreement.Proposal {
	return &agreement.Proposal{
		ID:        agreement.NewProposalID(),
		PrevID:    prev,
		Issuer:    issuer,
		State:     agreement.ProposalDraft,
		CreatedAt: time.Now(),
	}
}

func TestCreateAndConfirmAgreement(t *testing.T) {
	now := time.Now()
	p := newProposal(agreement.OwnerProvider, agreement.NewProposalID())

	a := CreateAgreement(p, "req-1", "prov-1", now.Add(time.Hour), now)
	require.Equal(t, agreement.StateProposal, a.State)

	confirmed, err := ConfirmAgreement(a, now)
	require.NoError(t, err)
	require.Equal(t, agreement.StatePending, confirmed.State)
}

func TestConfirmAgreementRejectsExpired(t *testing.T) {
	now := time.Now()
	p := newProposal(agreement.OwnerProvider, agreement.NewProposalID())
	a := CreateAgreement(p, "req-1", "prov-1", now.Add(-time.Minute), now)

	_, err := ConfirmAgreement(a, now)
	require.Error(t, err)
	sub, ok := agreement.AsInvalidState(err)
	require.True(t, ok)
	require.Equal(t, agreement.SubExpired, sub)
}

func TestApprovalFlow(t *testing.T) {
	now := time.Now()
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StatePending, ValidTo: now.Add(time.Hour)}

	approving, err := Approve(a, now)
	require.NoError(t, err)
	require.Equal(t, agreement.StateApproving, approving.State)

	approved, err := ConfirmApproval(approving, now)
	require.NoError(t, err)
	require.Equal(t, agreement.StateApproved, approved.State)
	require.NotNil(t, approved.ApprovedAt)
}

func TestApproveTwiceFails(t *testing.T) {
	now := time.Now()
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StateApproved, ValidTo: now.Add(time.Hour)}

	_, err := Approve(a, now)
	require.Error(t, err)
	sub, ok := agreement.AsInvalidState(err)
	require.True(t, ok)
	require.Equal(t, agreement.SubApproved, sub)
}

func TestApproveRejectsExpired(t *testing.T) {
	now := time.Now()
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StatePending, ValidTo: now.Add(-time.Minute)}

	_, err := Approve(a, now)
	require.Error(t, err)
	sub, ok := agreement.AsInvalidState(err)
	require.True(t, ok)
	require.Equal(t, agreement.SubExpired, sub)
}

func TestRejectRequiresPending(t *testing.T) {
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StateProposal}
	_, err := Reject(a)
	require.Error(t, err)

	a.State = agreement.StatePending
	rejected, err := Reject(a)
	require.NoError(t, err)
	require.Equal(t, agreement.StateRejected, rejected.State)
}

func TestCancelAllowedBeforeApproval(t *testing.T) {
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StatePending}
	cancelled, err := Cancel(a)
	require.NoError(t, err)
	require.Equal(t, agreement.StateCancelled, cancelled.State)

	a2 := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StateApproved}
	_, err = Cancel(a2)
	require.Error(t, err)
}

func TestTerminateRequiresApproved(t *testing.T) {
	now := time.Now()
	reason := &agreement.TerminationReason{Message: "done"}

	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StatePending}
	_, err := Terminate(a, reason, now)
	require.Error(t, err)

	a.State = agreement.StateApproved
	terminated, err := Terminate(a, reason, now)
	require.NoError(t, err)
	require.Equal(t, agreement.StateTerminated, terminated.State)
	require.Equal(t, reason, terminated.TerminationReason)
}

func TestExpireRequiresPastDeadline(t *testing.T) {
	now := time.Now()
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StatePending, ValidTo: now.Add(time.Hour)}
	_, err := Expire(a, now)
	require.Error(t, err)

	a.ValidTo = now.Add(-time.Minute)
	expired, err := Expire(a, now)
	require.NoError(t, err)
	require.Equal(t, agreement.StateExpired, expired.State)
}

func TestExpireRejectsApproved(t *testing.T) {
	now := time.Now()
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StateApproved, ValidTo: now.Add(-time.Minute)}
	_, err := Expire(a, now)
	require.Error(t, err)
	require.IsType(t, &agreement.InvalidStateError{}, err)
}

func TestCheckWaitPrecondition(t *testing.T) {
	now := time.Now()

	proposalState := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StateProposal, ValidTo: now.Add(time.Hour)}
	require.IsType(t, &agreement.NotConfirmedError{}, CheckWaitPrecondition(proposalState, now))

	expiredState := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StatePending, ValidTo: now.Add(-time.Minute)}
	require.IsType(t, &agreement.ExpiredError{}, CheckWaitPrecondition(expiredState, now))

	okState := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerRequestor), State: agreement.StatePending, ValidTo: now.Add(time.Hour)}
	require.NoError(t, CheckWaitPrecondition(okState, now))
}

func TestReconcileTerminalOverridesRacingState(t *testing.T) {
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StateApproving}

	reconciled, err := ReconcileTerminal(a, agreement.StateCancelled)
	require.NoError(t, err)
	require.Equal(t, agreement.StateCancelled, reconciled.State)
}

func TestReconcileTerminalLeavesExistingTerminalUntouched(t *testing.T) {
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StateRejected}

	reconciled, err := ReconcileTerminal(a, agreement.StateCancelled)
	require.NoError(t, err)
	require.Equal(t, agreement.StateRejected, reconciled.State)
}

func TestReconcileTerminalRejectsNonTerminalOutcome(t *testing.T) {
	a := &agreement.Agreement{ID: agreement.NewAgreementID(agreement.OwnerProvider), State: agreement.StateApproving}

	_, err := ReconcileTerminal(a, agreement.StatePending)
	require.Error(t, err)
}
