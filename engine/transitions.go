// Package engine is the state machine engine: every function here takes an
// Agreement (or the inputs to create one) and returns either the next
// Agreement value or one of the agreement package's typed errors. Nothing
// in this package touches storage, the clock, or the network directly —
// callers (the façade) are responsible for persisting the result and
// sending whatever wire message a transition implies.
package engine

import (
	"time"

	"github.com/fluxmarket/core/agreement"
)

// CreateAgreement materializes a fresh Agreement in state Proposal from a
// Proposal that has already passed ValidatePromotion. The returned
// Agreement is owned by the Requestor; the Provider's mirror row is
// created separately by ReceiveProposal once the Propose message arrives.
func CreateAgreement(p *agreement.Proposal, requestorIdentity, providerIdentity string, validTo time.Time, now time.Time) *agreement.Agreement {
	return &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        p.ID,
		RequestorIdentity: requestorIdentity,
		ProviderIdentity:  providerIdentity,
		CreatedAt:         now,
		ValidTo:           validTo,
		State:             agreement.StateProposal,
	}
}

// ConfirmAgreement is the Requestor's explicit confirm step: it moves a
// freshly-created Agreement from Proposal to Pending. The caller sends the
// Propose wire message only after this succeeds and the new row is
// persisted (persist-then-send); a transport failure sending it is
// reported as ProtocolCreateError by the façade, not by this function. An
// Agreement whose valid_to has already passed reports
// InvalidState(Expired) rather than ExpiredError, which is reserved for
// wait_for_approval.
func ConfirmAgreement(a *agreement.Agreement, now time.Time) (*agreement.Agreement, error) {
	if a.IsExpired(now) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: agreement.SubExpired}
	}
	if !agreement.CanTransition(a.State, agreement.StatePending) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StatePending
	return a, nil
}

// ReceiveProposal builds the Provider's mirror row directly in Pending
// when a Propose message arrives: the Provider never sees the Proposal
// state, since by the time it learns of the Agreement the Requestor has
// already confirmed it.
func ReceiveProposal(id agreement.AgreementID, proposalID agreement.ProposalID, requestorIdentity, providerIdentity string, validTo, now time.Time) *agreement.Agreement {
	return &agreement.Agreement{
		ID:                id,
		ProposalID:        proposalID,
		RequestorIdentity: requestorIdentity,
		ProviderIdentity:  providerIdentity,
		CreatedAt:         now,
		ValidTo:           validTo,
		State:             agreement.StatePending,
	}
}

// Approve is the Provider's local half of approval: Pending moves to
// Approving while the Approve message is in flight. The façade moves the
// row on to Approved once the send succeeds, or rolls it back to Pending
// for retry when the send fails (ProtocolApproveError). An
// Agreement whose valid_to has already passed reports
// InvalidState(Expired) rather than ExpiredError, which is reserved for
// wait_for_approval.
func Approve(a *agreement.Agreement, now time.Time) (*agreement.Agreement, error) {
	if a.IsExpired(now) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: agreement.SubExpired}
	}
	if !agreement.CanTransition(a.State, agreement.StateApproving) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StateApproving
	return a, nil
}

// ConfirmApproval moves an Agreement to Approved from Pending or Approving.
// The façade calls it on the Requestor side, directly from Pending, on
// receiving the Provider's Approve message; the Provider's own
// Approving -> Approved step is written by the façade through the store
// without calling this function.
func ConfirmApproval(a *agreement.Agreement, now time.Time) (*agreement.Agreement, error) {
	if !agreement.CanTransition(a.State, agreement.StateApproved) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StateApproved
	a.ApprovedAt = &now
	return a, nil
}

// Reject moves a Pending Agreement to Rejected. Only the Provider rejects;
// the Requestor's equivalent withdrawal is Cancel.
func Reject(a *agreement.Agreement) (*agreement.Agreement, error) {
	if !agreement.CanTransition(a.State, agreement.StateRejected) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StateRejected
	return a, nil
}

// Cancel moves a Pending Agreement to Cancelled. Only the Requestor
// cancels, and only before the Provider has approved.
func Cancel(a *agreement.Agreement) (*agreement.Agreement, error) {
	if !agreement.CanTransition(a.State, agreement.StateCancelled) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StateCancelled
	return a, nil
}

// Terminate moves an Approved Agreement to Terminated, recording reason.
// Either party may terminate.
func Terminate(a *agreement.Agreement, reason *agreement.TerminationReason, now time.Time) (*agreement.Agreement, error) {
	if !agreement.CanTransition(a.State, agreement.StateTerminated) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StateTerminated
	a.TerminatedAt = &now
	a.TerminationReason = reason
	return a, nil
}

// Expire moves a non-terminal Agreement to Expired. Called by the
// scheduler's fire callback; the caller must re-check IsExpired against
// the freshly-read row first, since the fire may be stale.
func Expire(a *agreement.Agreement, now time.Time) (*agreement.Agreement, error) {
	if !agreement.CanTransition(a.State, agreement.StateExpired) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	if !a.IsExpired(now) {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: a.State.Sub()}
	}
	a.State = agreement.StateExpired
	return a, nil
}

// ReconcileTerminal applies a terminal outcome announced by the peer's
// Cancel/Reject/Terminate message, overriding whatever non-terminal state
// this side has locally raced ahead to (e.g. Approving, if this side
// approved moments before the peer's Cancel arrived) -- the first terminal
// outcome to arrive wins. A side that has already reached a terminal state
// is left untouched, since a terminal state has no successor. Callers
// invoke this only after the ordinary transition (Cancel/Reject/Terminate)
// has already failed, so the normal, non-racing path never pays for it.
func ReconcileTerminal(a *agreement.Agreement, outcome agreement.State) (*agreement.Agreement, error) {
	if !outcome.Terminal() {
		return nil, &agreement.InvalidStateError{ID: a.ID, Sub: outcome.Sub()}
	}
	if a.State.Terminal() {
		return a, nil
	}
	a.State = outcome
	return a, nil
}

// CheckWaitPrecondition reports why a wait_for_approval-style blocking
// call cannot yet be satisfied: NotConfirmedError while still in Proposal
// (the Requestor hasn't confirmed yet), ExpiredError once valid_to has
// passed on a row that is neither Approved nor terminal. A nil return
// means the caller should proceed to wait/poll the agreement's notifier.
func CheckWaitPrecondition(a *agreement.Agreement, now time.Time) error {
	if a.State == agreement.StateProposal {
		return &agreement.NotConfirmedError{ID: a.ID}
	}
	if a.IsExpired(now) && !a.State.Terminal() && a.State != agreement.StateApproved {
		return &agreement.ExpiredError{ID: a.ID}
	}
	return nil
}
