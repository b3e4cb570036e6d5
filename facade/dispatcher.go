package facade

import (
	"context"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common"
	"github.com/fluxmarket/core/engine"
	"github.com/fluxmarket/core/protocol"
)

// Facade implements protocol.Dispatcher directly: inbound messages take the
// same lock, engine-transition, persist, notify path as outbound calls, the
// only difference being which side initiates.

// OnPropose materializes the Provider's mirror row the first time a Propose
// arrives. A retransmitted Propose for an id already on disk is treated as
// already applied and acknowledged without re-creating anything. A sender
// whose version isn't protocol-compatible with the local release is
// refused before anything is persisted.
func (f *Facade) OnPropose(ctx context.Context, msg *protocol.Propose) error {
	unlock := f.locks.lock(msg.AgreementID)
	defer unlock()

	if _, err := f.agreements.Get(msg.AgreementID); err == nil {
		return nil
	}

	local := common.GetAppVersion()
	if !msg.SenderVersion.IsCompatible(local) {
		return &agreement.VersionMismatchError{Local: local, Remote: msg.SenderVersion}
	}

	a := engine.ReceiveProposal(msg.AgreementID, msg.ProposalID, msg.RequestorIdentity, msg.ProviderIdentity, msg.ValidTo, f.clock.Now())
	if err := f.agreements.Save(a); err != nil {
		return err
	}
	f.scheduler.Register(a.ID, a.ValidTo, f.onExpire)
	f.notifiers.notify(a.ID)
	return nil
}

// OnApprove is the Requestor's side of receiving the Provider's approval:
// Pending moves straight to Approved.
func (f *Facade) OnApprove(ctx context.Context, msg *protocol.Approve) error {
	unlock := f.locks.lock(msg.AgreementID)
	defer unlock()

	current, err := f.agreements.Get(msg.AgreementID)
	if err != nil {
		return err
	}
	now := f.clock.Now()
	if _, err := engine.ConfirmApproval(current, now); err != nil {
		return err
	}
	if _, err := f.agreements.UpdateState(msg.AgreementID, []agreement.State{agreement.StatePending}, agreement.StateApproved, func(a *agreement.Agreement) {
		approvedAt := f.clock.Now()
		a.ApprovedAt = &approvedAt
		a.SessionID = msg.SessionID
	}); err != nil {
		return err
	}
	f.notifiers.notify(msg.AgreementID)
	return nil
}

// OnReject is the Requestor's side of receiving the Provider's decline. If
// this side has itself raced ahead to Approving (it approved locally just
// before the Provider's Reject arrived), the Reject reconciles by
// overriding that racing state instead of failing InvalidState: the first
// terminal outcome to arrive between the two peers wins.
func (f *Facade) OnReject(ctx context.Context, msg *protocol.Reject) error {
	unlock := f.locks.lock(msg.AgreementID)
	defer unlock()

	current, err := f.agreements.Get(msg.AgreementID)
	if err != nil {
		return err
	}
	originalState := current.State
	if _, err := engine.Reject(current); err != nil {
		reconciled, rerr := engine.ReconcileTerminal(current, agreement.StateRejected)
		if rerr != nil {
			return err
		}
		if reconciled.State == originalState {
			return nil
		}
	}
	if _, err := f.agreements.UpdateState(msg.AgreementID, []agreement.State{originalState}, agreement.StateRejected, nil); err != nil {
		return err
	}
	f.scheduler.Cancel(msg.AgreementID)
	f.notifiers.notify(msg.AgreementID)
	return nil
}

// OnCancel is the Provider's side of receiving the Requestor's withdrawal,
// with the same racing-Approving reconciliation as OnReject.
func (f *Facade) OnCancel(ctx context.Context, msg *protocol.Cancel) error {
	unlock := f.locks.lock(msg.AgreementID)
	defer unlock()

	current, err := f.agreements.Get(msg.AgreementID)
	if err != nil {
		return err
	}
	originalState := current.State
	if _, err := engine.Cancel(current); err != nil {
		reconciled, rerr := engine.ReconcileTerminal(current, agreement.StateCancelled)
		if rerr != nil {
			return err
		}
		if reconciled.State == originalState {
			return nil
		}
	}
	if _, err := f.agreements.UpdateState(msg.AgreementID, []agreement.State{originalState}, agreement.StateCancelled, nil); err != nil {
		return err
	}
	f.scheduler.Cancel(msg.AgreementID)
	f.notifiers.notify(msg.AgreementID)
	return nil
}

// OnTerminate is shared by both sides: whichever party didn't initiate the
// Terminate call applies the same transition on receipt, reconciling a
// racing Approving/Pending state the same way OnReject/OnCancel do.
func (f *Facade) OnTerminate(ctx context.Context, msg *protocol.Terminate) error {
	reason, err := agreement.ParseTerminationReason(msg.Reason)
	if err != nil {
		return &agreement.BadReasonError{Payload: msg.Reason}
	}

	unlock := f.locks.lock(msg.AgreementID)
	defer unlock()

	current, err := f.agreements.Get(msg.AgreementID)
	if err != nil {
		return err
	}
	now := f.clock.Now()
	originalState := current.State
	if _, err := engine.Terminate(current, reason, now); err != nil {
		reconciled, rerr := engine.ReconcileTerminal(current, agreement.StateTerminated)
		if rerr != nil {
			return err
		}
		if reconciled.State == originalState {
			return nil
		}
	}
	if _, err := f.agreements.UpdateState(msg.AgreementID, []agreement.State{originalState}, agreement.StateTerminated, func(a *agreement.Agreement) {
		terminatedAt := f.clock.Now()
		a.TerminatedAt = &terminatedAt
		a.TerminationReason = reason
	}); err != nil {
		return err
	}
	f.notifiers.notify(msg.AgreementID)
	return nil
}
