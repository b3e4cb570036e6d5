// Package facade is the engine façade: the single entrypoint a caller
// (the control surface, or a test) uses to drive an Agreement through its
// lifecycle. It serializes operations per agreement, persists every
// transition before sending the wire message that announces it, wakes
// blocked waiters, and re-arms the expiration scheduler.
package facade

import (
	"context"
	"time"

	clock "github.com/jonboulle/clockwork"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common"
	fluxlog "github.com/fluxmarket/core/common/log"
	"github.com/fluxmarket/core/engine"
	"github.com/fluxmarket/core/protocol"
	"github.com/fluxmarket/core/scheduler"
	"github.com/fluxmarket/core/store"
	"github.com/fluxmarket/core/telemetry"
)

// PeerResolver maps a counterpart identity to a dialable Peer.
type PeerResolver interface {
	Resolve(identity string) (protocol.Peer, error)
}

// Facade wires the store, engine, scheduler, and protocol adapter into a
// single coherent lifecycle API.
type Facade struct {
	agreements store.AgreementStore
	proposals  store.ProposalStore
	scheduler  *scheduler.Scheduler
	adapter    *protocol.Adapter
	peers      PeerResolver
	policy     agreement.Policy
	clock      clock.Clock
	log        fluxlog.Logger

	locks     *keyedMutex
	notifiers *notifierSet
}

// New builds a Facade. It does not touch the scheduler; call
// ArmExpirations afterwards so a restart doesn't lose pending expirations.
func New(
	agreements store.AgreementStore,
	proposals store.ProposalStore,
	sched *scheduler.Scheduler,
	adapter *protocol.Adapter,
	peers PeerResolver,
	policy agreement.Policy,
	c clock.Clock,
	l fluxlog.Logger,
) *Facade {
	f := &Facade{
		agreements: agreements,
		proposals:  proposals,
		scheduler:  sched,
		adapter:    adapter,
		peers:      peers,
		policy:     policy,
		clock:      c,
		log:        l,
		locks:      newKeyedMutex(),
		notifiers:  newNotifierSet(),
	}
	return f
}

// ArmExpirations schedules a fire for every agreement ListExpiringBefore
// a far-future cutoff reports as not yet expired, recovering scheduler
// state after a restart.
func (f *Facade) ArmExpirations(farFuture time.Time) error {
	pending, err := f.agreements.ListExpiringBefore(farFuture)
	if err != nil {
		return err
	}
	for _, a := range pending {
		if a.State.Terminal() {
			continue
		}
		f.scheduler.Register(a.ID, a.ValidTo, f.onExpire)
	}
	return nil
}

// onExpire is the scheduler's fire callback. A fire can be stale -- the
// agreement may have moved on (e.g. to Approved) before the timer went off
// -- so expireOne re-reads the row and re-validates before touching it.
func (f *Facade) onExpire(id agreement.AgreementID) {
	f.expireOne(id)
}

// CreateAgreement validates and promotes proposalID into a fresh Agreement
// owned by the Requestor, in state Proposal.
func (f *Facade) CreateAgreement(proposalID agreement.ProposalID, requestorIdentity, providerIdentity string, validTo time.Time) (_ *agreement.Agreement, err error) {
	defer func() { telemetry.ObserveTransition("CreateAgreement", err) }()

	p, err := f.proposals.Get(proposalID)
	if err != nil {
		return nil, err
	}

	if err := engine.ValidatePromotion(f.proposals, f.agreements, p, requestorIdentity, f.policy); err != nil {
		return nil, err
	}

	now := f.clock.Now()
	a := engine.CreateAgreement(p, requestorIdentity, providerIdentity, validTo, now)
	if err := f.agreements.Save(a); err != nil {
		return nil, err
	}
	f.scheduler.Register(a.ID, a.ValidTo, f.onExpire)
	return a, nil
}

// ConfirmAgreement is the Requestor's explicit confirm step: Proposal moves
// to Pending, is persisted, and only then is the Propose message sent to
// the Provider (persist-then-send). A transport failure rolls the row
// back to Proposal so the call is retriable.
func (f *Facade) ConfirmAgreement(ctx context.Context, id agreement.AgreementID, proposalID agreement.ProposalID, sessionID *string) (err error) {
	defer func() { telemetry.ObserveTransition("ConfirmAgreement", err) }()

	unlock := f.locks.lock(id)
	defer unlock()

	current, err := f.agreements.Get(id)
	if err != nil {
		return err
	}
	now := f.clock.Now()
	if _, err := engine.ConfirmAgreement(current, now); err != nil {
		return err
	}
	updated, err := f.agreements.UpdateState(id, []agreement.State{agreement.StateProposal}, agreement.StatePending, nil)
	if err != nil {
		return err
	}
	f.notifiers.notify(id)

	peer, err := f.peers.Resolve(updated.ProviderIdentity)
	if err != nil {
		f.rollbackConfirm(id)
		return &agreement.ProtocolCreateError{Cause: err}
	}
	msg := &protocol.Propose{
		AgreementID:       updated.ID.AsProvider(),
		ProposalID:        proposalID,
		RequestorIdentity: updated.RequestorIdentity,
		ProviderIdentity:  updated.ProviderIdentity,
		ValidTo:           updated.ValidTo,
		SessionID:         sessionID,
		SenderVersion:     common.GetAppVersion(),
	}
	if err := f.adapter.SendPropose(ctx, peer, msg); err != nil {
		f.rollbackConfirm(id)
		return err
	}
	return nil
}

// rollbackConfirm reverts a tentative Pending back to Proposal after a
// failed Propose send, leaving the row consumable for a retried confirm.
func (f *Facade) rollbackConfirm(id agreement.AgreementID) {
	if _, err := f.agreements.UpdateState(id, []agreement.State{agreement.StatePending}, agreement.StateProposal, nil); err != nil {
		f.log.Errorw("rolling back failed confirm", "id", id, "err", err)
		return
	}
	f.notifiers.notify(id)
}

// ApproveAgreement is the Provider's approval: Pending moves to Approving,
// the Approve message is sent, and on success the row is confirmed to
// Approved. A transport failure rolls the row back to Pending so the call
// is retriable, and is reported as ProtocolApproveError.
func (f *Facade) ApproveAgreement(ctx context.Context, id agreement.AgreementID, sessionID *string) (err error) {
	defer func() { telemetry.ObserveTransition("ApproveAgreement", err) }()

	unlock := f.locks.lock(id)
	defer unlock()

	current, err := f.agreements.Get(id)
	if err != nil {
		return err
	}
	now := f.clock.Now()
	if _, err := engine.Approve(current, now); err != nil {
		return err
	}
	updated, err := f.agreements.UpdateState(id, []agreement.State{agreement.StatePending}, agreement.StateApproving, nil)
	if err != nil {
		return err
	}

	peer, err := f.peers.Resolve(updated.CounterpartIdentity())
	if err != nil {
		f.rollbackApprove(id)
		return &agreement.ProtocolApproveError{Cause: err}
	}
	msg := &protocol.Approve{AgreementID: updated.ID.Translate(updated.ID.Owner.Counterpart()), SessionID: sessionID}
	if err := f.adapter.SendApprove(ctx, peer, msg); err != nil {
		f.rollbackApprove(id)
		return err
	}

	if _, err := f.agreements.UpdateState(id, []agreement.State{agreement.StateApproving}, agreement.StateApproved, func(a *agreement.Agreement) {
		approvedAt := f.clock.Now()
		a.ApprovedAt = &approvedAt
		a.SessionID = sessionID
	}); err != nil {
		return err
	}
	f.notifiers.notify(id)
	return nil
}

// rollbackApprove reverts a tentative Approving back to Pending after a
// failed Approve send, leaving the row consumable for a retried approve.
func (f *Facade) rollbackApprove(id agreement.AgreementID) {
	if _, err := f.agreements.UpdateState(id, []agreement.State{agreement.StateApproving}, agreement.StatePending, nil); err != nil {
		f.log.Errorw("rolling back failed approve", "id", id, "err", err)
		return
	}
	f.notifiers.notify(id)
}

// RejectAgreement is the Provider's decline of a Pending agreement.
func (f *Facade) RejectAgreement(ctx context.Context, id agreement.AgreementID) (err error) {
	defer func() { telemetry.ObserveTransition("RejectAgreement", err) }()

	unlock := f.locks.lock(id)
	defer unlock()

	current, err := f.agreements.Get(id)
	if err != nil {
		return err
	}
	if _, err := engine.Reject(current); err != nil {
		return err
	}
	updated, err := f.agreements.UpdateState(id, []agreement.State{agreement.StatePending}, agreement.StateRejected, nil)
	if err != nil {
		return err
	}
	f.scheduler.Cancel(id)
	f.notifiers.notify(id)

	peer, err := f.peers.Resolve(updated.CounterpartIdentity())
	if err != nil {
		return err
	}
	return f.adapter.SendReject(ctx, peer, &protocol.Reject{AgreementID: updated.ID.Translate(updated.ID.Owner.Counterpart())})
}

// CancelAgreement is the Requestor's withdrawal of a not-yet-approved
// agreement.
func (f *Facade) CancelAgreement(ctx context.Context, id agreement.AgreementID) (err error) {
	defer func() { telemetry.ObserveTransition("CancelAgreement", err) }()

	unlock := f.locks.lock(id)
	defer unlock()

	current, err := f.agreements.Get(id)
	if err != nil {
		return err
	}
	originalState := current.State
	if _, err := engine.Cancel(current); err != nil {
		return err
	}
	updated, err := f.agreements.UpdateState(id, []agreement.State{originalState}, agreement.StateCancelled, nil)
	if err != nil {
		return err
	}
	f.scheduler.Cancel(id)
	f.notifiers.notify(id)

	peer, err := f.peers.Resolve(updated.CounterpartIdentity())
	if err != nil {
		return err
	}
	return f.adapter.SendCancel(ctx, peer, &protocol.Cancel{AgreementID: updated.ID.Translate(updated.ID.Owner.Counterpart())})
}

// TerminateAgreement ends an Approved agreement. Either party may call it.
func (f *Facade) TerminateAgreement(ctx context.Context, id agreement.AgreementID, reasonPayload []byte) (err error) {
	defer func() { telemetry.ObserveTransition("TerminateAgreement", err) }()

	reason, err := agreement.ParseTerminationReason(reasonPayload)
	if err != nil {
		return &agreement.BadReasonError{Payload: reasonPayload}
	}

	unlock := f.locks.lock(id)
	defer unlock()

	current, err := f.agreements.Get(id)
	if err != nil {
		return err
	}
	now := f.clock.Now()
	if _, err := engine.Terminate(current, reason, now); err != nil {
		return err
	}
	updated, err := f.agreements.UpdateState(id, []agreement.State{agreement.StateApproved}, agreement.StateTerminated, func(a *agreement.Agreement) {
		terminatedAt := f.clock.Now()
		a.TerminatedAt = &terminatedAt
		a.TerminationReason = reason
	})
	if err != nil {
		return err
	}
	f.notifiers.notify(id)

	peer, err := f.peers.Resolve(updated.CounterpartIdentity())
	if err != nil {
		return err
	}
	return f.adapter.SendTerminate(ctx, peer, &protocol.Terminate{
		AgreementID: updated.ID.Translate(updated.ID.Owner.Counterpart()),
		Reason:      reasonPayload,
	})
}

// WaitForApproval blocks until id leaves Pending/Approving, ctx is
// cancelled, or the agreement turns out to not yet be confirmed or to
// already be expired.
func (f *Facade) WaitForApproval(ctx context.Context, id agreement.AgreementID) (*agreement.Agreement, error) {
	telemetry.ActiveWaiters.Inc()
	defer telemetry.ActiveWaiters.Dec()

	var result *agreement.Agreement
	err := waitUntil(ctx, f.notifiers, id, func() (bool, error) {
		a, err := f.agreements.Get(id)
		if err != nil {
			return false, err
		}
		if err := engine.CheckWaitPrecondition(a, f.clock.Now()); err != nil {
			return false, err
		}
		if a.State == agreement.StateApproved || a.State.Terminal() {
			result = a
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
