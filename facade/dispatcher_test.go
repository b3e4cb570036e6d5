package facade_test

import (
	"context"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common"
	"github.com/fluxmarket/core/common/testlogger"
	"github.com/fluxmarket/core/facade"
	"github.com/fluxmarket/core/protocol"
	"github.com/fluxmarket/core/scheduler"
	"github.com/fluxmarket/core/store"
)

func newDispatcherFacade(t *testing.T) (*facade.Facade, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir(), testlogger.New(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	sched := scheduler.New(clock.NewRealClock())
	t.Cleanup(sched.Stop)

	adapter := protocol.NewAdapter(testlogger.New(t), protocol.DefaultRetryPolicy())
	t.Cleanup(func() { _ = adapter.Close() })

	f := facade.New(s.Agreements, s.Proposals, sched, adapter, &staticResolver{addrs: map[string]string{}}, agreement.DefaultPolicy(), clock.NewRealClock(), testlogger.New(t))
	return f, s
}

func TestOnProposeCreatesProviderMirror(t *testing.T) {
	f, s := newDispatcherFacade(t)

	id := agreement.NewAgreementID(agreement.OwnerProvider)
	msg := &protocol.Propose{
		AgreementID:       id,
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		ValidTo:           time.Now().Add(time.Hour),
		SenderVersion:     common.GetAppVersion(),
	}

	require.NoError(t, f.OnPropose(context.Background(), msg))

	got, err := s.Agreements.Get(id)
	require.NoError(t, err)
	require.Equal(t, agreement.StatePending, got.State)
	require.Equal(t, "req-1", got.RequestorIdentity)
}

func TestOnProposeIsIdempotentOnRetransmission(t *testing.T) {
	f, s := newDispatcherFacade(t)

	id := agreement.NewAgreementID(agreement.OwnerProvider)
	msg := &protocol.Propose{
		AgreementID:       id,
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		ValidTo:           time.Now().Add(time.Hour),
		SenderVersion:     common.GetAppVersion(),
	}

	require.NoError(t, f.OnPropose(context.Background(), msg))
	require.NoError(t, f.OnPropose(context.Background(), msg))

	found, err := s.Agreements.FindByProposal(msg.ProposalID)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestOnApproveUnknownAgreementIsNotFound(t *testing.T) {
	f, _ := newDispatcherFacade(t)

	err := f.OnApprove(context.Background(), &protocol.Approve{AgreementID: agreement.NewAgreementID(agreement.OwnerRequestor)})
	var notFound *agreement.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestOnRejectRejectsPending(t *testing.T) {
	f, s := newDispatcherFacade(t)

	a := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		CreatedAt:         time.Now(),
		ValidTo:           time.Now().Add(time.Hour),
		State:             agreement.StatePending,
	}
	require.NoError(t, s.Agreements.Save(a))

	require.NoError(t, f.OnReject(context.Background(), &protocol.Reject{AgreementID: a.ID}))

	got, err := s.Agreements.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, agreement.StateRejected, got.State)
}

func TestOnCancelReconcilesRacingApproving(t *testing.T) {
	f, s := newDispatcherFacade(t)

	a := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerProvider),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		CreatedAt:         time.Now(),
		ValidTo:           time.Now().Add(time.Hour),
		State:             agreement.StateApproving,
	}
	require.NoError(t, s.Agreements.Save(a))

	require.NoError(t, f.OnCancel(context.Background(), &protocol.Cancel{AgreementID: a.ID}))

	got, err := s.Agreements.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, agreement.StateCancelled, got.State)
}

func TestOnCancelIsIdempotentOnceAlreadyTerminal(t *testing.T) {
	f, s := newDispatcherFacade(t)

	a := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerProvider),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		CreatedAt:         time.Now(),
		ValidTo:           time.Now().Add(time.Hour),
		State:             agreement.StateRejected,
	}
	require.NoError(t, s.Agreements.Save(a))

	require.NoError(t, f.OnCancel(context.Background(), &protocol.Cancel{AgreementID: a.ID}))

	got, err := s.Agreements.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, agreement.StateRejected, got.State)
}

func TestOnProposeRefusesIncompatibleVersion(t *testing.T) {
	f, s := newDispatcherFacade(t)

	id := agreement.NewAgreementID(agreement.OwnerProvider)
	msg := &protocol.Propose{
		AgreementID:       id,
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		ValidTo:           time.Now().Add(time.Hour),
		SenderVersion:     common.Version{Major: 99},
	}

	err := f.OnPropose(context.Background(), msg)
	require.IsType(t, &agreement.VersionMismatchError{}, err)

	_, err = s.Agreements.Get(id)
	require.IsType(t, &agreement.NotFoundError{}, err)
}

func TestOnTerminateRejectsBadReason(t *testing.T) {
	f, s := newDispatcherFacade(t)

	a := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		CreatedAt:         time.Now(),
		ValidTo:           time.Now().Add(time.Hour),
		State:             agreement.StateApproved,
	}
	require.NoError(t, s.Agreements.Save(a))

	err := f.OnTerminate(context.Background(), &protocol.Terminate{AgreementID: a.ID, Reason: []byte(`{}`)})
	require.IsType(t, &agreement.BadReasonError{}, err)
}
