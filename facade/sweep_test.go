package facade_test

import (
	"context"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common/testlogger"
	"github.com/fluxmarket/core/facade"
	"github.com/fluxmarket/core/protocol"
	"github.com/fluxmarket/core/scheduler"
	"github.com/fluxmarket/core/store"
)

func newSweepFacade(t *testing.T) (*facade.Facade, *store.Store) {
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

func TestSweepExpiresStaleAgreements(t *testing.T) {
	f, s := newSweepFacade(t)

	past := time.Now().Add(-time.Hour)
	stale := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		CreatedAt:         past,
		ValidTo:           past.Add(time.Minute),
		State:             agreement.StatePending,
	}
	require.NoError(t, s.Agreements.Save(stale))

	fresh := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-2",
		ProviderIdentity:  "prov-2",
		CreatedAt:         time.Now(),
		ValidTo:           time.Now().Add(time.Hour),
		State:             agreement.StatePending,
	}
	require.NoError(t, s.Agreements.Save(fresh))

	count, err := f.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := s.Agreements.Get(stale.ID)
	require.NoError(t, err)
	require.Equal(t, agreement.StateExpired, got.State)

	untouched, err := s.Agreements.Get(fresh.ID)
	require.NoError(t, err)
	require.Equal(t, agreement.StatePending, untouched.State)
}

func TestSweepSkipsAlreadyTerminal(t *testing.T) {
	f, s := newSweepFacade(t)

	past := time.Now().Add(-time.Hour)
	done := &agreement.Agreement{
		ID:                agreement.NewAgreementID(agreement.OwnerRequestor),
		ProposalID:        agreement.NewProposalID(),
		RequestorIdentity: "req-1",
		ProviderIdentity:  "prov-1",
		CreatedAt:         past,
		ValidTo:           past.Add(time.Minute),
		State:             agreement.StateCancelled,
	}
	require.NoError(t, s.Agreements.Save(done))

	count, err := f.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
