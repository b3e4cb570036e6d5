package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/fluxmarket/core/agreement"
	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestFiresOnDeadline(t *testing.T) {
	fake := clock.NewFakeClock()
	s := New(fake)
	t.Cleanup(s.Stop)

	id := agreement.NewAgreementID(agreement.OwnerRequestor)
	fired := make(chan agreement.AgreementID, 1)

	s.Register(id, fake.Now().Add(time.Minute), func(fid agreement.AgreementID) {
		fired <- fid
	})

	fake.BlockUntil(1)
	fake.Advance(2 * time.Minute)

	select {
	case got := <-fired:
		require.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestReregisterReplacesDeadline(t *testing.T) {
	fake := clock.NewFakeClock()
	s := New(fake)
	t.Cleanup(s.Stop)

	id := agreement.NewAgreementID(agreement.OwnerRequestor)
	var mu sync.Mutex
	fireCount := 0

	s.Register(id, fake.Now().Add(time.Minute), func(agreement.AgreementID) {
		mu.Lock()
		fireCount++
		mu.Unlock()
	})
	fake.BlockUntil(1)

	// Re-registering with a later deadline should replace, not duplicate.
	s.Register(id, fake.Now().Add(time.Hour), func(agreement.AgreementID) {
		mu.Lock()
		fireCount++
		mu.Unlock()
	})
	fake.BlockUntil(1)

	fake.Advance(2 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 0, fireCount)
	mu.Unlock()

	fake.Advance(2 * time.Hour)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fireCount == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCancelPreventsFire(t *testing.T) {
	fake := clock.NewFakeClock()
	s := New(fake)
	t.Cleanup(s.Stop)

	id := agreement.NewAgreementID(agreement.OwnerRequestor)
	fired := make(chan struct{}, 1)
	s.Register(id, fake.Now().Add(time.Minute), func(agreement.AgreementID) {
		fired <- struct{}{}
	})
	fake.BlockUntil(1)

	s.Cancel(id)
	fake.Advance(2 * time.Minute)

	select {
	case <-fired:
		t.Fatal("cancelled agreement should not fire")
	case <-time.After(100 * time.Millisecond):
	}
}
