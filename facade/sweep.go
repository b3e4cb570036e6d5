package facade

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/engine"
)

// sweepConcurrency bounds how many stale agreements a single Sweep call
// expires in parallel, so a large backlog after a long scheduler outage
// doesn't open thousands of concurrent bolt transactions at once.
const sweepConcurrency = 8

// Sweep is the scheduler's fallback: it re-reads every agreement expiring
// before cutoff and expires whichever ones the timer wheel missed, e.g.
// after a restart gap wider than ArmExpirations' lookahead, or a
// process pause long enough for registered timers to have been dropped.
// It's safe to call on a running Facade; onExpire's re-read guards against
// double-expiring a row a live timer already caught.
func (f *Facade) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	candidates, err := f.agreements.ListExpiringBefore(cutoff)
	if err != nil {
		return 0, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	expired := make(chan agreement.AgreementID, len(candidates))
	for _, a := range candidates {
		a := a
		if a.State.Terminal() || !a.IsExpired(cutoff) {
			continue
		}
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			before := f.expireOne(a.ID)
			if before {
				expired <- a.ID
			}
			return nil
		})
	}

	err = g.Wait()
	close(expired)
	count := 0
	for range expired {
		count++
	}
	return count, err
}

// expireOne runs the same locked expire path as the scheduler's fire
// callback, returning whether it actually transitioned the row.
func (f *Facade) expireOne(id agreement.AgreementID) bool {
	unlock := f.locks.lock(id)
	defer unlock()

	current, err := f.agreements.Get(id)
	if err != nil {
		return false
	}
	now := f.clock.Now()
	if current.State.Terminal() {
		return false
	}
	originalState := current.State
	if _, err := engine.Expire(current, now); err != nil {
		return false
	}
	if _, err := f.agreements.UpdateState(id, []agreement.State{originalState}, agreement.StateExpired, nil); err != nil {
		f.log.Errorw("sweep failed persisting expiry", "id", id, "err", err)
		return false
	}
	f.scheduler.Cancel(id)
	f.notifiers.notify(id)
	return true
}
