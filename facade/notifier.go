package facade

import (
	"context"
	"sync"

	"github.com/fluxmarket/core/agreement"
)

// notifierSet hands out a broadcast channel per AgreementID that every
// caller waiting on that agreement's next state change can select on.
// Firing closes the current channel and installs a fresh one, so a waiter
// that wakes up, rereads the store, and finds its condition still unmet
// can simply re-subscribe and wait again.
type notifierSet struct {
	mu  sync.Mutex
	chs map[agreement.AgreementID]chan struct{}
}

func newNotifierSet() *notifierSet {
	return &notifierSet{chs: make(map[agreement.AgreementID]chan struct{})}
}

// subscribe returns a channel that closes the next time notify(id) is
// called.
func (n *notifierSet) subscribe(id agreement.AgreementID) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.chs[id]
	if !ok {
		ch = make(chan struct{})
		n.chs[id] = ch
	}
	return ch
}

// notify wakes every current subscriber of id.
func (n *notifierSet) notify(id agreement.AgreementID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.chs[id]; ok {
		close(ch)
	}
	delete(n.chs, id)
}

// waitUntil polls check after every notification on id (and once up
// front) until check reports done, ctx is cancelled, or check returns an
// error.
func waitUntil(ctx context.Context, n *notifierSet, id agreement.AgreementID, check func() (done bool, err error)) error {
	for {
		done, err := check()
		if err != nil || done {
			return err
		}
		select {
		case <-n.subscribe(id):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
