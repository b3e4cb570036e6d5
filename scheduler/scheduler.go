// Package scheduler is the clock and expiration timer wheel: it fires a
// callback once an agreement's valid_to deadline passes.
package scheduler

import (
	"container/heap"
	"time"

	"github.com/fluxmarket/core/agreement"
	clock "github.com/jonboulle/clockwork"
)

const registrationChanBacklog = 32

// Scheduler owns a single goroutine that sleeps until the soonest
// registered deadline, fires every agreement due at that instant, and
// resets its sleep for whatever is now soonest. Registration is idempotent
// per agreement id: registering again for the same id replaces the prior
// deadline rather than adding a second timer, mirroring the teacher
// ticker's single background loop fed by a registration channel.
type Scheduler struct {
	clock clock.Clock

	register chan registration
	cancel   chan agreement.AgreementID
	stop     chan struct{}
}

// FireFunc is invoked when an agreement's deadline passes. It must re-read
// the agreement's current state before transitioning it, since a fire may
// be stale (the agreement reached Approved or another terminal state
// before the timer fired).
type FireFunc func(id agreement.AgreementID)

type registration struct {
	id      agreement.AgreementID
	validTo time.Time
	fire    FireFunc
}

// New starts the scheduler's background goroutine and returns immediately.
func New(c clock.Clock) *Scheduler {
	s := &Scheduler{
		clock:    c,
		register: make(chan registration, registrationChanBacklog),
		cancel:   make(chan agreement.AgreementID, registrationChanBacklog),
		stop:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Register arranges for fire to be called at validTo. Re-registering the
// same id replaces its previous deadline and callback.
func (s *Scheduler) Register(id agreement.AgreementID, validTo time.Time, fire FireFunc) {
	s.register <- registration{id: id, validTo: validTo, fire: fire}
}

// Cancel removes id's pending deadline, if any. Best-effort: a fire
// already in flight is not interrupted.
func (s *Scheduler) Cancel(id agreement.AgreementID) {
	s.cancel <- id
}

// Stop terminates the background goroutine. Pending deadlines are
// discarded without firing.
func (s *Scheduler) Stop() {
	close(s.stop)
}

type deadlineItem struct {
	id      agreement.AgreementID
	validTo time.Time
	fire    FireFunc
	index   int
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].validTo.Before(h[j].validTo) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x interface{}) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func (s *Scheduler) run() {
	items := &deadlineHeap{}
	byID := map[agreement.AgreementID]*deadlineItem{}

	timer := s.clock.NewTimer(time.Hour)
	defer timer.Stop()

	resetTimer := func() {
		timer.Stop()
		if items.Len() == 0 {
			return
		}
		next := (*items)[0]
		d := next.validTo.Sub(s.clock.Now())
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		select {
		case reg := <-s.register:
			if existing, ok := byID[reg.id]; ok {
				heap.Remove(items, existing.index)
			}
			item := &deadlineItem{id: reg.id, validTo: reg.validTo, fire: reg.fire}
			heap.Push(items, item)
			byID[reg.id] = item
			resetTimer()

		case id := <-s.cancel:
			if existing, ok := byID[id]; ok {
				heap.Remove(items, existing.index)
				delete(byID, id)
				resetTimer()
			}

		case <-timer.Chan():
			now := s.clock.Now()
			for items.Len() > 0 && !(*items)[0].validTo.After(now) {
				due := heap.Pop(items).(*deadlineItem)
				delete(byID, due.id)
				due.fire(due.id)
			}
			resetTimer()

		case <-s.stop:
			return
		}
	}
}
