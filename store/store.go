// Package store provides transactional persistence for Agreement and
// Proposal records.
package store

import (
	"time"

	"github.com/fluxmarket/core/agreement"
)

// AgreementStore is the persistence contract the engine and façade build
// on. All methods are safe for concurrent use; UpdateState is the sole
// conditional-write primitive the state machine relies on for
// serializability alongside the façade's per-id lock.
type AgreementStore interface {
	Save(a *agreement.Agreement) error
	Get(id agreement.AgreementID) (*agreement.Agreement, error)
	FindByProposal(id agreement.ProposalID) ([]*agreement.Agreement, error)
	ListExpiringBefore(ts time.Time) ([]*agreement.Agreement, error)

	// UpdateState performs a compare-and-set transition: current.State
	// must be a member of fromSet or ErrConcurrentModification is
	// returned. mutate is invoked with the current row so the caller can
	// apply additional field changes (approved_ts, termination_reason,
	// ...) atomically with the state change; it must not retain a or
	// mutate a.State or a.Version itself.
	UpdateState(id agreement.AgreementID, fromSet []agreement.State, to agreement.State, mutate func(a *agreement.Agreement)) (*agreement.Agreement, error)

	Close() error
}

// ProposalStore is the persistence contract for the negotiation chain.
type ProposalStore interface {
	Save(p *agreement.Proposal) error
	Get(id agreement.ProposalID) (*agreement.Proposal, error)
	// ExistsSuccessorOf reports whether any Proposal in the store has
	// PrevID == id, i.e. whether id has been countered and is no longer
	// the tail of its chain.
	ExistsSuccessorOf(id agreement.ProposalID) (bool, error)
	SetState(id agreement.ProposalID, state agreement.ProposalStatus) error

	Close() error
}
