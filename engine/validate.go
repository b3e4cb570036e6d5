package engine

import (
	"github.com/fluxmarket/core/agreement"
)

// ProposalChain is the subset of the proposal store the engine needs to
// validate a promotion.
type ProposalChain interface {
	// ExistsSuccessorOf reports whether anything has countered id.
	ExistsSuccessorOf(id agreement.ProposalID) (bool, error)
}

// AgreementLookup is the subset of the agreement store the engine needs to
// detect Agreements that already reference a Proposal.
type AgreementLookup interface {
	FindByProposal(id agreement.ProposalID) ([]*agreement.Agreement, error)
}

// ValidatePromotion enforces the preconditions for the Requestor promoting
// a Proposal into a new Agreement:
//
//   - the proposal must not be the Requestor's own (OwnProposalError)
//   - the proposal must not be an untouched Initial offer with no
//     counter-proposal from the Provider (NoNegotiationsError)
//   - the proposal must be the tail of its chain, i.e. nothing has
//     countered it since (ProposalCounteredError)
//   - no Agreement may already reference it (AlreadyExistsError); this
//     holds even if every such Agreement reached a terminal state, unless
//     policy.AllowRepromotionAfterTerminal is set
func ValidatePromotion(chain ProposalChain, agreements AgreementLookup, p *agreement.Proposal, requestor string, policy agreement.Policy) error {
	if p.Issuer == agreement.OwnerRequestor {
		return &agreement.OwnProposalError{ProposalID: p.ID}
	}

	if p.IsInitial() {
		return &agreement.NoNegotiationsError{ProposalID: p.ID}
	}

	hasSuccessor, err := chain.ExistsSuccessorOf(p.ID)
	if err != nil {
		return err
	}
	if hasSuccessor {
		return &agreement.ProposalCounteredError{ProposalID: p.ID}
	}

	existing, err := agreements.FindByProposal(p.ID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	if policy.AllowRepromotionAfterTerminal && allTerminal(existing) {
		return nil
	}

	return &agreement.AlreadyExistsError{ExistingID: existing[0].ID, ProposalID: p.ID}
}

func allTerminal(agreements []*agreement.Agreement) bool {
	for _, a := range agreements {
		if !a.State.Terminal() {
			return false
		}
	}
	return true
}
