package agreement

import (
	"encoding/json"
	"time"
)

// Proposal is one immutable step in a negotiation chain. PrevID is the
// zero ProposalID for the chain's Initial entry.
type Proposal struct {
	ID        ProposalID
	PrevID    ProposalID
	Issuer    Owner
	State     ProposalStatus
	Body      json.RawMessage
	CreatedAt time.Time
}

// IsInitial reports whether p has no predecessor in its chain.
func (p *Proposal) IsInitial() bool { return p.PrevID.IsZero() }

// TerminationReason is the structured reason attached to a Terminate call.
// Raw holds the exact bytes received so unrecognised fields survive a
// round trip verbatim, per the wire format's "additional fields are
// preserved verbatim" requirement.
type TerminationReason struct {
	Message string
	Raw     json.RawMessage
}

// ParseTerminationReason validates that raw is a JSON object carrying a
// string "message" field, returning BadReason otherwise.
func ParseTerminationReason(raw json.RawMessage) (*TerminationReason, error) {
	var probe struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, ErrBadReason
	}
	if probe.Message == nil {
		return nil, ErrBadReason
	}
	return &TerminationReason{Message: *probe.Message, Raw: raw}, nil
}

// Agreement is the central entity: one side's durable view of a single
// two-party commitment over a promoted Proposal.
type Agreement struct {
	ID                AgreementID
	ProposalID        ProposalID
	RequestorIdentity string
	ProviderIdentity  string
	CreatedAt         time.Time
	ValidTo           time.Time
	State             State
	ApprovedAt        *time.Time
	TerminatedAt      *time.Time
	TerminationReason *TerminationReason
	SessionID         *string
	Version           uint64
}

// CounterpartIdentity returns the identity of the other negotiating party,
// from this side's point of view.
func (a *Agreement) CounterpartIdentity() string {
	if a.ID.Owner == OwnerRequestor {
		return a.ProviderIdentity
	}
	return a.RequestorIdentity
}

// IsExpired reports whether now has passed the agreement's deadline.
func (a *Agreement) IsExpired(now time.Time) bool {
	return !now.Before(a.ValidTo)
}
