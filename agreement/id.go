package agreement

import "github.com/google/uuid"

// AgreementID is an opaque, owner-tagged reference to one logical
// agreement. Both sides of a negotiation share the same Logical value but
// persist and exchange their own owner-tagged view; translate never
// mutates the logical identity, only the tag under which it is read.
type AgreementID struct {
	Logical uuid.UUID
	Owner   Owner
}

// NewAgreementID allocates a fresh logical id tagged for owner.
func NewAgreementID(owner Owner) AgreementID {
	return AgreementID{Logical: uuid.New(), Owner: owner}
}

// Translate returns the counterpart's view of the same logical agreement.
func (id AgreementID) Translate(owner Owner) AgreementID {
	return AgreementID{Logical: id.Logical, Owner: owner}
}

func (id AgreementID) AsRequestor() AgreementID { return id.Translate(OwnerRequestor) }
func (id AgreementID) AsProvider() AgreementID  { return id.Translate(OwnerProvider) }

func (id AgreementID) String() string {
	return id.Logical.String() + "#" + id.Owner.String()
}

// ProposalID identifies a single step in a negotiation chain.
type ProposalID uuid.UUID

func NewProposalID() ProposalID { return ProposalID(uuid.New()) }

func (id ProposalID) String() string { return uuid.UUID(id).String() }

func (id ProposalID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
