package store

import (
	"encoding/json"
	"time"

	"github.com/fluxmarket/core/agreement"
	"github.com/google/uuid"
)

// agreementTOML is the on-disk shape of an Agreement. BurntSushi/toml
// cannot marshal agreement.AgreementID (a struct embedding uuid.UUID)
// directly as a map key, so the identity fields are flattened; if you add
// a field to Agreement, add it here and in agreementToTOML/agreementFromTOML too.
type agreementTOML struct {
	LogicalID         string
	Owner             uint8
	ProposalID        string
	RequestorIdentity string
	ProviderIdentity  string
	CreatedAt         time.Time
	ValidTo           time.Time
	State             uint8
	ApprovedAt        *time.Time
	TerminatedAt      *time.Time
	TerminationReason []byte
	SessionID         *string
	Version           uint64
}

func agreementToTOML(a *agreement.Agreement) agreementTOML {
	t := agreementTOML{
		LogicalID:         a.ID.Logical.String(),
		Owner:             uint8(a.ID.Owner),
		ProposalID:        a.ProposalID.String(),
		RequestorIdentity: a.RequestorIdentity,
		ProviderIdentity:  a.ProviderIdentity,
		CreatedAt:         a.CreatedAt,
		ValidTo:           a.ValidTo,
		State:             uint8(a.State),
		ApprovedAt:        a.ApprovedAt,
		TerminatedAt:      a.TerminatedAt,
		SessionID:         a.SessionID,
		Version:           a.Version,
	}
	if a.TerminationReason != nil {
		t.TerminationReason = a.TerminationReason.Raw
	}
	return t
}

func agreementFromTOML(t agreementTOML) (*agreement.Agreement, error) {
	logical, err := uuid.Parse(t.LogicalID)
	if err != nil {
		return nil, err
	}
	proposalUUID, err := uuid.Parse(t.ProposalID)
	if err != nil {
		return nil, err
	}

	a := &agreement.Agreement{
		ID:                agreement.AgreementID{Logical: logical, Owner: agreement.Owner(t.Owner)},
		ProposalID:        agreement.ProposalID(proposalUUID),
		RequestorIdentity: t.RequestorIdentity,
		ProviderIdentity:  t.ProviderIdentity,
		CreatedAt:         t.CreatedAt,
		ValidTo:           t.ValidTo,
		State:             agreement.State(t.State),
		ApprovedAt:        t.ApprovedAt,
		TerminatedAt:      t.TerminatedAt,
		SessionID:         t.SessionID,
		Version:           t.Version,
	}
	if len(t.TerminationReason) > 0 {
		reason, err := agreement.ParseTerminationReason(json.RawMessage(t.TerminationReason))
		if err != nil {
			return nil, err
		}
		a.TerminationReason = reason
	}
	return a, nil
}

type proposalTOML struct {
	ID        string
	PrevID    string
	Issuer    uint8
	State     uint8
	Body      []byte
	CreatedAt time.Time
}

func proposalToTOML(p *agreement.Proposal) proposalTOML {
	return proposalTOML{
		ID:        p.ID.String(),
		PrevID:    p.PrevID.String(),
		Issuer:    uint8(p.Issuer),
		State:     uint8(p.State),
		Body:      p.Body,
		CreatedAt: p.CreatedAt,
	}
}

func proposalFromTOML(t proposalTOML) (*agreement.Proposal, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return nil, err
	}
	prevID, err := uuid.Parse(t.PrevID)
	if err != nil {
		return nil, err
	}
	return &agreement.Proposal{
		ID:        agreement.ProposalID(id),
		PrevID:    agreement.ProposalID(prevID),
		Issuer:    agreement.Owner(t.Issuer),
		State:     agreement.ProposalStatus(t.State),
		Body:      t.Body,
		CreatedAt: t.CreatedAt,
	}, nil
}
