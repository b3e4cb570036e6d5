// Package protocol implements the inter-peer wire protocol: the five
// message kinds of the two-party commit (Propose, Approve, Reject,
// Cancel, Terminate), their gRPC transport, and at-least-once delivery
// with idempotent retry.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common"
)

// Kind names one of the five wire message types, doubling as half of the
// (logical_id, message_kind) idempotency dedup key.
type Kind string

const (
	KindPropose   Kind = "Propose"
	KindApprove   Kind = "Approve"
	KindReject    Kind = "Reject"
	KindCancel    Kind = "Cancel"
	KindTerminate Kind = "Terminate"
)

// Propose carries the full frozen agreement body; all other message kinds
// reference an already-materialized agreement by id.
type Propose struct {
	AgreementID       agreement.AgreementID
	ProposalID        agreement.ProposalID
	RequestorIdentity string
	ProviderIdentity  string
	ValidTo           time.Time
	SessionID         *string
	SenderVersion     common.Version
}

// Approve notifies the Requestor that the Provider has locally approved.
type Approve struct {
	AgreementID agreement.AgreementID
	SessionID   *string
}

// Reject notifies the Requestor that the Provider declined a Pending
// agreement.
type Reject struct {
	AgreementID agreement.AgreementID
}

// Cancel notifies the Provider that the Requestor withdrew a Pending
// agreement.
type Cancel struct {
	AgreementID agreement.AgreementID
}

// Terminate notifies the peer that an Approved agreement has ended.
type Terminate struct {
	AgreementID agreement.AgreementID
	Reason      json.RawMessage
}

// ErrKind classifies a protocol-level error reply so the receiving side
// can map it back onto the agreement error taxonomy without inspecting
// message strings.
type ErrKind string

const (
	ErrKindNotFound        ErrKind = "NotFound"
	ErrKindInvalidState    ErrKind = "InvalidState"
	ErrKindCancelled       ErrKind = "Cancelled"
	ErrKindVersionMismatch ErrKind = "VersionMismatch"
	ErrKindInternal        ErrKind = "Internal"
)

// Ack is the successful reply to any of the five message kinds.
type Ack struct{}

// Err is the failure reply. InvalidStateSub is only meaningful when Kind
// is ErrKindInvalidState.
type Err struct {
	Kind            ErrKind
	InvalidStateSub agreement.StateSub
	Message         string
}

func (e *Err) Error() string { return string(e.Kind) + ": " + e.Message }
