package agreement

import (
	"errors"
	"fmt"

	"github.com/fluxmarket/core/common"
)

// ErrBadReason is returned when a termination reason does not parse as a
// JSON object with a string "message" field.
var ErrBadReason = errors.New("termination reason must be a JSON object with a message field")

// NotFoundError is returned when an operation targets an unknown
// AgreementID.
type NotFoundError struct{ ID AgreementID }

func (e *NotFoundError) Error() string { return fmt.Sprintf("agreement %s: not found", e.ID) }

// AlreadyExistsError is returned by create when an Agreement already
// references the target Proposal.
type AlreadyExistsError struct {
	ExistingID AgreementID
	ProposalID ProposalID
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("proposal %s: agreement %s already exists", e.ProposalID, e.ExistingID)
}

// OwnProposalError is returned when the Requestor tries to promote a
// Proposal it issued itself.
type OwnProposalError struct{ ProposalID ProposalID }

func (e *OwnProposalError) Error() string {
	return fmt.Sprintf("proposal %s: cannot promote own proposal", e.ProposalID)
}

// NoNegotiationsError is returned when the Requestor tries to promote an
// Initial Proposal with no prior counter-offer.
type NoNegotiationsError struct{ ProposalID ProposalID }

func (e *NoNegotiationsError) Error() string {
	return fmt.Sprintf("proposal %s: no negotiations have taken place", e.ProposalID)
}

// ProposalCounteredError is returned when the Requestor tries to promote a
// Proposal that is not the tail of its chain.
type ProposalCounteredError struct{ ProposalID ProposalID }

func (e *ProposalCounteredError) Error() string {
	return fmt.Sprintf("proposal %s: has already been countered", e.ProposalID)
}

// InvalidStateError is returned when an operation's state precondition is
// not met. Sub names the taxonomy-level state that actually held -- never
// the raw internal State, since Pending/Approving aren't wire-visible
// names (see State.Sub).
type InvalidStateError struct {
	ID  AgreementID
	Sub StateSub
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("agreement %s: invalid state %s", e.ID, e.Sub)
}

// ExpiredError is returned only by wait_for_approval when valid_to has
// passed while blocked on a confirmed but not-yet-approved (Pending or
// Approving) agreement. A transition precondition rejecting a call against an expired
// agreement instead reports InvalidStateError{Sub: SubExpired}, since from
// the taxonomy's perspective that's an ordinary state conflict, not the
// distinct "caller is waiting on a deadline that passed" outcome.
type ExpiredError struct{ ID AgreementID }

func (e *ExpiredError) Error() string { return fmt.Sprintf("agreement %s: expired", e.ID) }

// VersionMismatchError is returned when an incoming Propose's sender
// version is not protocol-compatible with the local release.
type VersionMismatchError struct {
	Local, Remote common.Version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("incompatible peer version: local %s, remote %s", e.Local, e.Remote)
}

// NotConfirmedError is returned by wait_for_approval when the agreement is
// still in state Proposal.
type NotConfirmedError struct{ ID AgreementID }

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("agreement %s: not confirmed yet", e.ID)
}

// ProtocolCreateError wraps a transport failure sending Propose.
type ProtocolCreateError struct{ Cause error }

func (e *ProtocolCreateError) Error() string { return fmt.Sprintf("sending propose: %v", e.Cause) }
func (e *ProtocolCreateError) Unwrap() error { return e.Cause }

// ProtocolApproveError wraps a transport failure sending Approve.
type ProtocolApproveError struct{ Cause error }

func (e *ProtocolApproveError) Error() string { return fmt.Sprintf("sending approve: %v", e.Cause) }
func (e *ProtocolApproveError) Unwrap() error { return e.Cause }

// BadReasonError wraps ErrBadReason with the offending payload for callers
// that want to log it.
type BadReasonError struct{ Payload []byte }

func (e *BadReasonError) Error() string { return ErrBadReason.Error() }
func (e *BadReasonError) Unwrap() error { return ErrBadReason }

// AsInvalidState reports whether err is an InvalidStateError and returns
// its sub-state.
func AsInvalidState(err error) (StateSub, bool) {
	var ise *InvalidStateError
	if errors.As(err, &ise) {
		return ise.Sub, true
	}
	return 0, false
}
