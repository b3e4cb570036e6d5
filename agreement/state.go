package agreement

// State is the lifecycle status of an Agreement, as seen by one side of
// the negotiation. The Requestor and Provider each keep their own row, so
// the two sides' State values for one logical agreement may briefly
// disagree across an unreliable link (see engine.ReconcileTerminal).
type State uint8

const (
	StateProposal State = iota
	StatePending
	StateApproving
	StateApproved
	StateCancelled
	StateRejected
	StateExpired
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateProposal:
		return "Proposal"
	case StatePending:
		return "Pending"
	case StateApproving:
		return "Approving"
	case StateApproved:
		return "Approved"
	case StateCancelled:
		return "Cancelled"
	case StateRejected:
		return "Rejected"
	case StateExpired:
		return "Expired"
	case StateTerminated:
		return "Terminated"
	default:
		panic("impossible agreement state received")
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateRejected, StateExpired, StateTerminated:
		return true
	default:
		return false
	}
}

// StateSub is the taxonomy-level state name reported in InvalidStateError
// and over the wire. It is coarser than State: Pending reports as
// Confirmed (the Requestor's view of having confirmed the proposal into an
// agreement) and Approving collapses into Approved (the Provider has
// already committed to approving), since neither internal distinction is
// meaningful to the peer or to a caller classifying the error taxonomy.
type StateSub uint8

const (
	SubProposal StateSub = iota
	SubConfirmed
	SubApproved
	SubCancelled
	SubRejected
	SubExpired
	SubTerminated
)

func (s StateSub) String() string {
	switch s {
	case SubProposal:
		return "Proposal"
	case SubConfirmed:
		return "Confirmed"
	case SubApproved:
		return "Approved"
	case SubCancelled:
		return "Cancelled"
	case SubRejected:
		return "Rejected"
	case SubExpired:
		return "Expired"
	case SubTerminated:
		return "Terminated"
	default:
		panic("impossible agreement state sub received")
	}
}

// Sub maps s onto the taxonomy-level StateSub reported in InvalidStateError.
func (s State) Sub() StateSub {
	switch s {
	case StateProposal:
		return SubProposal
	case StatePending:
		return SubConfirmed
	case StateApproving, StateApproved:
		return SubApproved
	case StateCancelled:
		return SubCancelled
	case StateRejected:
		return SubRejected
	case StateExpired:
		return SubExpired
	case StateTerminated:
		return SubTerminated
	default:
		panic("impossible agreement state received")
	}
}

// CanTransition reports whether next is a legal successor of current.
func CanTransition(current, next State) bool {
	return isValidTransition(current, next)
}

// isValidTransition is the single source of truth for which ordinary state
// changes the engine may perform. The one exception is
// engine.ReconcileTerminal, which overrides any non-terminal state with a
// peer-announced terminal outcome without consulting this table. Mirrors
// the teacher's flat isValidStateChange switch, one case per origin state.
func isValidTransition(current, next State) bool {
	switch current {
	case StateProposal:
		return next == StatePending || next == StateExpired || next == StateCancelled
	case StatePending:
		return next == StateApproving || next == StateApproved || next == StateExpired || next == StateCancelled || next == StateRejected
	case StateApproving:
		return next == StateApproved || next == StatePending || next == StateExpired
	case StateApproved:
		return next == StateTerminated
	}
	return false
}

// ProposalStatus is the lifecycle status of a Proposal in the negotiation
// chain, independent of any Agreement that may later reference it.
type ProposalStatus uint8

const (
	ProposalInitial ProposalStatus = iota
	ProposalDraft
	ProposalAccepted
	ProposalRejected
	ProposalExpired
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalInitial:
		return "Initial"
	case ProposalDraft:
		return "Draft"
	case ProposalAccepted:
		return "Accepted"
	case ProposalRejected:
		return "Rejected"
	case ProposalExpired:
		return "Expired"
	default:
		panic("impossible proposal state received")
	}
}

// Owner is the role under which an AgreementID is locally viewed.
type Owner uint8

const (
	OwnerRequestor Owner = iota
	OwnerProvider
)

func (o Owner) String() string {
	switch o {
	case OwnerRequestor:
		return "Requestor"
	case OwnerProvider:
		return "Provider"
	default:
		panic("impossible owner received")
	}
}

func (o Owner) Counterpart() Owner {
	if o == OwnerRequestor {
		return OwnerProvider
	}
	return OwnerRequestor
}
