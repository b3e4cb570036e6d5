package agreement

// Policy holds the behavioral knobs that higher layers may tune per node.
// AllowRepromotionAfterTerminal resolves the open question in DESIGN.md:
// whether a Requestor may create a new Agreement against a Proposal whose
// previous Agreement already reached a terminal state. Default false
// preserves the source behavior of unconditionally forbidding it.
type Policy struct {
	AllowRepromotionAfterTerminal bool
}

// DefaultPolicy is the conservative, spec-matching default.
func DefaultPolicy() Policy {
	return Policy{AllowRepromotionAfterTerminal: false}
}
