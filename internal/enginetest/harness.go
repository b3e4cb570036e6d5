// Package enginetest is a two-peer test harness: it wires a Requestor node
// and a Provider node, each a complete in-process façade backed by its own
// bolt store, scheduler, and gRPC listener on loopback, pointed at each
// other by a small in-memory address book. It exists so scenario tests can
// exercise the full negotiation protocol end to end without a teacher-style
// mock network -- every hop here is a real façade, store, and gRPC call,
// only the transport addresses are resolved from memory instead of
// discovery. Modeled on the teacher's NewFullDKGEntry/NewValidProposal
// builder-function style for constructing fixtures.
package enginetest

import (
	"net"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common/testlogger"
	"github.com/fluxmarket/core/facade"
	"github.com/fluxmarket/core/protocol"
	"github.com/fluxmarket/core/scheduler"
	"github.com/fluxmarket/core/store"
)

// resolver is a mutable address book, shared between the two Nodes of one
// Harness so either side can look up the other's current loopback address.
type resolver struct {
	addrs map[string]string
}

func newResolver() *resolver { return &resolver{addrs: map[string]string{}} }

func (r *resolver) set(identity, addr string) { r.addrs[identity] = addr }

func (r *resolver) Resolve(identity string) (protocol.Peer, error) {
	addr, ok := r.addrs[identity]
	if !ok {
		return nil, &unreachableError{identity: identity}
	}
	return protocol.NewPeer(addr, false), nil
}

type unreachableError struct{ identity string }

func (e *unreachableError) Error() string { return "enginetest: no route to peer " + e.identity }

// Node is one side of a negotiation: a full façade with its own storage and
// network listener.
type Node struct {
	Identity string
	Facade   *facade.Facade
	Store    *store.Store

	resolver   *resolver
	grpcServer *grpc.Server
	listener   net.Listener
}

// BreakTransport stops the node's listener, so any peer attempting to
// deliver a message to this node observes a transport failure -- scenario
// 7's "network failure on confirm".
func (n *Node) BreakTransport() {
	n.grpcServer.Stop()
}

// Harness is a fully wired Requestor/Provider pair.
type Harness struct {
	Requestor *Node
	Provider  *Node
}

func newNode(t testing.TB, identity string, res *resolver) *Node {
	t.Helper()

	s, err := store.Open(t.TempDir(), testlogger.New(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	sched := scheduler.New(clock.NewRealClock())
	t.Cleanup(sched.Stop)

	adapter := protocol.NewAdapter(testlogger.New(t), protocol.DefaultRetryPolicy(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	t.Cleanup(func() { _ = adapter.Close() })

	f := facade.New(s.Agreements, s.Proposals, sched, adapter, res, agreement.DefaultPolicy(), clock.NewRealClock(), testlogger.New(t))

	dispatcher, err := protocol.NewDedupDispatcher(f)
	require.NoError(t, err)

	srv := protocol.NewServer(dispatcher, testlogger.New(t))
	grpcServer := protocol.NewGRPCServer(srv)
	lis, err := protocol.Listen("127.0.0.1:0", grpcServer)
	require.NoError(t, err)
	t.Cleanup(grpcServer.Stop)

	res.set(identity, lis.Addr().String())

	return &Node{Identity: identity, Facade: f, Store: s, resolver: res, grpcServer: grpcServer, listener: lis}
}

// New builds a Harness with a Requestor and Provider, each addressable by
// the other under the given identities.
func New(t testing.TB, requestorIdentity, providerIdentity string) *Harness {
	t.Helper()
	requestorBook := newResolver()
	providerBook := newResolver()

	requestor := newNode(t, requestorIdentity, requestorBook)
	provider := newNode(t, providerIdentity, providerBook)

	requestorBook.set(providerIdentity, provider.listener.Addr().String())
	providerBook.set(requestorIdentity, requestor.listener.Addr().String())

	return &Harness{Requestor: requestor, Provider: provider}
}

// NewCounterProposal seeds store with a Provider-issued, non-initial chain
// entry that a Requestor is free to promote into an Agreement.
func NewCounterProposal(t testing.TB, s *store.Store) *agreement.Proposal {
	t.Helper()
	p := &agreement.Proposal{
		ID:        agreement.NewProposalID(),
		PrevID:    agreement.NewProposalID(),
		Issuer:    agreement.OwnerProvider,
		State:     agreement.ProposalAccepted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Proposals.Save(p))
	return p
}

// NewOwnProposal seeds store with an initial (no PrevID), Requestor-issued
// proposal -- one the Requestor may not promote itself (scenario 10).
func NewOwnProposal(t testing.TB, s *store.Store) *agreement.Proposal {
	t.Helper()
	p := &agreement.Proposal{
		ID:        agreement.NewProposalID(),
		Issuer:    agreement.OwnerRequestor,
		State:     agreement.ProposalAccepted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Proposals.Save(p))
	return p
}

// NewCounteredProposal seeds store with a proposal that already has a
// successor in the chain -- a non-tail entry a Requestor may not promote
// (scenario 11).
func NewCounteredProposal(t testing.TB, s *store.Store) *agreement.Proposal {
	t.Helper()
	tail := NewCounterProposal(t, s)
	successor := &agreement.Proposal{
		ID:        agreement.NewProposalID(),
		PrevID:    tail.ID,
		Issuer:    agreement.OwnerRequestor,
		State:     agreement.ProposalAccepted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Proposals.Save(successor))
	return tail
}
