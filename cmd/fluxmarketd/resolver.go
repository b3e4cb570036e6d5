package main

import (
	"fmt"

	"github.com/fluxmarket/core/protocol"
)

// AddressBookResolver resolves a counterpart identity to a Peer using a
// static table loaded from the daemon's config file. A real deployment
// would back this with service discovery; the address book is the
// simplest thing that satisfies facade.PeerResolver without inventing an
// identity/discovery subsystem this core doesn't own.
type AddressBookResolver struct {
	peers map[string]protocol.Peer
}

// NewAddressBookResolver builds a resolver from the config's Peers table.
func NewAddressBookResolver(entries map[string]PeerConfig) *AddressBookResolver {
	peers := make(map[string]protocol.Peer, len(entries))
	for identity, pc := range entries {
		peers[identity] = protocol.NewPeer(pc.Address, pc.TLS)
	}
	return &AddressBookResolver{peers: peers}
}

func (r *AddressBookResolver) Resolve(identity string) (protocol.Peer, error) {
	p, ok := r.peers[identity]
	if !ok {
		return nil, fmt.Errorf("no address book entry for identity %q", identity)
	}
	return p, nil
}
