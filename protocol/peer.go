package protocol

// Peer identifies a remote market node reachable over gRPC.
type Peer interface {
	Address() string
	IsTLS() bool
}

type simplePeer struct {
	addr string
	tls  bool
}

func (p *simplePeer) Address() string { return p.addr }
func (p *simplePeer) IsTLS() bool     { return p.tls }

// NewPeer builds a Peer from a dial address.
func NewPeer(addr string, useTLS bool) Peer {
	return &simplePeer{addr: addr, tls: useTLS}
}
