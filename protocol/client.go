package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultSendTimeout bounds a single outbound call; the adapter layer is
// responsible for retrying across timeouts, not this client.
const DefaultSendTimeout = 5 * time.Second

// grpcClient dials each peer once and reuses the connection, keyed by
// address, the same pattern the teacher's net package uses to avoid
// redialing on every send.
type grpcClient struct {
	sync.Mutex
	conns   map[string]*grpc.ClientConn
	opts    []grpc.DialOption
	timeout time.Duration
}

func newGRPCClient(opts ...grpc.DialOption) *grpcClient {
	return &grpcClient{
		conns:   make(map[string]*grpc.ClientConn),
		opts:    opts,
		timeout: DefaultSendTimeout,
	}
}

func (g *grpcClient) conn(p Peer) (*grpc.ClientConn, error) {
	g.Lock()
	defer g.Unlock()

	if c, ok := g.conns[p.Address()]; ok {
		return c, nil
	}

	var (
		c   *grpc.ClientConn
		err error
	)
	if p.IsTLS() {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		c, err = grpc.Dial(p.Address(), append(g.opts, grpc.WithTransportCredentials(creds))...)
	} else {
		c, err = grpc.Dial(p.Address(), append(g.opts, grpc.WithTransportCredentials(insecure.NewCredentials()))...)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", p.Address(), err)
	}
	g.conns[p.Address()] = c
	return c, nil
}

func (g *grpcClient) client(p Peer) (MarketClient, error) {
	c, err := g.conn(p)
	if err != nil {
		return nil, err
	}
	return NewMarketClient(c), nil
}

func (g *grpcClient) timeoutCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// callOpts forces the json codec subtype since these peers never exchange
// protoc-generated messages.
func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(codecName)}
}

func (g *grpcClient) Propose(ctx context.Context, p Peer, in *Propose) (*Envelope, error) {
	client, err := g.client(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.timeoutCtx(ctx)
	defer cancel()
	return client.Propose(ctx, in, callOpts()...)
}

func (g *grpcClient) Approve(ctx context.Context, p Peer, in *Approve) (*Envelope, error) {
	client, err := g.client(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.timeoutCtx(ctx)
	defer cancel()
	return client.Approve(ctx, in, callOpts()...)
}

func (g *grpcClient) Reject(ctx context.Context, p Peer, in *Reject) (*Envelope, error) {
	client, err := g.client(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.timeoutCtx(ctx)
	defer cancel()
	return client.Reject(ctx, in, callOpts()...)
}

func (g *grpcClient) Cancel(ctx context.Context, p Peer, in *Cancel) (*Envelope, error) {
	client, err := g.client(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.timeoutCtx(ctx)
	defer cancel()
	return client.Cancel(ctx, in, callOpts()...)
}

func (g *grpcClient) Terminate(ctx context.Context, p Peer, in *Terminate) (*Envelope, error) {
	client, err := g.client(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.timeoutCtx(ctx)
	defer cancel()
	return client.Terminate(ctx, in, callOpts()...)
}

func (g *grpcClient) closeAll() error {
	g.Lock()
	defer g.Unlock()
	var firstErr error
	for addr, c := range g.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", addr, err)
		}
	}
	return firstErr
}
