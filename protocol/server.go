package protocol

import (
	"context"
	"errors"
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"

	"github.com/fluxmarket/core/agreement"
	fluxlog "github.com/fluxmarket/core/common/log"
)

// Dispatcher is implemented by the engine façade: receiving a message
// applies it to the addressed agreement and returns the agreement error
// taxonomy directly, which the server translates into an Err reply.
type Dispatcher interface {
	OnPropose(ctx context.Context, msg *Propose) error
	OnApprove(ctx context.Context, msg *Approve) error
	OnReject(ctx context.Context, msg *Reject) error
	OnCancel(ctx context.Context, msg *Cancel) error
	OnTerminate(ctx context.Context, msg *Terminate) error
}

// Server exposes a Dispatcher over gRPC using the marketjson codec.
type Server struct {
	UnimplementedMarketServer
	dispatcher Dispatcher
	log        fluxlog.Logger
}

// NewServer wraps dispatcher for gRPC registration.
func NewServer(dispatcher Dispatcher, l fluxlog.Logger) *Server {
	return &Server{dispatcher: dispatcher, log: l}
}

func (s *Server) Propose(ctx context.Context, in *Propose) (*Envelope, error) {
	if err := s.dispatcher.OnPropose(ctx, in); err != nil {
		return s.toEnvelope(err), nil
	}
	return &Envelope{Ack: &Ack{}}, nil
}

func (s *Server) Approve(ctx context.Context, in *Approve) (*Envelope, error) {
	if err := s.dispatcher.OnApprove(ctx, in); err != nil {
		return s.toEnvelope(err), nil
	}
	return &Envelope{Ack: &Ack{}}, nil
}

func (s *Server) Reject(ctx context.Context, in *Reject) (*Envelope, error) {
	if err := s.dispatcher.OnReject(ctx, in); err != nil {
		return s.toEnvelope(err), nil
	}
	return &Envelope{Ack: &Ack{}}, nil
}

func (s *Server) Cancel(ctx context.Context, in *Cancel) (*Envelope, error) {
	if err := s.dispatcher.OnCancel(ctx, in); err != nil {
		return s.toEnvelope(err), nil
	}
	return &Envelope{Ack: &Ack{}}, nil
}

func (s *Server) Terminate(ctx context.Context, in *Terminate) (*Envelope, error) {
	if err := s.dispatcher.OnTerminate(ctx, in); err != nil {
		return s.toEnvelope(err), nil
	}
	return &Envelope{Ack: &Ack{}}, nil
}

// toEnvelope classifies an agreement-package error into the wire Err kind,
// logging anything that doesn't map onto a known taxonomy member.
//
// ExpiredError deliberately has no case here: it is only ever returned by
// the façade's local wait_for_approval path, never by a Dispatcher.On*
// handler, so it can't reach a dispatch error. Every precondition an
// inbound message can fail reports InvalidState instead, including
// expiry (Sub: SubExpired), which the AsInvalidState branch above already
// covers.
func (s *Server) toEnvelope(err error) *Envelope {
	if sub, ok := agreement.AsInvalidState(err); ok {
		return &Envelope{Err: &Err{Kind: ErrKindInvalidState, InvalidStateSub: sub, Message: err.Error()}}
	}

	var notFound *agreement.NotFoundError
	var versionMismatch *agreement.VersionMismatchError
	switch {
	case errors.As(err, &notFound):
		return &Envelope{Err: &Err{Kind: ErrKindNotFound, Message: err.Error()}}
	case errors.As(err, &versionMismatch):
		return &Envelope{Err: &Err{Kind: ErrKindVersionMismatch, Message: err.Error()}}
	default:
		s.log.Errorw("unclassified dispatch error", "err", err)
		return &Envelope{Err: &Err{Kind: ErrKindInternal, Message: err.Error()}}
	}
}

// NewGRPCServer builds a *grpc.Server with the prometheus metrics
// interceptor registered and registers srv on it.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	chain := grpc_middleware.WithUnaryServerChain(
		grpc_prometheus.UnaryServerInterceptor,
	)
	s := grpc.NewServer(append(opts, chain)...)
	grpc_prometheus.Register(s)
	RegisterMarketServer(s, srv)
	return s
}

// Listen starts serving srv on addr in a background goroutine and returns
// the listener so the caller can stop it via listener.Close/server.Stop.
func Listen(addr string, s *grpc.Server) (net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		_ = s.Serve(lis)
	}()
	return lis, nil
}
