package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// Envelope wraps an Ack or Err reply; exactly one of Ack/Err is set, the
// same error-or-value shape as the teacher's EmptyResponse/error pattern
// but made explicit rather than riding on the gRPC status code, so a
// receiver can classify failures without string-matching status messages.
type Envelope struct {
	Ack *Ack
	Err *Err
}

const (
	market_Propose_FullMethodName   = "/fluxmarket.protocol.Market/Propose"
	market_Approve_FullMethodName   = "/fluxmarket.protocol.Market/Approve"
	market_Reject_FullMethodName    = "/fluxmarket.protocol.Market/Reject"
	market_Cancel_FullMethodName    = "/fluxmarket.protocol.Market/Cancel"
	market_Terminate_FullMethodName = "/fluxmarket.protocol.Market/Terminate"
)

// MarketClient is the client API for the Market peer protocol service.
type MarketClient interface {
	Propose(ctx context.Context, in *Propose, opts ...grpc.CallOption) (*Envelope, error)
	Approve(ctx context.Context, in *Approve, opts ...grpc.CallOption) (*Envelope, error)
	Reject(ctx context.Context, in *Reject, opts ...grpc.CallOption) (*Envelope, error)
	Cancel(ctx context.Context, in *Cancel, opts ...grpc.CallOption) (*Envelope, error)
	Terminate(ctx context.Context, in *Terminate, opts ...grpc.CallOption) (*Envelope, error)
}

type marketClient struct {
	cc grpc.ClientConnInterface
}

// NewMarketClient wraps an existing connection; callers select the
// jsonCodec subtype via grpc.CallContentSubtype in the per-call options.
func NewMarketClient(cc grpc.ClientConnInterface) MarketClient {
	return &marketClient{cc}
}

func (c *marketClient) Propose(ctx context.Context, in *Propose, opts ...grpc.CallOption) (*Envelope, error) {
	out := new(Envelope)
	if err := c.cc.Invoke(ctx, market_Propose_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketClient) Approve(ctx context.Context, in *Approve, opts ...grpc.CallOption) (*Envelope, error) {
	out := new(Envelope)
	if err := c.cc.Invoke(ctx, market_Approve_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketClient) Reject(ctx context.Context, in *Reject, opts ...grpc.CallOption) (*Envelope, error) {
	out := new(Envelope)
	if err := c.cc.Invoke(ctx, market_Reject_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketClient) Cancel(ctx context.Context, in *Cancel, opts ...grpc.CallOption) (*Envelope, error) {
	out := new(Envelope)
	if err := c.cc.Invoke(ctx, market_Cancel_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketClient) Terminate(ctx context.Context, in *Terminate, opts ...grpc.CallOption) (*Envelope, error) {
	out := new(Envelope)
	if err := c.cc.Invoke(ctx, market_Terminate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// MarketServer is the server API for the Market peer protocol service.
// All implementations should embed UnimplementedMarketServer.
type MarketServer interface {
	Propose(context.Context, *Propose) (*Envelope, error)
	Approve(context.Context, *Approve) (*Envelope, error)
	Reject(context.Context, *Reject) (*Envelope, error)
	Cancel(context.Context, *Cancel) (*Envelope, error)
	Terminate(context.Context, *Terminate) (*Envelope, error)
	mustEmbedUnimplementedMarketServer()
}

// UnimplementedMarketServer must be embedded to have forward-compatible
// implementations.
type UnimplementedMarketServer struct{}

func (UnimplementedMarketServer) Propose(context.Context, *Propose) (*Envelope, error) {
	return nil, errUnimplemented("Propose")
}
func (UnimplementedMarketServer) Approve(context.Context, *Approve) (*Envelope, error) {
	return nil, errUnimplemented("Approve")
}
func (UnimplementedMarketServer) Reject(context.Context, *Reject) (*Envelope, error) {
	return nil, errUnimplemented("Reject")
}
func (UnimplementedMarketServer) Cancel(context.Context, *Cancel) (*Envelope, error) {
	return nil, errUnimplemented("Cancel")
}
func (UnimplementedMarketServer) Terminate(context.Context, *Terminate) (*Envelope, error) {
	return nil, errUnimplemented("Terminate")
}
func (UnimplementedMarketServer) mustEmbedUnimplementedMarketServer() {}

func errUnimplemented(method string) error {
	return grpcUnimplementedError{method}
}

type grpcUnimplementedError struct{ method string }

func (e grpcUnimplementedError) Error() string { return "method " + e.method + " not implemented" }

// RegisterMarketServer registers srv on s.
func RegisterMarketServer(s grpc.ServiceRegistrar, srv MarketServer) {
	s.RegisterService(&marketServiceDesc, srv)
}

func marketProposeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Propose)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketServer).Propose(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: market_Propose_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketServer).Propose(ctx, req.(*Propose))
	}
	return interceptor(ctx, in, info, handler)
}

func marketApproveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Approve)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketServer).Approve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: market_Approve_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketServer).Approve(ctx, req.(*Approve))
	}
	return interceptor(ctx, in, info, handler)
}

func marketRejectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Reject)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketServer).Reject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: market_Reject_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketServer).Reject(ctx, req.(*Reject))
	}
	return interceptor(ctx, in, info, handler)
}

func marketCancelHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Cancel)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketServer).Cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: market_Cancel_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketServer).Cancel(ctx, req.(*Cancel))
	}
	return interceptor(ctx, in, info, handler)
}

func marketTerminateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Terminate)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketServer).Terminate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: market_Terminate_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketServer).Terminate(ctx, req.(*Terminate))
	}
	return interceptor(ctx, in, info, handler)
}

// marketServiceDesc is the grpc.ServiceDesc for the Market service.
var marketServiceDesc = grpc.ServiceDesc{
	ServiceName: "fluxmarket.protocol.Market",
	HandlerType: (*MarketServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Propose", Handler: marketProposeHandler},
		{MethodName: "Approve", Handler: marketApproveHandler},
		{MethodName: "Reject", Handler: marketRejectHandler},
		{MethodName: "Cancel", Handler: marketCancelHandler},
		{MethodName: "Terminate", Handler: marketTerminateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fluxmarket/protocol/market.proto",
}
