package pb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	// Register the gzip compressor so the link accepts compressed frames.
	_ "google.golang.org/grpc/encoding/gzip"
)

// CodecName is the content-subtype both sides of the agent link use.
const CodecName = "json"

// jsonCodec carries the hand-written messages over gRPC framing.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	agentLinkServiceName = "bess.AgentLink"
	streamFullMethod     = "/bess.AgentLink/Stream"
	bootstrapFullMethod  = "/bess.AgentLink/Bootstrap"
)

// AgentLinkClient is the agent side of the link.
type AgentLinkClient interface {
	Stream(ctx context.Context, opts ...grpc.CallOption) (AgentLink_StreamClient, error)
	Bootstrap(ctx context.Context, in *BootstrapRequest, opts ...grpc.CallOption) (*BootstrapResponse, error)
}

type agentLinkClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentLinkClient wraps a client connection. All calls force the JSON
// content subtype so no proto descriptors are needed.
func NewAgentLinkClient(cc grpc.ClientConnInterface) AgentLinkClient {
	return &agentLinkClient{cc: cc}
}

var streamDesc = &grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *agentLinkClient) Stream(ctx context.Context, opts ...grpc.CallOption) (AgentLink_StreamClient, error) {
	s, err := c.cc.NewStream(ctx, streamDesc, streamFullMethod, withJSON(opts)...)
	if err != nil {
		return nil, err
	}
	return &agentLinkStreamClient{ClientStream: s}, nil
}

func (c *agentLinkClient) Bootstrap(ctx context.Context, in *BootstrapRequest, opts ...grpc.CallOption) (*BootstrapResponse, error) {
	out := new(BootstrapResponse)
	if err := c.cc.Invoke(ctx, bootstrapFullMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// AgentLink_StreamClient is the agent's view of the bidirectional stream.
type AgentLink_StreamClient interface {
	Send(*AgentToHeadend) error
	Recv() (*HeadendToAgent, error)
	grpc.ClientStream
}

type agentLinkStreamClient struct {
	grpc.ClientStream
}

func (x *agentLinkStreamClient) Send(m *AgentToHeadend) error {
	return x.ClientStream.SendMsg(m)
}

func (x *agentLinkStreamClient) Recv() (*HeadendToAgent, error) {
	m := new(HeadendToAgent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// AgentLinkServer is the headend side of the link.
type AgentLinkServer interface {
	Stream(AgentLink_StreamServer) error
	Bootstrap(context.Context, *BootstrapRequest) (*BootstrapResponse, error)
}

// AgentLink_StreamServer is the headend's view of one agent connection.
type AgentLink_StreamServer interface {
	Send(*HeadendToAgent) error
	Recv() (*AgentToHeadend, error)
	grpc.ServerStream
}

type agentLinkStreamServer struct {
	grpc.ServerStream
}

func (x *agentLinkStreamServer) Send(m *HeadendToAgent) error {
	return x.ServerStream.SendMsg(m)
}

func (x *agentLinkStreamServer) Recv() (*AgentToHeadend, error) {
	m := new(AgentToHeadend)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func streamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(AgentLinkServer).Stream(&agentLinkStreamServer{ServerStream: stream})
}

func bootstrapHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BootstrapRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentLinkServer).Bootstrap(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: bootstrapFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentLinkServer).Bootstrap(ctx, req.(*BootstrapRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AgentLinkServiceDesc wires the handlers into a grpc.Server.
var AgentLinkServiceDesc = grpc.ServiceDesc{
	ServiceName: agentLinkServiceName,
	HandlerType: (*AgentLinkServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Bootstrap", Handler: bootstrapHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true, ClientStreams: true},
	},
}

// RegisterAgentLinkServer registers srv on s.
func RegisterAgentLinkServer(s grpc.ServiceRegistrar, srv AgentLinkServer) {
	s.RegisterService(&AgentLinkServiceDesc, srv)
}
