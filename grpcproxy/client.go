package grpcproxy

import (
	"context"
	"fmt"

	"github.com/rerun-go/rerun/logmsg"
	"google.golang.org/grpc"
)

// Dial connects to addr, defaulting every call on the connection to the
// "rerun-json" content-subtype so the server's registered jsonCodec
// handles (de)serialization instead of the default proto codec.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)))
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: dial %s: %w", addr, err)
	}
	return cc, nil
}

// Client is a thin, hand-written stub over a ClientConn for the RPCs
// ServiceDesc exposes, playing the role protoc-gen-go-grpc's generated
// client would otherwise play. It backs sink.GrpcSink.
type Client struct {
	cc *grpc.ClientConn
}

func NewClient(cc *grpc.ClientConn) *Client { return &Client{cc: cc} }

func (c *Client) ListRecordings(ctx context.Context) (*ListRecordingsResponse, error) {
	resp := new(ListRecordingsResponse)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListRecordings", &ListRecordingsRequest{}, resp)
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: ListRecordings: %w", err)
	}
	return resp, nil
}

func (c *Client) OpenRecording(ctx context.Context, recordingId string) (*OpenRecordingResponse, error) {
	resp := new(OpenRecordingResponse)
	req := &OpenRecordingRequest{RecordingId: recordingId}
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/OpenRecording", req, resp); err != nil {
		return nil, fmt.Errorf("grpcproxy: OpenRecording(%q): %w", recordingId, err)
	}
	return resp, nil
}

// LogStream is the client side of StreamLogMsgs: Send forwards one
// LogMsg to the server; Recv reads back the SetStoreInfo
// acknowledgements the server echoes per distinct StoreId.
type LogStream struct {
	stream grpc.ClientStream
}

var streamLogMsgsDesc = &grpc.StreamDesc{
	StreamName:    "StreamLogMsgs",
	ServerStreams: true,
	ClientStreams: true,
}

func (c *Client) StreamLogMsgs(ctx context.Context) (*LogStream, error) {
	stream, err := c.cc.NewStream(ctx, streamLogMsgsDesc, "/"+ServiceName+"/StreamLogMsgs")
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: open StreamLogMsgs: %w", err)
	}
	return &LogStream{stream: stream}, nil
}

func (s *LogStream) Send(msg logmsg.LogMsg) error {
	wire := toLogMsgWire(msg)
	return s.stream.SendMsg(&wire)
}

func (s *LogStream) Recv() (logmsg.LogMsg, error) {
	var wire logMsgWire
	if err := s.stream.RecvMsg(&wire); err != nil {
		return logmsg.LogMsg{}, err
	}
	return fromLogMsgWire(wire), nil
}

func (s *LogStream) CloseSend() error { return s.stream.CloseSend() }

var subscribeLogMsgsDesc = &grpc.StreamDesc{
	StreamName:    "SubscribeLogMsgs",
	ServerStreams: true,
	ClientStreams: false,
}

// SubscribeLogMsgs opens the server-push half of a served recording: the
// returned LogStream first yields the tail the server's Broadcaster
// still holds in its ring, then every LogMsg it publishes after that.
// Send/CloseSend are not meaningful on
// the result and are left unused by callers.
func (c *Client) SubscribeLogMsgs(ctx context.Context) (*LogStream, error) {
	stream, err := c.cc.NewStream(ctx, subscribeLogMsgsDesc, "/"+ServiceName+"/SubscribeLogMsgs")
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: open SubscribeLogMsgs: %w", err)
	}
	return &LogStream{stream: stream}, nil
}
