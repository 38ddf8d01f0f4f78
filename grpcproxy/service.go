package grpcproxy

import (
	"context"
	"fmt"

	"github.com/rerun-go/rerun/logmsg"
	"google.golang.org/grpc"
)

// ServiceName is the hand-rolled gRPC service name every method/stream
// below dispatches under, taking the place of a .proto package.service
// path.
const ServiceName = "rerun.v1.RerunProxy"

// Catalog is the subset of catalog.Catalog this service needs. Defined
// here instead of importing package catalog directly, so a Server can
// run against any backing store (or none, with a nil Catalog) that
// satisfies it.
type Catalog interface {
	ListRecordings() ([]logmsg.StoreInfo, error)
	OpenRecording(recordingId string) (logmsg.StoreInfo, bool, error)
}

// Sink is the subset of sink.Sink this service forwards incoming
// LogMsgs to.
type Sink interface {
	Send(msg logmsg.LogMsg)
}

// Server implements the RPCs ServiceDesc describes: ListRecordings and
// OpenRecording answer from Catalog; StreamLogMsgs forwards every
// received LogMsg to Sink; SubscribeLogMsgs streams out everything
// Broadcaster publishes. Any field may be left nil for a partial
// deployment (a pure proxy with no catalog, a catalog-only read
// service with no sink, or an ingest-only server with no broadcaster
// for viewers).
type Server struct {
	Catalog     Catalog
	Sink        Sink
	Broadcaster *Broadcaster
}

type ListRecordingsRequest struct{}

type ListRecordingsResponse struct {
	Recordings []storeInfoWire `json:"recordings"`
}

type OpenRecordingRequest struct {
	RecordingId string `json:"recording_id"`
}

type OpenRecordingResponse struct {
	Found     bool          `json:"found"`
	Recording storeInfoWire `json:"recording"`
}

func (s *Server) listRecordings(ctx context.Context, req *ListRecordingsRequest) (*ListRecordingsResponse, error) {
	if s.Catalog == nil {
		return &ListRecordingsResponse{}, nil
	}
	infos, err := s.Catalog.ListRecordings()
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: list recordings: %w", err)
	}
	resp := &ListRecordingsResponse{Recordings: make([]storeInfoWire, len(infos))}
	for i, info := range infos {
		resp.Recordings[i] = toStoreInfoWire(info)
	}
	return resp, nil
}

func (s *Server) openRecording(ctx context.Context, req *OpenRecordingRequest) (*OpenRecordingResponse, error) {
	if s.Catalog == nil {
		return &OpenRecordingResponse{}, nil
	}
	info, ok, err := s.Catalog.OpenRecording(req.RecordingId)
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: open recording %q: %w", req.RecordingId, err)
	}
	return &OpenRecordingResponse{Found: ok, Recording: toStoreInfoWire(info)}, nil
}

// streamLogMsgs is the server side of the bidirectional proxy endpoint
// (spec.md §6's rerun+http://.../proxy): every LogMsg the client sends
// is forwarded to Sink, and a SetStoreInfo is echoed back the first
// time each distinct StoreId is seen, so a thin client can confirm the
// server has picked up its stream before sending a bulk of chunks.
func (s *Server) streamLogMsgs(stream grpc.ServerStream) error {
	seen := make(map[string]struct{})
	for {
		var wire logMsgWire
		if err := stream.RecvMsg(&wire); err != nil {
			return err
		}
		msg := fromLogMsgWire(wire)
		if s.Sink != nil {
			s.Sink.Send(msg)
		}
		if msg.Kind != logmsg.KindSetStoreInfo {
			continue
		}
		key := msg.Info.StoreId.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ack := toLogMsgWire(msg)
		if err := stream.SendMsg(&ack); err != nil {
			return err
		}
	}
}

// subscribeLogMsgs is the server-push half of a served recording
// (spec.md §5's "a viewer can connect_grpc to a locally spawned
// server"): it takes no input from the client, and streams out every
// LogMsg Broadcaster.Publish is given for as long as the stream's
// context stays alive. A server with no Broadcaster simply serves an
// empty stream — a catalog/ingest-only deployment with no live viewer
// support.
func (s *Server) subscribeLogMsgs(stream grpc.ServerStream) error {
	if s.Broadcaster == nil {
		<-stream.Context().Done()
		return stream.Context().Err()
	}
	id, tail, ch := s.Broadcaster.subscribe()
	defer s.Broadcaster.unsubscribe(id)
	for _, msg := range tail {
		wire := toLogMsgWire(msg)
		if err := stream.SendMsg(&wire); err != nil {
			return err
		}
	}
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			wire := toLogMsgWire(msg)
			if err := stream.SendMsg(&wire); err != nil {
				return err
			}
		}
	}
}

func listRecordingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListRecordingsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.listRecordings(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/ListRecordings"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.listRecordings(ctx, req.(*ListRecordingsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func openRecordingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(OpenRecordingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.openRecording(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/OpenRecording"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.openRecording(ctx, req.(*OpenRecordingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func streamLogMsgsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).streamLogMsgs(stream)
}

func subscribeLogMsgsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).subscribeLogMsgs(stream)
}

// rerunProxyServer exists only to give ServiceDesc.HandlerType a stable
// named type to point at, mirroring the generated "FooServer" interface
// a .proto service would otherwise produce. It carries no methods: the
// handler functions above type-assert to *Server directly rather than
// dispatching through an interface.
type rerunProxyServer interface{}

// ServiceDesc is the hand-rolled description grpc.Server.RegisterService
// dispatches against, in place of what protoc-gen-go-grpc would
// otherwise generate from a .proto file.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*rerunProxyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRecordings", Handler: listRecordingsHandler},
		{MethodName: "OpenRecording", Handler: openRecordingHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamLogMsgs", Handler: streamLogMsgsHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: "SubscribeLogMsgs", Handler: subscribeLogMsgsHandler, ServerStreams: true, ClientStreams: false},
	},
	Metadata: "rerun/grpcproxy",
}
