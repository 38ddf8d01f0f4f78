// Package grpcproxy implements spec.md §6's gRPC surface — the
// bidirectional LogMsg stream plus ListRecordings/OpenRecording — using
// a hand-written grpc.ServiceDesc and a JSON encoding.Codec registered
// under the content-subtype "rerun-json", since generated protobuf
// stubs are explicitly out of scope. It backs sink.GrpcSink (client
// side) and sink.GrpcServerSink (server side). Its LogMsg JSON
// projection (wire.go) is separate from the one sink/envelope.go
// defines for FileSink: the field names differ, and an ArrowMsg carries
// no chunk column data here.
package grpcproxy

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this module's codec registers
// under, selected per-call with grpc.CallContentSubtype(CodecName).
const CodecName = "rerun-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec over plain
// Go structs via encoding/json, standing in for the protoc-generated
// codec a .proto service would otherwise use.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }
