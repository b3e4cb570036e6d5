package protocol

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the subtype registered with grpc/encoding and selected via
// grpc.CallContentSubtype/grpc.ForceCodec. The generic protobuf message-bus
// transport is out of scope for this core (see SPEC_FULL.md §4.3); the five
// wire messages are plain structs carried over gRPC through this codec
// instead of protoc-generated types.
const codecName = "marketjson"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

//nolint:gochecknoinits // registering the codec is the documented extension point
func init() {
	encoding.RegisterCodec(jsonCodec{})
}
