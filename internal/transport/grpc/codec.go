package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codec carries the domain model structs as JSON, so the service needs no
// generated protobuf stubs.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return "json"
}

func init() {
	encoding.RegisterCodec(codec{})
}
