package segment

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/segcache/codec"
)

// bodyEnvelope tags a serialized body with its storage variant so that
// DecodeBody can reconstruct the concrete type.
type bodyEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// EncodeBody serializes a body through the given codec. Pass nil to use
// codec.Default.
func EncodeBody(c codec.Codec, b Body) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return c.Marshal(bodyEnvelope{Kind: b.kindName(), Body: raw})
}

// DecodeBody deserializes a body produced by EncodeBody with the same codec.
func DecodeBody(c codec.Codec, data []byte) (Body, error) {
	if c == nil {
		c = codec.Default
	}
	var env bodyEnvelope
	if err := c.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var b Body
	switch env.Kind {
	case "dense-float":
		b = &DenseFloatBody{}
	case "dense-int":
		b = &DenseIntBody{}
	case "dense-object":
		b = &DenseObjectBody{}
	case "sparse":
		b = &SparseBody{}
	default:
		return nil, fmt.Errorf("segment: unknown body kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Body, b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeHeader serializes a header through the given codec.
func EncodeHeader(c codec.Codec, h *Header) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	return c.Marshal(h)
}

// DecodeHeader deserializes a header produced by EncodeHeader.
func DecodeHeader(c codec.Codec, data []byte) (*Header, error) {
	if c == nil {
		c = codec.Default
	}
	h := &Header{}
	if err := c.Unmarshal(data, h); err != nil {
		return nil, err
	}
	return h, nil
}
