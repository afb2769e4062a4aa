package codec

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// LZ4 wraps an inner codec with lz4 frame compression. Faster than zstd
// at a lower ratio; a reasonable choice when the external cache is local.
type LZ4 struct {
	inner Codec
}

// NewLZ4 creates an lz4-compressing codec around inner. A nil inner
// defaults to JSON.
func NewLZ4(inner Codec) LZ4 {
	if inner == nil {
		inner = JSON{}
	}
	return LZ4{inner: inner}
}

// Marshal encodes with the inner codec and compresses the result.
func (c LZ4) Marshal(v any) ([]byte, error) {
	raw, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decompresses and decodes with the inner codec.
func (c LZ4) Unmarshal(data []byte, v any) error {
	r := lz4.NewReader(bytes.NewReader(data))
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return c.inner.Unmarshal(raw, v)
}

// Name returns the unique name of the codec ("lz4").
func (c LZ4) Name() string { return "lz4" }
