package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Zstd wraps an inner codec with zstd block compression. Segment bodies
// with large dense arrays compress well; the inner codec stays JSON so
// the envelope remains self-describing after decompression.
type Zstd struct {
	inner Codec
}

// NewZstd creates a zstd-compressing codec around inner. A nil inner
// defaults to JSON.
func NewZstd(inner Codec) Zstd {
	if inner == nil {
		inner = JSON{}
	}
	return Zstd{inner: inner}
}

// Marshal encodes with the inner codec and compresses the result.
func (c Zstd) Marshal(v any) ([]byte, error) {
	raw, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	return enc.EncodeAll(raw, nil), nil
}

// Unmarshal decompresses and decodes with the inner codec.
func (c Zstd) Unmarshal(data []byte, v any) error {
	dec := getZstdDecoder()
	defer putZstdDecoder(dec)
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return c.inner.Unmarshal(raw, v)
}

// Name returns the unique name of the codec ("zstd").
func (c Zstd) Name() string { return "zstd" }
