package datafile

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies how a chunk is encoded on disk.
type Codec uint8

const (
	// CodecNone stores chunk bytes as-is.
	CodecNone Codec = 0
	// CodecLZ4 is LZ4 block compression (fast, good for hot data).
	CodecLZ4 Codec = 1
	// CodecZstd is zstd (better ratio, good for cold data).
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

func (c Codec) valid() bool {
	return c <= CodecZstd
}

// zstd encoders and decoders are expensive to build and safe to reuse.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// encodeChunk compresses data with c. If compression does not shrink the
// chunk, the raw bytes are stored and CodecNone is returned instead.
func encodeChunk(data []byte, c Codec) ([]byte, Codec, error) {
	if len(data) == 0 || c == CodecNone {
		return data, CodecNone, nil
	}

	var out []byte
	switch c {
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		// n == 0 means the block is incompressible.
		out = dst[:n]
	case CodecZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, err
		}
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, fmt.Errorf("datafile: unknown codec %s", c)
	}

	if len(out) == 0 || len(out) >= len(data) {
		return data, CodecNone, nil
	}
	return out, c, nil
}

// decodeChunk decodes src into dst, which must be exactly the raw length.
func decodeChunk(dst, src []byte, c Codec) error {
	switch c {
	case CodecNone:
		if len(src) != len(dst) {
			return fmt.Errorf("%w: stored chunk is %d bytes, want %d", ErrCorrupt, len(src), len(dst))
		}
		copy(dst, src)
		return nil

	case CodecLZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: lz4 decoded %d bytes, want %d", ErrCorrupt, n, len(dst))
		}
		return nil

	case CodecZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return err
		}
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if len(out) != len(dst) {
			return fmt.Errorf("%w: zstd decoded %d bytes, want %d", ErrCorrupt, len(out), len(dst))
		}
		if len(out) > 0 && &out[0] != &dst[0] {
			copy(dst, out)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown codec %s", ErrCorrupt, c)
	}
}
