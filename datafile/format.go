package datafile

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/hupe1980/fibercache/blobstore"
)

// File layout, little-endian:
//
//	chunk bytes ...
//	rowGroups uint32
//	fields    uint32
//	rowGroups*fields entries of {offset uint64, length uint32, rawLength uint32, codec uint8}
//	crc32     uint32 (of the footer fields above)
//	footerLen uint32
//	magic     uint32 "FCDF"
const (
	magic       uint32 = 0x46444346
	trailerSize        = 12
	headerSize         = 8
	entrySize          = 17

	// chunkOverhead is the in-memory cost of one parsed entry.
	chunkOverhead = 24
)

// Chunk locates one encoded cell of a file.
type Chunk struct {
	Offset    int64
	Length    uint32
	RawLength uint32
	Codec     Codec
}

func appendFooter(dst []byte, rowGroups, fields int, chunks []Chunk) []byte {
	start := len(dst)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(rowGroups))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(fields))
	for _, c := range chunks {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(c.Offset))
		dst = binary.LittleEndian.AppendUint32(dst, c.Length)
		dst = binary.LittleEndian.AppendUint32(dst, c.RawLength)
		dst = append(dst, byte(c.Codec))
	}
	footerLen := len(dst) - start
	dst = binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:]))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(footerLen))
	dst = binary.LittleEndian.AppendUint32(dst, magic)
	return dst
}

type footer struct {
	rowGroups int
	fields    int
	chunks    []Chunk
	size      int
}

func readFooter(ctx context.Context, blob blobstore.Blob) (*footer, error) {
	size := blob.Size()
	if size < trailerSize+headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too small", ErrCorrupt, size)
	}

	var trailer [trailerSize]byte
	if _, err := blob.ReadAt(ctx, trailer[:], size-trailerSize); err != nil {
		return nil, fmt.Errorf("datafile: read trailer: %w", err)
	}
	if m := binary.LittleEndian.Uint32(trailer[8:]); m != magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, m)
	}
	sum := binary.LittleEndian.Uint32(trailer[0:])
	footerLen := int64(binary.LittleEndian.Uint32(trailer[4:]))
	if footerLen < headerSize || footerLen > size-trailerSize {
		return nil, fmt.Errorf("%w: footer length %d", ErrCorrupt, footerLen)
	}

	body := make([]byte, footerLen)
	if _, err := blob.ReadAt(ctx, body, size-trailerSize-footerLen); err != nil {
		return nil, fmt.Errorf("datafile: read footer: %w", err)
	}
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: footer checksum mismatch", ErrCorrupt)
	}

	f, err := parseFooter(body, size-trailerSize-footerLen)
	if err != nil {
		return nil, err
	}
	f.size = int(footerLen) + trailerSize
	return f, nil
}

// parseFooter decodes a checksummed footer body. dataEnd is where chunk
// bytes end and the footer begins.
func parseFooter(body []byte, dataEnd int64) (*footer, error) {
	rowGroups := int64(binary.LittleEndian.Uint32(body[0:]))
	fields := int64(binary.LittleEndian.Uint32(body[4:]))
	n := rowGroups * fields
	if int64(len(body)) != headerSize+n*entrySize {
		return nil, fmt.Errorf("%w: %dx%d entries do not fit a %d byte footer", ErrCorrupt, rowGroups, fields, len(body))
	}

	chunks := make([]Chunk, n)
	p := body[headerSize:]
	for i := range chunks {
		c := Chunk{
			Offset:    int64(binary.LittleEndian.Uint64(p[0:])),
			Length:    binary.LittleEndian.Uint32(p[8:]),
			RawLength: binary.LittleEndian.Uint32(p[12:]),
			Codec:     Codec(p[16]),
		}
		if !c.Codec.valid() {
			return nil, fmt.Errorf("%w: chunk %d has unknown codec %d", ErrCorrupt, i, c.Codec)
		}
		if c.Offset < 0 || c.Offset+int64(c.Length) > dataEnd {
			return nil, fmt.Errorf("%w: chunk %d spans [%d,%d) past %d", ErrCorrupt, i, c.Offset, c.Offset+int64(c.Length), dataEnd)
		}
		if c.Codec == CodecNone && c.Length != c.RawLength {
			return nil, fmt.Errorf("%w: raw chunk %d has length %d, raw length %d", ErrCorrupt, i, c.Length, c.RawLength)
		}
		chunks[i] = c
		p = p[entrySize:]
	}

	return &footer{rowGroups: int(rowGroups), fields: int(fields), chunks: chunks}, nil
}
