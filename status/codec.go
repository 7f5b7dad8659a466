package status

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	magic   = 0x54534346 // "FCST"
	version = 1
)

// Encode serializes statuses in order.
//
// Format, little-endian:
//
//	Magic (4 bytes)
//	Version (4 bytes)
//	Count (4 bytes)
//	Records...
//	  PathLen (2 bytes)
//	  Path (bytes)
//	  BitsLen (4 bytes)
//	  Bits (roaring portable serialization)
//	  GroupCount (4 bytes)
//	  FieldCount (4 bytes)
//	Checksum (4 bytes) - CRC32 of everything before it
func Encode(statuses []*FileStatus) ([]byte, error) {
	pb := &payloadBuffer{buf: make([]byte, 0, 16+len(statuses)*64)}
	pb.writeUint32(magic)
	pb.writeUint32(version)
	pb.writeUint32(uint32(len(statuses)))

	for _, s := range statuses {
		bits := s.Bits
		if bits == nil {
			bits = roaring.New()
		}
		if err := validate(s.Path, bits, s.GroupCount, s.FieldCount); err != nil {
			return nil, err
		}
		data, err := bits.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("status: serialize %s: %w", s.Path, err)
		}
		pb.writeString(s.Path)
		pb.writeBytes(data)
		pb.writeUint32(uint32(s.GroupCount))
		pb.writeUint32(uint32(s.FieldCount))
	}
	if pb.err != nil {
		return nil, pb.err
	}

	return binary.LittleEndian.AppendUint32(pb.buf, crc32.ChecksumIEEE(pb.buf)), nil
}

// Decode parses a report produced by Encode.
func Decode(data []byte) ([]*FileStatus, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	body := data[:len(data)-4]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[len(data)-4:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := &payloadBuffer{buf: body}
	if m := pb.readUint32(); m != magic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, m)
	}
	if v := pb.readUint32(); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	count := pb.readUint32()
	// Each record takes at least 14 bytes, which bounds a hostile count.
	if int64(count)*14 > int64(len(body)) {
		return nil, fmt.Errorf("%w: %d records do not fit %d bytes", ErrCorrupt, count, len(body))
	}

	statuses := make([]*FileStatus, 0, count)
	for range count {
		path := pb.readString()
		raw := pb.readBytes()
		groups := int(pb.readUint32())
		fields := int(pb.readUint32())
		if pb.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
		}

		bits := roaring.New()
		if err := bits.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("%w: bitmap of %s: %v", ErrCorrupt, path, err)
		}
		if err := validate(path, bits, groups, fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		statuses = append(statuses, &FileStatus{Path: path, Bits: bits, GroupCount: groups, FieldCount: fields})
	}
	if pb.pos != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body)-pb.pos)
	}
	return statuses, nil
}

func validate(path string, bits *roaring.Bitmap, groups, fields int) error {
	if groups < 0 || fields < 0 || int64(groups) > math.MaxUint32 || int64(fields) > math.MaxUint32 {
		return fmt.Errorf("status: invalid dimensions %dx%d for %s", groups, fields, path)
	}
	limit := uint64(groups) * uint64(fields)
	if limit > math.MaxUint32+1 {
		return fmt.Errorf("status: invalid dimensions %dx%d for %s", groups, fields, path)
	}
	if bits.IsEmpty() {
		return nil
	}
	if uint64(bits.Maximum()) >= limit {
		return fmt.Errorf("%w: bit %d of %s exceeds %dx%d", ErrOutOfRange, bits.Maximum(), path, groups, fields)
	}
	return nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("status: path too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) writeBytes(b []byte) {
	if p.err != nil {
		return
	}
	if int64(len(b)) > math.MaxUint32 {
		p.err = fmt.Errorf("status: bitmap too large: %d", len(b))
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(len(b)))
	p.buf = append(p.buf, b...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if n < 0 || p.pos+n > len(p.buf) {
		p.err = fmt.Errorf("truncated at offset %d", p.pos)
		return false
	}
	return true
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(n) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+n])
	p.pos += n
	return s
}

func (p *payloadBuffer) readBytes() []byte {
	n := int(p.readUint32())
	if !p.need(n) {
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}
