package status

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_BitLayout(t *testing.T) {
	s, err := Build("/t/a", 3, 3, []Cell{{0, 1}, {1, 1}, {2, 2}})
	require.NoError(t, err)

	assert.Equal(t, []uint32{1, 4, 8}, s.Bits.ToArray())
	assert.Equal(t, 3, s.Count())
	assert.True(t, s.Has(1, 1))
	assert.False(t, s.Has(1, 0))
	assert.False(t, s.Has(3, 0))
	assert.Equal(t, []Cell{{0, 1}, {1, 1}, {2, 2}}, s.Cells())
}

func TestBuild_OutOfRange(t *testing.T) {
	_, err := Build("/t/a", 2, 2, []Cell{{2, 0}})
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Build("/t/a", 2, 2, []Cell{{0, -1}})
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = New("/t/a", -1, 2)
	assert.Error(t, err)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	a, err := Build("/t/a", 3, 3, []Cell{{0, 1}, {1, 1}, {2, 2}})
	require.NoError(t, err)
	b, err := Build("/t/b", 100, 1000, []Cell{{0, 0}, {99, 999}, {50, 500}})
	require.NoError(t, err)
	empty, err := New("/t/empty", 4, 4)
	require.NoError(t, err)

	data, err := Encode([]*FileStatus{a, b, empty})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, want := range []*FileStatus{a, b, empty} {
		assert.Equal(t, want.Path, got[i].Path)
		assert.Equal(t, want.GroupCount, got[i].GroupCount)
		assert.Equal(t, want.FieldCount, got[i].FieldCount)
		assert.True(t, want.Bits.Equals(got[i].Bits), want.Path)
	}
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Len(t, data, 16)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncode_RejectsOutOfRangeBits(t *testing.T) {
	bits := roaring.BitmapOf(9)
	_, err := Encode([]*FileStatus{{Path: "/t/a", Bits: bits, GroupCount: 3, FieldCount: 3}})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestEncode_RejectsOversizedDimensions(t *testing.T) {
	tests := []struct {
		name           string
		groups, fields int
	}{
		{"groups", 1 << 32, 0},
		{"fields", 0, 1 << 32},
		{"product", 1 << 17, 1 << 16},
		{"negative", -1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode([]*FileStatus{{Path: "/t/a", GroupCount: tt.groups, FieldCount: tt.fields}})
			assert.Error(t, err)
		})
	}

	// The largest addressable file still round-trips.
	data, err := Encode([]*FileStatus{{Path: "/t/a", GroupCount: 1 << 16, FieldCount: 1 << 16}})
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1<<16, got[0].GroupCount)
	assert.Equal(t, 1<<16, got[0].FieldCount)
}

func TestEncode_NilBits(t *testing.T) {
	data, err := Encode([]*FileStatus{{Path: "/t/a", GroupCount: 1, FieldCount: 1}})
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got[0].Bits.IsEmpty())
}

// reseal recomputes the trailing checksum after a deliberate edit.
func reseal(data []byte) []byte {
	body := data[:len(data)-4]
	binary.LittleEndian.PutUint32(data[len(data)-4:], crc32.ChecksumIEEE(body))
	return data
}

func TestDecode_Corrupt(t *testing.T) {
	s, err := Build("/t/a", 3, 3, []Cell{{2, 2}})
	require.NoError(t, err)
	good, err := Encode([]*FileStatus{s})
	require.NoError(t, err)

	clone := func() []byte { return append([]byte(nil), good...) }

	flipped := clone()
	flipped[20] ^= 0xff

	badMagic := clone()
	badMagic[0] = 'X'
	badMagic = reseal(badMagic)

	badVersion := clone()
	binary.LittleEndian.PutUint32(badVersion[4:], 9)
	badVersion = reseal(badVersion)

	hugeCount := clone()
	binary.LittleEndian.PutUint32(hugeCount[8:], 1<<30)
	hugeCount = reseal(hugeCount)

	// Shrink the dimensions so bit 8 no longer fits.
	shrunk := clone()
	off := len(shrunk) - 4 - 8
	binary.LittleEndian.PutUint32(shrunk[off:], 2)
	shrunk = reseal(shrunk)

	trailing := reseal(append(append(clone()[:len(good)-4], 0, 0, 0), 0, 0, 0, 0))

	for name, data := range map[string][]byte{
		"short":     good[:10],
		"checksum":  flipped,
		"magic":     badMagic,
		"version":   badVersion,
		"count":     hugeCount,
		"bit-range": shrunk,
		"trailing":  trailing,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
