package status

import (
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrCorrupt is returned by Decode for malformed input.
	ErrCorrupt = errors.New("status: corrupt report")
	// ErrOutOfRange is returned for a cell outside the file's dimensions.
	ErrOutOfRange = errors.New("status: cell out of range")
)

// Cell is one (row group, column) position of a data file.
type Cell struct {
	RowGroup int
	Column   int
}

// FileStatus is the occupancy bitset of one data file. The bit at
// BitIndex(rowGroup, column, FieldCount) is set iff that cell is cached.
type FileStatus struct {
	Path       string
	Bits       *roaring.Bitmap
	GroupCount int
	FieldCount int
}

// BitIndex returns the bit of (rowGroup, column) in a file with fieldCount
// columns.
func BitIndex(rowGroup, column, fieldCount int) uint32 {
	return uint32(column + fieldCount*rowGroup)
}

// New returns an empty status for a groupCount × fieldCount file.
func New(path string, groupCount, fieldCount int) (*FileStatus, error) {
	if groupCount < 0 || fieldCount < 0 || int64(groupCount)*int64(fieldCount) > math.MaxUint32+1 {
		return nil, fmt.Errorf("status: invalid dimensions %dx%d for %s", groupCount, fieldCount, path)
	}
	return &FileStatus{
		Path:       path,
		Bits:       roaring.New(),
		GroupCount: groupCount,
		FieldCount: fieldCount,
	}, nil
}

// Build returns the status of path with the given cells set.
func Build(path string, groupCount, fieldCount int, cells []Cell) (*FileStatus, error) {
	s, err := New(path, groupCount, fieldCount)
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		if err := s.Set(c.RowGroup, c.Column); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStatus) inRange(rowGroup, column int) bool {
	return rowGroup >= 0 && rowGroup < s.GroupCount && column >= 0 && column < s.FieldCount
}

// Set marks (rowGroup, column) as cached.
func (s *FileStatus) Set(rowGroup, column int) error {
	if !s.inRange(rowGroup, column) {
		return fmt.Errorf("%w: (%d,%d) in %s with %dx%d", ErrOutOfRange, rowGroup, column, s.Path, s.GroupCount, s.FieldCount)
	}
	s.Bits.Add(BitIndex(rowGroup, column, s.FieldCount))
	return nil
}

// Has reports whether (rowGroup, column) is cached.
func (s *FileStatus) Has(rowGroup, column int) bool {
	return s.inRange(rowGroup, column) && s.Bits.Contains(BitIndex(rowGroup, column, s.FieldCount))
}

// Cells returns the cached cells in bit order.
func (s *FileStatus) Cells() []Cell {
	if s.FieldCount == 0 {
		return nil
	}
	cells := make([]Cell, 0, s.Bits.GetCardinality())
	it := s.Bits.Iterator()
	for it.HasNext() {
		bit := int(it.Next())
		cells = append(cells, Cell{RowGroup: bit / s.FieldCount, Column: bit % s.FieldCount})
	}
	return cells
}

// Count returns the number of cached cells.
func (s *FileStatus) Count() int {
	return int(s.Bits.GetCardinality())
}
