package mmap

import "errors"

// AccessPattern is a paging hint for a mapping.
type AccessPattern int

const (
	// AccessDefault leaves read-ahead to the kernel.
	AccessDefault AccessPattern = iota
	// AccessRandom disables read-ahead. Chunk reads of data files jump
	// between row groups, so blob mappings use it.
	AccessRandom
)

var (
	// ErrClosed is returned by operations on a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for negative sizes.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrInvalidOffset is returned by ReadAt for negative offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
