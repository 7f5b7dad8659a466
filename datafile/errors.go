package datafile

import "errors"

var (
	// ErrCorrupt is returned when a footer or chunk fails validation.
	ErrCorrupt = errors.New("datafile: corrupt file")
	// ErrOutOfRange is returned for a row group, column or node outside the
	// file's dimensions.
	ErrOutOfRange = errors.New("datafile: chunk out of range")
	// ErrUnsupportedFiber is returned for fiber kinds that do not map to a
	// chunk, such as test fibers.
	ErrUnsupportedFiber = errors.New("datafile: unsupported fiber")
)
