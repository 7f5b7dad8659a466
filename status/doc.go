// Package status encodes which cells of each data file are resident in a
// fiber cache.
//
// Every file is reported as a roaring bitmap over its row groups × columns,
// with the bit for (rowGroup, column) at column + fieldCount*rowGroup.
// Encode and Decode define a checksummed little-endian report format.
package status
