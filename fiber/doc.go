// Package fiber defines the keys and buffers of the fiber cache.
//
// A fiber is one cacheable unit of decoded data: the chunk of one column in
// one row group of a data file (DataFiber), or one node of an index file
// (BTreeFiber, BitmapFiber). Keys are comparable values; the variant set is
// closed and Visit dispatches over it exhaustively.
//
// # Buffers
//
// A Buffer holds the decoded bytes of one fiber. Readers pin it while they
// use the bytes:
//
//	buf, err := cache.Get(ctx, fiber.DataFiber{File: "/t/part-0", RowGroup: 2, Column: 5})
//	if err != nil { ... }
//	defer buf.Release()
//	decode(buf.Bytes())
//
// Buffers move through free → pinned → free … → disposing → disposed. The
// pin count and the terminal states share one atomic word, so a buffer can
// never be disposed while pinned and a disposed buffer can never be pinned.
//
// # Locks
//
// LockManager hands out per-fiber read/write locks for callers that need
// exclusive access to a fiber's data beyond what the cache provides, for
// example while rebuilding an index.
package fiber
