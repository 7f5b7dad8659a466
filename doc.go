// Package fibercache is an off-heap cache for the fibers of columnar data
// files: data chunks, B-tree index nodes and bitmap index nodes.
//
// # Quick Start
//
//	blobs := blobstore.NewLocalStore("/var/lib/data")
//	store := datafile.NewStore(blobs, datafile.StoreConfig{})
//
//	m, _ := fibercache.New(store, store, fibercache.WithMaxMemory(1<<30))
//	defer m.Close()
//
//	buf, err := m.Get(ctx, fiber.DataFiber{File: "part-0.fcdf", RowGroup: 2, Column: 5})
//	if err != nil {
//		return err
//	}
//	defer buf.Release()
//	process(buf.Bytes())
//
// # Memory Model
//
// Fiber bytes live outside the Go heap. Every buffer carries a pin count:
// Get returns it pinned, Release unpins it. When a fiber leaves the cache
// (eviction, Invalidate, ReleaseIndexCache, Stop) its buffer is handed to a
// background disposal worker that frees the memory once the last reader has
// released it. A reader therefore never sees its bytes change or vanish.
//
// # Strategies
//
//	fibercache.WithStrategy(fibercache.StrategyLRU)    // byte-bounded LRU (default)
//	fibercache.WithStrategy(fibercache.StrategySimple) // nothing stays resident
//
// The memory budget set by WithMaxMemory is split between resident fibers
// and buffers awaiting disposal, see WithGuardianReserveRatio.
//
// # Status Reports
//
// Status encodes, per data file, which (row group, column) cells are
// resident as a roaring bitmap. See package status for the format.
package fibercache
