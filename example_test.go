package fibercache_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/fibercache"
	"github.com/hupe1980/fibercache/blobstore"
	"github.com/hupe1980/fibercache/datafile"
	"github.com/hupe1980/fibercache/fiber"
	"github.com/hupe1980/fibercache/status"
)

// Example demonstrates caching data file chunks and reporting occupancy.
func Example() {
	ctx := context.Background()

	// Write a 2x2 data file into an in-memory blob store.
	blobs := blobstore.NewMemoryStore()
	w, err := datafile.NewWriter(2, 2, datafile.CodecZstd)
	if err != nil {
		log.Fatal(err)
	}
	for rg := range 2 {
		for col := range 2 {
			_ = w.SetChunk(rg, col, fmt.Appendf(nil, "cell %d/%d", rg, col))
		}
	}
	if err := w.Put(ctx, blobs, "part-0.fcdf"); err != nil {
		log.Fatal(err)
	}

	store := datafile.NewStore(blobs, datafile.StoreConfig{})
	m, err := fibercache.New(store, store, fibercache.WithMaxMemory(64<<20))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	buf, err := m.Get(ctx, fiber.DataFiber{File: "part-0.fcdf", RowGroup: 1, Column: 0})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(buf.Bytes()))
	buf.Release()

	report, err := m.Status(ctx)
	if err != nil {
		log.Fatal(err)
	}
	statuses, _ := status.Decode(report)
	for _, s := range statuses {
		fmt.Println(s.Path, s.Cells())
	}
	// Output:
	// cell 1/0
	// part-0.fcdf [{1 0}]
}

// ExampleWithStrategy demonstrates a cache that keeps nothing resident.
func ExampleWithStrategy() {
	loader := fiber.LoaderFunc(func(_ context.Context, f fiber.Fiber) (*fiber.Buffer, error) {
		return fiber.NewBuffer([]byte(f.String()), nil), nil
	})
	meta := datafile.MetaLoaderFunc(func(context.Context, string) (datafile.FileMeta, error) {
		return nil, fmt.Errorf("no metadata")
	})

	m, err := fibercache.New(loader, meta, fibercache.WithStrategy(fibercache.StrategySimple))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	buf, _ := m.Get(context.Background(), fiber.TestFiber{Name: "k"})
	fmt.Println(string(buf.Bytes()), m.Stats().ResidentCount)
	buf.Release()
	// Output: test("k") 0
}
