// Package datafile is a minimal columnar file format and the reference
// loaders a fiber cache runs on.
//
// A file holds rowGroups × fields independently encoded chunks followed by a
// checksummed footer. Chunks may be stored raw, LZ4 or zstd compressed.
// Writer builds files; Store reads them from any blobstore.BlobStore and
// implements both MetaLoader (footer → FileMeta) and fiber.Loader (fiber →
// decoded off-heap buffer).
//
//	files := datafile.NewStore(blobs, datafile.StoreConfig{})
//	cache, err := fibercache.New(files, files)
package datafile
