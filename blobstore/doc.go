// Package blobstore provides the sources data files are read from.
//
// BlobStore opens immutable blobs for ranged reads; WritableStore adds
// Put, Delete and List for tooling and tests. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, used by tests
//   - LocalStore: local filesystem with mmap support
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//
// A custom backend only needs Open and a Blob:
//
//	type Blob interface {
//	    ReadAt(ctx, p, off) (int, error)
//	    Size() int64
//	    Close() error
//	}
package blobstore
