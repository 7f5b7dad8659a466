// Package s3 provides an S3 implementation of the blobstore.WritableStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "tables/")
//	if err != nil {
//	    return err
//	}
//	files := datafile.NewStore(store, datafile.StoreConfig{})
//
// # Features
//
//   - Range reads, one GET per Blob.ReadAt
//   - Multipart uploads for large files through the s3 manager
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
