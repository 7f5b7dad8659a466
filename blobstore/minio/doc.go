// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible systems (Ceph, SeaweedFS,
// Garage) without pulling in the AWS SDK.
//
// # Basic Usage
//
//	store, err := minioblob.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	}, "my-bucket", "tables/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	files := datafile.NewStore(store, datafile.StoreConfig{})
//
// Each Blob.ReadAt is a single ranged GET, so reading one chunk of a data
// file costs one round trip.
package minio
