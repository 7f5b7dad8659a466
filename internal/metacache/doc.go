// Package metacache caches data file metadata with access-based expiry.
package metacache
