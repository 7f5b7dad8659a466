// Package backend provides the cache strategies behind the fiber cache manager.
//
// LRU bounds resident bytes and evicts in least-recently-used order through
// hashicorp/golang-lru; misses are deduplicated per fiber with singleflight.
// Simple admits everything and keeps nothing: each loaded buffer is handed
// to the guardian immediately and freed once its reader releases it.
package backend
