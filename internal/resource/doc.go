// Package resource implements the Controller that governs off-heap fiber
// memory and data file IO.
//
//	┌───────────────────────────────────────────┐
//	│                Controller                 │
//	├─────────────────────┬─────────────────────┤
//	│  Memory Limit       │  IO Rate Limiter    │
//	│  (fail-fast)        │  (token bucket)     │
//	├─────────────────────┼─────────────────────┤
//	│  AcquireMemory      │  AcquireIO          │
//	│  ReleaseMemory      │  IOBytes            │
//	│  MemoryUsage/Peak   │                     │
//	└─────────────────────┴─────────────────────┘
//
// # Memory Management
//
// Every fiber buffer allocated off-heap reserves its size here and returns it
// when the buffer is disposed. AcquireMemory is non-blocking and returns
// ErrMemoryLimitExceeded immediately if a hard limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(1024*1024); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides retry/backoff
//	}
//	defer rc.ReleaseMemory(1024*1024)
//
// # IO Rate Limiting
//
// Chunk reads issued by cache misses pass through a token bucket so a cold
// cache cannot saturate the storage device:
//
//	if err := rc.AcquireIO(ctx, len(chunk)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
package resource
