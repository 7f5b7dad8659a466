// Package guardian implements the background disposal of evicted fiber buffers.
//
// A cache backend never frees a buffer itself. When an entry is evicted or
// invalidated the backend drops it from its index and offers the buffer here.
// One worker goroutine takes entries in FIFO order and calls TryDispose with a
// bounded wait; a buffer that is still pinned goes back to the tail so it
// cannot hold up the rest of the queue. Disposal attempts are retried without
// limit until the last reader releases its pin.
//
// PendingSize tracks the bytes still waiting for disposal. When it grows past
// the configured threshold each Offer logs a warning; producers are never
// blocked.
package guardian
