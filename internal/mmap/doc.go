// Package mmap provides memory mappings used by the fiber cache.
//
// Two kinds of mappings exist:
//
//   - Open maps a local data file read-only, so blob reads are plain copies
//     out of the page cache.
//   - MapAnon allocates anonymous read-write memory outside the Go heap. Fiber
//     buffers live in such mappings, which keeps large caches away from the
//     garbage collector and lets a buffer be released at a precise moment.
//
// # Usage
//
//	m, err := mmap.MapAnon(1 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	copy(m.Bytes(), decoded)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile for files, VirtualAlloc for
//     anonymous memory (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must ensure no
// goroutine touches the slice returned by Bytes after Close returns; the fiber
// package enforces this with pin counts.
package mmap
