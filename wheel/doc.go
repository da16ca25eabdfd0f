// Package wheel implements the memory wheel: a single-producer,
// single-consumer variable-length message queue in a fixed-size shared
// memory region, for two processes that share neither a virtual address
// space nor a file descriptor table.
//
// A Wheel is a cache-line-aligned circular byte buffer. Every published
// message is preceded by a small slice header living at an Align-aligned
// offset inside the buffer. Coordination between producer and consumer is
// purely through atomic operations on that shared header; EventfdWheel adds
// an optional pair of counting-semaphore event descriptors on top so callers
// can block or poll instead of busy-waiting.
//
// The wire layout is bit-exact and documented field by field in layout.go
// (the header and sliceHeader views) so that two independently-built binaries agree on it without
// sharing any Go types across the process boundary.
package wheel
