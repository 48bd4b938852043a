// Package taskcache stores build task results in a flat local directory.
//
// Each entry is a single file named by the lowercase hex rendering of its
// content-hash key and holds exactly the bytes that were put. There is no
// sharding, metadata, size accounting, or eviction: the directory layout is
// the contract, so any tool that knows a key can read the result with plain
// file I/O.
//
// Writes go through a dot-prefixed temporary file in the same directory and
// are renamed into place, so concurrent readers observe either the previous
// entry or the complete new one. Temporary names never parse as keys.
//
// Store assumes it is the only writer of its directory within the process;
// the daemon enforces one process per state directory with a lock file.
package taskcache
