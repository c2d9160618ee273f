// Package store provides a key-value store of JSON values backed by a single
// JSON document on disk.
//
// # Overview
//
// [Store] keeps the whole document in memory as an ordered mapping from key to
// raw JSON text. Keys keep the order in which they were first stored, so the
// file order survives a load/save cycle and listing is deterministic. Values
// are never decoded into Go types, which keeps numbers exact.
//
// # Lifecycle
//
// [New] creates a store without touching the disk. [Store.Load] reads the
// backing file, creating it empty when missing. Mutations ([Store.Set],
// [Store.Remove]) save immediately. [Store.Clear] deletes the backing file.
//
// # Corruption
//
// A backing file that is not a JSON object is treated as an empty store.
// [Store.Load] reports it by returning an error wrapping [ErrCorrupt]; the
// store is still usable afterwards.
//
// # File Format
//
// One compact JSON object. Saves write a temporary file in the same directory
// and rename it over the backing file, so readers see either the old or the
// new document. Concurrent writers in separate processes must serialize with
// [Store.Lock], otherwise the last writer wins.
package store
