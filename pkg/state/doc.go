// Package state defines the persistence-facing contract for loading and
// saving one serialised SOP snapshot under a storage reference.
//
// Responsibilities:
//   - Store[T] only loads/saves a single snapshot for a single Ref.
//   - Meta carries storage-owned metadata: the snapshot id, an ETag (the
//     envelope checksum) used for optional stale-writer detection, the schema
//     version the snapshot was stored under and the save timestamp.
//   - Mutate is a load-modify-save helper honouring the ETag check.
//
// Concrete stores live elsewhere: persist.Store is the envelope/checksum
// implementation over a storage.Adapter, MemoryStore is an in-process stand-in
// for tests.
package state
