// Package store provides SQLite-backed durable storage for panel data.
//
// Three tables carry all persisted state:
//   - cell_values: one row per stored cell, keyed by
//     (session, panel, row, storage key)
//   - surface_state: the last persisted structural fingerprint per surface
//   - history: the append-only change journal, ordered by rowid within a
//     composite key
//
// # Key invariants
//
// Row indices per panel are dense 0..N-1; DeleteRow re-compacts after a
// removal so index always equals slice position in loaded rows.
//
// Storage keys are renamed only through ApplyKeyRemap, which stages every
// rename through a NUL-prefixed temporary inside one transaction so swaps
// cannot collide with the primary key.
//
// History is append-only: nothing updates an existing entry, and reads
// order by rowid so append order is reconstruction order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
