// Package reconcile decides, on every data tick, whether the rendered panel
// structure must be rebuilt or can be patched cell by cell, and then does it.
//
// ARCHITECTURE:
//
// Single-Writer Pass Loop:
// All controller state (the rendered structure, cached key mappings, the
// applied fingerprint) is owned by one goroutine. The Service loop receives
// change signals, debounces them through the Scheduler, and runs passes
// strictly one after another. A pass that has started always runs to
// completion; newer signals supersede pending passes, never running ones.
//
// Pass Flow:
//  1. Compute the structural fingerprint of the incoming snapshot
//  2. Load the fingerprint persisted for this surface
//  3. No structure rendered, or fingerprints differ: Build
//  4. Fingerprints equal: Patch
//  5. Persist the fingerprint (both branches; survives session reload)
//
// Build constructs a complete replacement structure and swaps it in whole,
// after invalidating every cached key mapping. Patch walks the existing
// structure, re-resolves each cell against the new data, rewrites only cells
// whose value actually changed, marks them, and appends history.
//
// Error Policy:
// A pass never fails. Storage problems load as "no fingerprint" (forcing a
// rebuild) or degrade to warnings on save; resolution misses skip the cell
// and keep its last-known-good value; history appends are best-effort. The
// caller always gets a consistent structure and an Outcome describing what
// happened.
package reconcile
