// Package laps reconstructs per-driver lap timelines and maps timestamps onto
// lap numbers.
//
// A Timeline is a gapless partition of time: consecutive intervals share their
// boundary, the first interval starts no later than the driver's first sample,
// and the last interval ends at Unbounded unless a duration closes it.
//
// Lap records from the timing provider are sparse. Build fills the gaps with a
// fixed fallback chain, in order:
//
//  1. The first lap starts at its declared start, else at the driver's earliest
//     observed sample, else at the Unix epoch. A declared start later than the
//     earliest sample is moved back to that sample.
//  2. Every later lap starts at its declared start, else at the previous lap's
//     end, else (previous end unknown) at the previous lap's start. Declared
//     starts that go backwards are clamped to the previous start.
//  3. A lap ends at the next lap's declared start, else at start+duration,
//     else it is left unresolved.
//  4. A final pass replaces any unresolved or non-increasing end with the next
//     lap's start, or Unbounded for the last lap.
//
// Build then runs Validate, so a broken partition surfaces as
// ErrBrokenPartition instead of a wrong lap number further down.
//
// A Locator walks one timeline with a forward-only cursor. Queries for a
// driver must arrive in non-decreasing time order; the fuser guarantees this.
package laps
