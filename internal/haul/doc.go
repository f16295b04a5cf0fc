// Package haul plans explicit hauls: an operator selects a batch of items and a
// drop point, the package finds a connected set of cells near that point that can
// jointly receive the batch, and later hands out disjoint destination capacity to
// workers carrying individual items.
//
// All state is owned by the simulation's single logical thread. Nothing in this
// package locks; callers must not mutate a Posting from two in-flight decisions
// at once. Every check against the world (occupancy, reservations, reachability)
// is re-evaluated on each call and never cached across calls.
package haul
