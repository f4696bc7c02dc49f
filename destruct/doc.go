// Package destruct implements the DestructionScheduler of spec.md §4.3's
// sibling concern (§2's component table, §9's open question #4): a
// priority queue on destruction time that evicts expired jobs.
//
// The teacher's only precedent for a background retention sweep is
// CleanWorker (clean_worker.go): a fixed-interval polling loop. A fixed
// interval cannot bound destruction-time accuracy independent of the
// sweep period, so this package replaces the polling loop with a
// container/heap keyed on destructionTime and a single timer reset to
// the earliest pending entry — the structural change spec.md §9's
// design notes anticipate ("implementers SHOULD ...") and DESIGN.md
// records as an explicit Open Question resolution.
package destruct
