// Package cell defines the unit of allocation managed by the collector.
//
// A Cell is a small tagged union: a pair of handles (Cons) or one of the leaf
// values Int, Real, Char and Nil. Cells never hold Go pointers. References
// between cells are Handles, an (arena, slot, generation) triple that stays
// meaningful after the referenced slot is recycled: the generation no longer
// matches and the dereference is rejected instead of returning a foreign
// cell.
package cell
