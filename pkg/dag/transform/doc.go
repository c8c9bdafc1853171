// Package transform rewrites production graphs for analysis and drawing.
//
// [BreakCycles] removes back edges so that the graph becomes acyclic; the
// pruner uses the count to report how cyclic the retained recipe set is.
// [AssignLayers] computes longest-path rows from the sources, which the DOT
// renderer turns into ranks. [Layered] applies both in order.
package transform
