// Package converge defines the convergence engine boundary.
//
// The topology core hands an engine a complete diff (or a set of resolved
// specs for lift-style calls) plus an ordered phase-name filter, and the
// engine owns everything from there: network I/O, parallelism, retries.
// Two implementations ship here: a dry-run engine that only logs, and an
// SSH reference engine that executes phases against inventory hosts with
// bounded per-phase fan-out. Phase order across the cluster is strictly
// sequential; only host fan-out within one phase is parallel.
package converge
