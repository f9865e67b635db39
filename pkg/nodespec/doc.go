// Package nodespec resolves node-group declarations into per-group machine
// specs and phase maps.
//
// The Builder combines a role catalog with caller-supplied phase builders:
// MachineSpec merges role-required ports into a base machine template, and
// PhaseMap constructs the full phase table then restricts it to the phases
// the resolved roles require. Resolution is pure and uncached; every call
// recomputes from the cluster model it is handed.
package nodespec
