// Package orchestrator drives cluster lifecycle operations.
//
// The Driver sits between the declarative topology core and a convergence
// engine. Boot validates, computes a bring-up diff, and converges with the
// fixed configure / publish-key / authorize-coordinator sequence. Kill
// computes an all-zero diff and runs no phases. Lift executes an arbitrary
// caller-supplied phase sequence against the running cluster, and Start is
// a lift with the service start phases in dependency order.
package orchestrator
