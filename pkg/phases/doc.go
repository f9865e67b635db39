// Package phases defines the lifecycle phase contract for topoplan.
//
// A phase is a named, opaque unit of configuration work applied to one
// machine of a node-group. The topology core selects phases by name from the
// role catalog and orders them in the orchestration driver; it never inspects
// how a phase executes. Phase construction is parameterized by cluster-level
// inputs (addressing mode, the tags hosting the coordinator and storage
// roles, shared properties) through the Builder type, and execution is
// delegated to a Runner collaborator.
//
// The package ships a reference builder table (Builtins) whose phases shell
// out through the runner; embedders are expected to substitute their own
// builders for production use.
package phases
