// Package topology holds the declarative cluster model for topoplan.
//
// A Cluster is an immutable description of a desired fleet: an addressing
// mode, a shared base machine template and properties, and a mapping from
// node-group tag to (role set, desired count, overrides). The package
// validates the model against a role catalog (unrecognized role sets and
// singleton-role violations are invalid_topology, duplicate singleton claims
// are ambiguous_singleton) and can load models from YAML files for the CLI.
//
// Nothing here performs I/O against real machines and nothing is persisted;
// cluster state beyond the passed-in model is the caller's responsibility.
package topology
