// Package catalog is the static role registry for topoplan.
//
// A Catalog maps roles to the inbound ports and lifecycle phases they
// require, defines which roles are cluster-wide singletons, and expands
// convenience aliases (for example slavenode -> storage, worker) into
// concrete roles. It is an immutable value constructed once at process start
// and passed explicitly into the resolver and node spec builder, replacing
// what would otherwise be hidden global tables.
//
// Aggregation is permissive: a role the catalog does not know contributes no
// ports and no phases rather than failing. Topology validation separately
// rejects node-groups whose entire role set is unrecognized.
package catalog
