// Package plan is the topology diff engine.
//
// Compute turns an immutable cluster model plus an action (bring-up or
// tear-down) into a Diff: a mapping from resolved node spec to target
// instance count, the sole artifact handed to a convergence engine. Tag
// resolution (which node-group hosts the coordinator, which hosts the
// storage root) happens here so phase maps can point dependents at the
// right groups; an unresolvable role is a missing_role failure, checked as
// an explicit result rather than an assertion.
package plan
