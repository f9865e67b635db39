package topology

import (
	"fmt"

	"github.com/topoplan/topoplan/pkg/catalog"
)

// Code classifies topology failures. All codes are local-validation
// failures: they are detected purely from the declarative cluster model,
// surfaced immediately, and never retried.
type Code string

const (
	// CodeInvalidTopology marks a node-group whose resolved roles are
	// unrecognized, or a singleton-role group with a count outside {0,1}.
	CodeInvalidTopology Code = "invalid_topology"

	// CodeAmbiguousSingleton marks two node-groups claiming the same
	// singleton role.
	CodeAmbiguousSingleton Code = "ambiguous_singleton"

	// CodeMissingRole marks a role required for tag resolution that no
	// node-group in the cluster holds exactly once.
	CodeMissingRole Code = "missing_role"
)

// TopologyError is a classified topology failure with group and role
// context.
//
//nolint:revive // named to distinguish from transport and engine errors
type TopologyError struct {
	// Code is the failure classification.
	Code Code

	// Message is the human-readable failure description.
	Message string

	// Group is the node-group tag involved, if any.
	Group string

	// Role is the role involved, if any.
	Role catalog.Role

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *TopologyError) Error() string {
	switch {
	case e.Group != "" && e.Role != "":
		return fmt.Sprintf("[%s] %s (group=%s, role=%s)", e.Code, e.Message, e.Group, e.Role)
	case e.Group != "":
		return fmt.Sprintf("[%s] %s (group=%s)", e.Code, e.Message, e.Group)
	case e.Role != "":
		return fmt.Sprintf("[%s] %s (role=%s)", e.Code, e.Message, e.Role)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *TopologyError) Unwrap() error {
	return e.Err
}

// Is matches topology errors by code, so callers can compare against a bare
// &TopologyError{Code: ...} sentinel.
func (e *TopologyError) Is(target error) bool {
	t, ok := target.(*TopologyError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithGroup attaches node-group context.
func (e *TopologyError) WithGroup(tag string) *TopologyError {
	e.Group = tag
	return e
}

// WithRole attaches role context.
func (e *TopologyError) WithRole(role catalog.Role) *TopologyError {
	e.Role = role
	return e
}

// NewInvalidTopology creates an invalid_topology error.
func NewInvalidTopology(message string) *TopologyError {
	return &TopologyError{Code: CodeInvalidTopology, Message: message}
}

// NewAmbiguousSingleton creates an ambiguous_singleton error.
func NewAmbiguousSingleton(message string) *TopologyError {
	return &TopologyError{Code: CodeAmbiguousSingleton, Message: message}
}

// NewMissingRole creates a missing_role error.
func NewMissingRole(message string) *TopologyError {
	return &TopologyError{Code: CodeMissingRole, Message: message}
}

// IsCode reports whether err is a TopologyError with the given code,
// unwrapping as needed.
func IsCode(err error, code Code) bool {
	for err != nil {
		if te, ok := err.(*TopologyError); ok {
			return te.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
