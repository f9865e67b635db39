package ssh

import "fmt"

// TransportError is a classified transport failure.
type TransportError struct {
	// Op is the operation that failed (connect, execute, upload).
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary marks failures worth retrying (connection resets,
	// timeouts). Non-zero exit codes are not temporary.
	IsTemporary bool

	// IsAuthError marks authentication and host-key failures.
	IsAuthError bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
