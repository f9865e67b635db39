// Package ssh is the SSH transport phase commands execute over.
//
// It provides a lazily-dialed Client per target machine (command execution
// with context cancellation, SFTP uploads) and a Runner that adapts a host
// inventory to the phases.Runner contract. Host key verification is opt-in
// through a known_hosts path; unverified connections are meant for lab
// fleets only.
package ssh
