// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "fmt"

// The failure taxonomy. Each category is surfaced differently by the UI
// layer, so callers match with errors.As rather than string inspection.

// TransportError means the tunnel or channel was lost or never opened.
// Never retried automatically.
type TransportError struct {
	Op  string // what was being attempted, e.g. "dial", "channel-open"
	Err error
}

// Error returns the formatted transport failure message.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means authentication failed: missing authorizer token,
// malformed or absent signature, or a signature of the wrong length.
// Surfaced distinctly from transport errors so the UI can offer
// "reconnect" rather than "check network".
type AuthError struct {
	Reason string
	Err    error
}

// Error returns the formatted authentication failure message.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *AuthError) Unwrap() error { return e.Err }

// PolicyError means the policy store could not be consulted. Logged and
// treated as "proceed without policy"; the custody network decides whether
// a policy is mandatory.
type PolicyError struct {
	Role string
	Err  error
}

// Error returns the formatted policy fetch failure message.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy fetch failed for role %q: %v", e.Role, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *PolicyError) Unwrap() error { return e.Err }

// OperationError wraps a file operation failure. It is captured per-call in
// a FileOperationEvent, then returned to the immediate caller so the UI can
// react inline without tearing down the listing.
type OperationError struct {
	Operation string
	Path      string
	Err       error
}

// Error returns the formatted file operation failure message.
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *OperationError) Unwrap() error { return e.Err }
