// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import "strings"

// The ssh package reports handshake failures as opaque strings, so
// classification falls back to substring matching.

// isAuthenticationError reports whether err looks like an authentication
// rejection rather than a transport problem.
func isAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"unable to authenticate",
		"authentication failed",
		"permission denied",
		"no supported methods remain",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// IsConnectionTimeoutError reports whether err looks like a timeout.
func IsConnectionTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// IsConnectionRefusedError reports whether err looks like the destination
// was unreachable.
func IsConnectionRefusedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no route to host")
}

// IsHostKeyError reports whether err came from host key verification.
func IsHostKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "host key") || strings.Contains(msg, "unknown host")
}
