// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"errors"
	"testing"

	"github.com/castellan-dev/castellan/internal/model"
)

func TestIsAuthenticationError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"ssh: unable to authenticate, attempted methods [publickey]", true},
		{"authentication failed", true},
		{"Permission denied (publickey)", true},
		{"ssh: no supported methods remain", true},
		{"connection refused", false},
		{"read tcp: connection reset by peer", false},
	}
	for _, tt := range tests {
		if got := isAuthenticationError(errors.New(tt.msg)); got != tt.want {
			t.Errorf("isAuthenticationError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if isAuthenticationError(nil) {
		t.Error("isAuthenticationError(nil) = true, want false")
	}
}

func TestConnectionErrorClassifiers(t *testing.T) {
	if !IsConnectionTimeoutError(errors.New("dial tcp: i/o timeout")) {
		t.Error("timeout not classified")
	}
	if !IsConnectionTimeoutError(errors.New("context deadline exceeded")) {
		t.Error("deadline not classified as timeout")
	}
	if !IsConnectionRefusedError(errors.New("dial tcp 10.0.0.5:22: connection refused")) {
		t.Error("refusal not classified")
	}
	if !IsHostKeyError(errors.New("unknown host key for web-01. run 'castellan trust-host' to add it")) {
		t.Error("host key failure not classified")
	}
	if IsConnectionTimeoutError(nil) || IsConnectionRefusedError(nil) || IsHostKeyError(nil) {
		t.Error("nil classified as an error condition")
	}
}

func TestClassifyHandshakeError(t *testing.T) {
	authErr := classifyHandshakeError(errors.New("ssh: unable to authenticate"))
	var ae *model.AuthError
	if !errors.As(authErr, &ae) {
		t.Errorf("auth failure classified as %T, want *model.AuthError", authErr)
	}

	transportErr := classifyHandshakeError(errors.New("read tcp: connection reset by peer"))
	var te *model.TransportError
	if !errors.As(transportErr, &te) {
		t.Errorf("transport failure classified as %T, want *model.TransportError", transportErr)
	}
}
