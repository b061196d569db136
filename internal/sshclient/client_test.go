// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/ssh"
)

// A Close racing ahead of the wait goroutine leaves no session behind; wait
// must notice and return instead of dereferencing it.
func TestWaitAfterCloseReturnsWithoutSession(t *testing.T) {
	c := &Client{done: make(chan struct{})}

	c.finish("disconnected by user")
	c.wait()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() not closed after finish")
	}
	if got := c.Reason(); got != "disconnected by user" {
		t.Errorf("Reason() = %q, want %q", got, "disconnected by user")
	}
}

func TestNotifyingSignerFiresOnceOnFirstSign(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	inner, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}

	fired := 0
	s := &notifyingSigner{inner: inner, notify: func() { fired++ }}

	// Advertising the key does not start the custody round trip.
	if s.PublicKey().Type() != inner.PublicKey().Type() {
		t.Errorf("PublicKey().Type() = %q, want %q", s.PublicKey().Type(), inner.PublicKey().Type())
	}
	if fired != 0 {
		t.Fatalf("notify fired %d times before any signature request", fired)
	}

	if _, err := s.Sign(rand.Reader, []byte("challenge one")); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if fired != 1 {
		t.Errorf("notify fired %d times after first Sign, want 1", fired)
	}

	if _, err := s.Sign(rand.Reader, []byte("challenge two")); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if fired != 1 {
		t.Errorf("notify fired %d times after second Sign, want 1", fired)
	}
}
