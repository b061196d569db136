// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package signer

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"github.com/castellan-dev/castellan/internal/model"
)

// SSHSigner bridges the adapter into golang.org/x/crypto/ssh. The public
// key is derived from a known raw Ed25519 public key; every Sign call is a
// round trip to the custody network.
type SSHSigner struct {
	adapter  *Adapter
	pub      ssh.PublicKey
	username string
	serverID string
	ctx      context.Context
}

// NewSSHSigner builds an ssh.Signer for the given raw Ed25519 public key.
// username and serverID feed the disclosure payload of each request.
func NewSSHSigner(adapter *Adapter, rawPublicKey ed25519.PublicKey, username, serverID string) (*SSHSigner, error) {
	if len(rawPublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("raw public key length %d, want %d", len(rawPublicKey), ed25519.PublicKeySize)
	}
	pub, err := ssh.NewPublicKey(rawPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap public key: %w", err)
	}
	return &SSHSigner{
		adapter:  adapter,
		pub:      pub,
		username: username,
		serverID: serverID,
		ctx:      context.Background(),
	}, nil
}

// WithContext returns a copy of the signer whose Sign calls are bound to
// ctx. The ssh.Signer interface carries no context, so the session attaches
// its own before each connect attempt; disconnecting cancels in-flight
// signing.
func (s *SSHSigner) WithContext(ctx context.Context) *SSHSigner {
	dup := *s
	dup.ctx = ctx
	return &dup
}

// PublicKey returns the public key offered during authentication.
func (s *SSHSigner) PublicKey() ssh.PublicKey {
	return s.pub
}

// Sign delegates the server's challenge to the custody network and returns
// the resulting Ed25519 signature. The rand argument is unused; no local
// key material exists.
func (s *SSHSigner) Sign(_ io.Reader, data []byte) (*ssh.Signature, error) {
	req := model.SignatureRequest{
		Algorithm:    ssh.KeyAlgoED25519,
		KeyAlgorithm: s.pub.Type(),
		Username:     s.username,
		ServerID:     s.serverID,
		Challenge:    data,
	}
	blob, err := s.adapter.Sign(s.ctx, req)
	if err != nil {
		return nil, err
	}
	return &ssh.Signature{Format: ssh.KeyAlgoED25519, Blob: blob}, nil
}
