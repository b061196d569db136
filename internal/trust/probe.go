// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package trust

import (
	"context"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
)

// HostKeyCallback builds the ssh.HostKeyCallback that enforces the trust
// store: unknown hosts fail closed with a pointer to 'trust-host', and a
// key that differs from the recorded one is always a hard error.
func HostKeyCallback(s Store) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		// The hostname passed to the callback can include the port; strip
		// it so we look up the bare host.
		host, _, err := net.SplitHostPort(hostname)
		if err != nil {
			host = hostname
		}

		// The key is presented in the format "ssh-ed25519 AAA..."
		presentedKey := string(ssh.MarshalAuthorizedKey(key))

		knownKey, err := s.GetHostKey(context.Background(), host)
		if err != nil {
			return fmt.Errorf("failed to query trust store: %w", err)
		}

		if knownKey == "" {
			return fmt.Errorf("unknown host key for %s. run 'castellan trust-host' to add it", host)
		}

		if knownKey != presentedKey {
			return fmt.Errorf("!!! HOST KEY MISMATCH FOR %s !!!\nRemote key presented: %s\nThis could be a man-in-the-middle attack", host, presentedKey)
		}

		return nil // Host key is trusted.
	}
}

// probeSentinel marks the deliberate handshake abort used by ProbeHostKey.
const probeSentinel = "castellan: successfully retrieved host key"

// ProbeHostKey performs a partial SSH handshake over conn just to learn the
// server's public key, then aborts. conn is consumed either way; callers
// dial a fresh tunnel for the real connection.
func ProbeHostKey(conn net.Conn, addr string) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)

	config := &ssh.ClientConfig{
		// No authentication needed; the host key arrives during key exchange.
		User: "castellan-probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			keyChan <- key
			// Returning an error gracefully stops the handshake.
			return fmt.Errorf("%s", probeSentinel)
		},
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		if strings.Contains(err.Error(), probeSentinel) {
			return <-keyChan, nil
		}
		return nil, fmt.Errorf("failed to probe %s: %w", addr, err)
	}

	// Should not happen: the callback always aborts the handshake.
	ssh.NewClient(c, chans, reqs).Close()
	return nil, fmt.Errorf("handshake succeeded unexpectedly, could not retrieve key")
}
