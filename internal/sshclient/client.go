// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package sshclient owns one session's worth of key exchange,
// authentication, channel/PTY lifecycle and raw data multiplexing over an
// established transport tunnel. Signing is delegated to the remote signer;
// no private key material is ever resident.
package sshclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/model"
)

// HandshakeTimeout bounds the SSH transport handshake. The human-paced
// approval wait happens inside the signer during authentication, which is
// not subject to this timeout.
const HandshakeTimeout = 15 * time.Second

// TerminalType is the PTY terminal type requested for the shell channel.
const TerminalType = "xterm-256color"

// Config describes one SSH connection attempt.
type Config struct {
	// User is the remote account name.
	User string
	// Addr is the destination host:port, used for handshake identification
	// and host key verification.
	Addr string
	// Signer produces authentication signatures; typically a
	// *signer.SSHSigner bound to the attempt's context.
	Signer ssh.Signer
	// HostKeyCallback verifies the server's host key, typically
	// trust.HostKeyCallback.
	HostKeyCallback ssh.HostKeyCallback
	// Geometry returns the PTY dimensions to request. It is consulted
	// immediately before the channel opens, so a resize issued while the
	// handshake is in flight still reaches the first PTY.
	Geometry func() (cols, rows int)
	// OnOutput receives every chunk of shell output in arrival order.
	OnOutput func([]byte)
	// OnAuthenticating fires on the first signature request, which is the
	// moment authentication starts waiting on the custody network.
	OnAuthenticating func()
}

// Client is one live SSH session over a tunnel.
type Client struct {
	mu     sync.Mutex
	conn   *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	done   chan struct{}
	reason string
}

// outputWriter adapts the OnOutput callback to io.Writer for the channel's
// stdout and stderr streams.
type outputWriter struct {
	fn func([]byte)
}

// Write copies p before handing it off; the ssh package reuses its buffers.
func (w outputWriter) Write(p []byte) (int, error) {
	chunk := make([]byte, len(p))
	copy(chunk, p)
	w.fn(chunk)
	return len(p), nil
}

// Open performs the handshake, authenticates through the signer, opens an
// interactive shell channel sized per cfg.Geometry, and starts streaming
// output. The conn is consumed; closing the returned Client closes it.
func Open(ctx context.Context, conn net.Conn, cfg Config) (*Client, error) {
	authSigner := cfg.Signer
	if cfg.OnAuthenticating != nil {
		authSigner = &notifyingSigner{inner: cfg.Signer, notify: cfg.OnAuthenticating}
	}
	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(authSigner)},
		HostKeyCallback: cfg.HostKeyCallback,
		Timeout:         HandshakeTimeout,
	}

	// ssh.NewClientConn has no context; cancel by closing the transport.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, cfg.Addr, clientConfig)
	close(handshakeDone)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, &model.TransportError{Op: "handshake", Err: ctx.Err()}
		}
		return nil, classifyHandshakeError(err)
	}

	c := &Client{
		conn: ssh.NewClient(sshConn, chans, reqs),
		done: make(chan struct{}),
	}

	sess, err := c.conn.NewSession()
	if err != nil {
		_ = c.conn.Close()
		return nil, &model.TransportError{Op: "channel-open", Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	cols, rows := 80, 24
	if cfg.Geometry != nil {
		cols, rows = cfg.Geometry()
	}
	if err := sess.RequestPty(TerminalType, rows, cols, modes); err != nil {
		_ = sess.Close()
		_ = c.conn.Close()
		return nil, &model.TransportError{Op: "pty-request", Err: err}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		_ = c.conn.Close()
		return nil, &model.TransportError{Op: "stdin-pipe", Err: err}
	}
	out := outputWriter{fn: cfg.OnOutput}
	sess.Stdout = out
	sess.Stderr = out

	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		_ = c.conn.Close()
		return nil, &model.TransportError{Op: "shell-start", Err: err}
	}

	c.sess = sess
	c.stdin = stdin

	go c.wait()
	return c, nil
}

// Write sends raw input bytes to the shell, untransformed and unbuffered.
func (c *Client) Write(p []byte) (int, error) {
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return 0, &model.TransportError{Op: "write", Err: fmt.Errorf("session closed")}
	}
	return stdin.Write(p)
}

// Resize forwards the new geometry as an in-band window-change request.
// Redundant calls are harmless.
func (c *Client) Resize(cols, rows int) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := sess.WindowChange(rows, cols); err != nil {
		return &model.TransportError{Op: "window-change", Err: err}
	}
	return nil
}

// Conn exposes the underlying ssh.Client for subsystems like SFTP or exec
// channels sharing this session.
func (c *Client) Conn() *ssh.Client {
	return c.conn
}

// Done is closed when the session ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Reason returns the human-readable cause once Done is closed.
func (c *Client) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Close tears the session down. Channel close, auth failure and transport
// failure all funnel to the same terminal signal with a cause string.
func (c *Client) Close(reason string) {
	c.finish(reason)
}

// wait blocks until the shell exits or the transport drops, then finishes
// with a cause derived from the error. Close may win the race and tear the
// session down before this goroutine runs.
func (c *Client) wait() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	err := sess.Wait()
	switch {
	case err == nil:
		c.finish("shell exited")
	default:
		c.finish(fmt.Sprintf("connection lost: %v", err))
	}
}

// finish closes everything exactly once and records the reason.
func (c *Client) finish(reason string) {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	c.reason = reason
	sess, conn := c.sess, c.conn
	c.sess = nil
	c.stdin = nil
	close(c.done)
	c.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	logging.Debugf("sshclient: session ended: %s", reason)
}

// notifyingSigner wraps an ssh.Signer and fires a callback once, on the
// first signature request. The server only asks for a signature after key
// exchange, so the callback marks the start of the custody round trip
// rather than the start of the handshake.
type notifyingSigner struct {
	inner  ssh.Signer
	notify func()
	once   sync.Once
}

func (s *notifyingSigner) PublicKey() ssh.PublicKey {
	return s.inner.PublicKey()
}

func (s *notifyingSigner) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	s.once.Do(s.notify)
	return s.inner.Sign(rand, data)
}

// classifyHandshakeError maps a handshake failure into the taxonomy: auth
// rejections surface as AuthError, everything else as TransportError.
func classifyHandshakeError(err error) error {
	if isAuthenticationError(err) {
		return &model.AuthError{Reason: "server rejected authentication", Err: err}
	}
	return &model.TransportError{Op: "handshake", Err: err}
}
