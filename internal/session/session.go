// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package session is the public-facing lifecycle wrapper around one logical
// SSH connection: connect/disconnect, status reporting, resize caching and
// output buffering for consumers that attach late (a terminal view mounted
// after data starts arriving).
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/castellan-dev/castellan/internal/logging"
	"github.com/castellan-dev/castellan/internal/model"
	"github.com/castellan-dev/castellan/internal/sshclient"
	"github.com/castellan-dev/castellan/internal/tunnel"
)

// Default PTY geometry used only when no dimensions were ever requested.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// SignerFactory binds an ssh.Signer to a connect attempt's context so that
// disconnecting abandons in-flight signing work. Typically
// `func(ctx) ssh.Signer { return sshSigner.WithContext(ctx) }`.
type SignerFactory func(ctx context.Context) ssh.Signer

// Config describes the collaborators of one Session.
type Config struct {
	// Host and Port identify the destination behind the relay.
	Host string
	Port int
	// Username is the remote account.
	Username string
	// Dialer opens the transport tunnel.
	Dialer *tunnel.Dialer
	// Signer produces authentication signatures per attempt.
	Signer SignerFactory
	// HostKeys verifies the server's host key.
	HostKeys ssh.HostKeyCallback
	// QueueLimit bounds the pending output queue in bytes; zero means
	// DefaultQueueLimit.
	QueueLimit int
}

// Session owns one logical connection. It holds the single authoritative
// ConnectionStatus; consumers observe, none mutate directly.
type Session struct {
	cfg Config

	mu         sync.Mutex
	status     model.ConnectionStatus
	subs       []chan model.ConnectionStatus
	queue      *outputQueue
	sink       func([]byte)
	client     *sshclient.Client
	cancel     context.CancelFunc
	cols, rows int
	lastReason string
	userClosed bool
}

// New returns a disconnected Session for the given destination.
func New(cfg Config) *Session {
	return &Session{
		cfg:    cfg,
		status: model.StatusDisconnected,
		queue:  newOutputQueue(cfg.QueueLimit),
	}
}

// Status returns the current connection status.
func (s *Session) Status() model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastReason returns the human-readable cause of the last terminal
// transition, for UI display.
func (s *Session) LastReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReason
}

// Subscribe returns a channel that receives every status transition.
// Delivery is non-blocking; a slow observer misses intermediate states but
// always sees the latest. Callers release the channel with Unsubscribe.
func (s *Session) Subscribe() <-chan model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan model.ConnectionStatus, 8)
	s.subs = append(s.subs, ch)
	return ch
}

// Unsubscribe removes a channel returned by Subscribe and closes it. It is
// a no-op for channels this session does not know.
func (s *Session) Unsubscribe(ch <-chan model.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if (<-chan model.ConnectionStatus)(sub) == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// setStatus records the new status and notifies observers. Callers must
// hold s.mu.
func (s *Session) setStatus(status model.ConnectionStatus) {
	s.status = status
	for _, ch := range s.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// Connect establishes the tunnel, authenticates via the remote signer and
// opens the shell channel. It rejects when an attempt is already in
// progress or the session is connected; the in-progress attempt is not
// disturbed. Status transitions are observable via Subscribe before
// Connect returns.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case model.StatusConnecting, model.StatusAuthenticating, model.StatusConnected:
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("connect rejected: session is %s", status)
	}
	// A fresh attempt starts with a clean slate.
	s.queue.clear()
	s.userClosed = false
	s.lastReason = ""
	attemptCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.setStatus(model.StatusConnecting)
	s.mu.Unlock()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.cfg.Dialer.Dial(attemptCtx, s.cfg.Host, s.cfg.Port)
	if err != nil {
		s.fail(err)
		return err
	}

	client, err := sshclient.Open(attemptCtx, conn, sshclient.Config{
		User:            s.cfg.Username,
		Addr:            addr,
		Signer:          s.cfg.Signer(attemptCtx),
		HostKeyCallback: s.cfg.HostKeys,
		Geometry:        s.geometryGetter(),
		OnOutput:        s.handleOutput,
		OnAuthenticating: func() {
			s.mu.Lock()
			if s.status == model.StatusConnecting {
				s.setStatus(model.StatusAuthenticating)
			}
			s.mu.Unlock()
		},
	})
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.userClosed {
		// Disconnect won the race; tear the fresh client down quietly.
		s.mu.Unlock()
		client.Close("disconnected by user")
		return fmt.Errorf("connect aborted: session disconnected")
	}
	s.client = client
	s.setStatus(model.StatusConnected)
	s.mu.Unlock()

	go s.watch(client)
	logging.Infof("session: connected to %s@%s", s.cfg.Username, addr)
	return nil
}

// fail records a failed attempt. Cancellation by Disconnect keeps the
// disconnected status it already set.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userClosed {
		return
	}
	s.lastReason = err.Error()
	s.setStatus(model.StatusError)
}

// watch waits for the client to end and mirrors the outcome into the
// session status, unless the user already disconnected.
func (s *Session) watch(client *sshclient.Client) {
	<-client.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client {
		return
	}
	s.client = nil
	if !s.userClosed {
		s.lastReason = client.Reason()
		s.setStatus(model.StatusDisconnected)
	}
}

// Disconnect tears the session down. Idempotent; always drives the status
// to disconnected even when no live channel exists, and always succeeds
// from the caller's perspective. In-flight signing and channel-open work
// is abandoned via the attempt context.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.userClosed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	client := s.client
	s.client = nil
	s.lastReason = "disconnected by user"
	s.setStatus(model.StatusDisconnected)
	s.mu.Unlock()

	if client != nil {
		client.Close("disconnected by user")
	}
}

// Send writes raw input bytes to the shell. It is a deliberate no-op, not
// an error, when the session is not connected: transient races between
// keystrokes and teardown are not failures.
func (s *Session) Send(p []byte) {
	s.mu.Lock()
	client := s.client
	connected := s.status == model.StatusConnected
	s.mu.Unlock()
	if !connected || client == nil {
		return
	}
	if _, err := client.Write(p); err != nil {
		logging.Debugf("session: dropped %d input bytes: %v", len(p), err)
	}
}

// SetDimensions caches the requested geometry without touching any live
// channel. The first channel opened after connect uses the most recently
// requested geometry.
func (s *Session) SetDimensions(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cols > 0 {
		s.cols = cols
	}
	if rows > 0 {
		s.rows = rows
	}
}

// Resize caches the geometry and, when a channel is live, forwards it as an
// in-band window-change. Redundant calls are tolerated; each is idempotent
// relative to the current dimensions.
func (s *Session) Resize(cols, rows int) {
	s.SetDimensions(cols, rows)
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return
	}
	if err := client.Resize(cols, rows); err != nil {
		logging.Debugf("session: resize to %dx%d failed: %v", cols, rows, err)
	}
}

// geometry returns the cached dimensions, falling back to the defaults
// only when nothing was ever requested. Callers must hold s.mu.
func (s *Session) geometry() (cols, rows int) {
	cols, rows = s.cols, s.rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	return cols, rows
}

// geometryGetter returns a live accessor for the cached dimensions. The
// channel is opened with whatever was requested last, even when a resize
// lands while the handshake is still in flight.
func (s *Session) geometryGetter() func() (cols, rows int) {
	return func() (int, int) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.geometry()
	}
}

// AttachSink registers the output consumer. Chunks buffered while no sink
// was attached are delivered first, in original arrival order, exactly
// once; live output follows. Attaching replaces any previous sink.
func (s *Session) AttachSink(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = fn
	if fn != nil {
		s.queue.drain(fn)
	}
}

// DetachSink removes the sink; subsequent output buffers again.
func (s *Session) DetachSink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = nil
}

// handleOutput routes one chunk of shell output to the sink, or into the
// pending queue when no sink is attached yet. Chunks arrive from a single
// reader goroutine, so sink calls stay ordered.
func (s *Session) handleOutput(chunk []byte) {
	s.mu.Lock()
	sink := s.sink
	if sink == nil {
		s.queue.push(chunk)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	sink(chunk)
}

// Client exposes the live SSH client for subsystems (SFTP, exec channels)
// sharing this session, or nil when not connected.
func (s *Session) Client() *sshclient.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// PendingChunks reports how many output chunks are currently buffered.
func (s *Session) PendingChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.size()
}
