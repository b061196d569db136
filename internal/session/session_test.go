// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"context"
	"testing"

	"github.com/castellan-dev/castellan/internal/model"
	"github.com/castellan-dev/castellan/internal/tunnel"
)

func newTestSession() *Session {
	return New(Config{
		Host:     "target.internal",
		Port:     22,
		Username: "alice",
		// An unparseable relay URL makes dialing fail immediately, without
		// touching the network.
		Dialer: &tunnel.Dialer{RelayURL: "://bad"},
	})
}

func TestNewSessionStartsDisconnected(t *testing.T) {
	s := newTestSession()
	if got := s.Status(); got != model.StatusDisconnected {
		t.Errorf("Status() = %q, want disconnected", got)
	}
}

func TestResizeBeforeConnectCachesGeometry(t *testing.T) {
	s := newTestSession()

	// Resizing with no live channel must not error or panic; the values
	// are cached for the next connect.
	s.Resize(120, 40)

	s.mu.Lock()
	cols, rows := s.geometry()
	s.mu.Unlock()
	if cols != 120 || rows != 40 {
		t.Errorf("geometry() = %dx%d, want 120x40", cols, rows)
	}
}

func TestGeometryDefaultsWhenNeverRequested(t *testing.T) {
	s := newTestSession()
	s.mu.Lock()
	cols, rows := s.geometry()
	s.mu.Unlock()
	if cols != DefaultCols || rows != DefaultRows {
		t.Errorf("geometry() = %dx%d, want %dx%d", cols, rows, DefaultCols, DefaultRows)
	}
}

func TestGeometryIgnoresNonPositiveDimensions(t *testing.T) {
	s := newTestSession()
	s.SetDimensions(100, 30)
	s.SetDimensions(0, -1)

	s.mu.Lock()
	cols, rows := s.geometry()
	s.mu.Unlock()
	if cols != 100 || rows != 30 {
		t.Errorf("geometry() = %dx%d, want last valid 100x30", cols, rows)
	}
}

func TestResizeDuringHandshakeReachesFirstChannel(t *testing.T) {
	s := newTestSession()
	s.SetDimensions(100, 30)

	// The getter handed to the SSH layer is read right before the PTY is
	// requested, so a resize landing mid-handshake must win over whatever
	// was cached when the attempt started.
	get := s.geometryGetter()
	s.Resize(173, 41)

	cols, rows := get()
	if cols != 173 || rows != 41 {
		t.Errorf("geometry at channel open = %dx%d, want 173x41", cols, rows)
	}
}

func TestSendIsNoOpWhenDisconnected(t *testing.T) {
	s := newTestSession()
	// Must neither panic nor error.
	s.Send([]byte("ls -la\n"))
}

func TestConnectFailureSetsErrorStatus(t *testing.T) {
	s := newTestSession()
	statusCh := s.Subscribe()

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against an invalid relay, want error")
	}
	if got := s.Status(); got != model.StatusError {
		t.Errorf("Status() = %q, want error", got)
	}
	if s.LastReason() == "" {
		t.Error("LastReason() empty, want failure cause")
	}

	// The observer sees connecting before the failure.
	if got := <-statusCh; got != model.StatusConnecting {
		t.Errorf("first observed status = %q, want connecting", got)
	}
	if got := <-statusCh; got != model.StatusError {
		t.Errorf("second observed status = %q, want error", got)
	}
}

func TestConnectRejectedWhileInProgress(t *testing.T) {
	s := newTestSession()

	// Force an in-progress state the way an ongoing attempt would.
	s.mu.Lock()
	s.setStatus(model.StatusAuthenticating)
	s.mu.Unlock()

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded during an in-progress attempt, want rejection")
	}
	if got := s.Status(); got != model.StatusAuthenticating {
		t.Errorf("Status() = %q, want in-progress attempt undisturbed", got)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := newTestSession()
	s.Disconnect()
	s.Disconnect()
	if got := s.Status(); got != model.StatusDisconnected {
		t.Errorf("Status() = %q, want disconnected", got)
	}
	if got := s.LastReason(); got != "disconnected by user" {
		t.Errorf("LastReason() = %q, want user disconnect reason", got)
	}
}

func TestOutputBuffersUntilSinkAttaches(t *testing.T) {
	s := newTestSession()

	s.handleOutput([]byte("first "))
	s.handleOutput([]byte("second"))
	if got := s.PendingChunks(); got != 2 {
		t.Fatalf("PendingChunks() = %d, want 2", got)
	}

	var got string
	s.AttachSink(func(chunk []byte) { got += string(chunk) })
	if got != "first second" {
		t.Errorf("drained output = %q, want buffered chunks in order", got)
	}
	if s.PendingChunks() != 0 {
		t.Errorf("PendingChunks() after attach = %d, want 0", s.PendingChunks())
	}

	// Live output now flows straight through.
	s.handleOutput([]byte(" third"))
	if got != "first second third" {
		t.Errorf("output after live chunk = %q", got)
	}

	// Detaching buffers again.
	s.DetachSink()
	s.handleOutput([]byte("fourth"))
	if s.PendingChunks() != 1 {
		t.Errorf("PendingChunks() after detach = %d, want 1", s.PendingChunks())
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	s := newTestSession()
	ch := s.Subscribe()
	other := s.Subscribe()
	s.Unsubscribe(ch)

	s.mu.Lock()
	s.setStatus(model.StatusConnecting)
	s.mu.Unlock()

	select {
	case st, ok := <-ch:
		if ok {
			t.Errorf("received %q after Unsubscribe", st)
		}
	default:
		t.Error("channel not closed after Unsubscribe")
	}

	// Remaining observers are unaffected.
	select {
	case st := <-other:
		if st != model.StatusConnecting {
			t.Errorf("remaining observer saw %q, want connecting", st)
		}
	default:
		t.Error("remaining observer received nothing")
	}

	// Unknown channels are ignored.
	s.Unsubscribe(make(chan model.ConnectionStatus))
}

func TestSubscribeDoesNotBlockOnSlowObserver(t *testing.T) {
	s := newTestSession()
	s.Subscribe() // never read

	s.mu.Lock()
	// More transitions than the subscription buffer holds.
	for i := 0; i < 20; i++ {
		s.setStatus(model.StatusConnecting)
		s.setStatus(model.StatusDisconnected)
	}
	s.mu.Unlock()
	// Reaching this point without deadlock is the assertion.
}
