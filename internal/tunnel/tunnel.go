// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// package tunnel dials the external WebSocket relay and exposes the result
// as an ordinary net.Conn bound to one destination host:port. The relay's
// wire framing is its own business; this package only assumes it delivers
// bytes in order and signals close/error.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/castellan-dev/castellan/internal/model"
)

// DefaultDialTimeout bounds how long a relay dial may take before it is
// reported as a transport failure.
const DefaultDialTimeout = 10 * time.Second

// readLimit caps a single relay message. Shell output arrives in small
// chunks; anything larger indicates a misbehaving relay.
const readLimit = 4 * 1024 * 1024

// Dialer opens tunnels through one relay endpoint.
type Dialer struct {
	// RelayURL is the relay base URL, e.g. "wss://relay.example.com".
	RelayURL string
	// DialTimeout overrides DefaultDialTimeout when non-zero.
	DialTimeout time.Duration
}

// Dial opens a byte tunnel to host:port through the relay. The returned
// net.Conn carries raw TCP payload; closing it closes the relay leg.
func (d *Dialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	u, err := url.Parse(d.RelayURL)
	if err != nil {
		return nil, &model.TransportError{Op: "dial", Err: fmt.Errorf("invalid relay url %q: %w", d.RelayURL, err)}
	}
	u.Path = "/tunnel"
	q := u.Query()
	q.Set("host", host)
	q.Set("port", strconv.Itoa(port))
	u.RawQuery = q.Encode()

	timeout := d.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wsConn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return nil, &model.TransportError{Op: "dial", Err: fmt.Errorf("relay dial %s: %w", u.Host, err)}
	}
	wsConn.SetReadLimit(readLimit)

	// NetConn adapts the message stream to a net.Conn. Binary messages
	// carry the raw TCP payload. The background context keeps the conn
	// usable after the dial context is done; the session owns its close.
	return websocket.NetConn(context.Background(), wsConn, websocket.MessageBinary), nil
}
