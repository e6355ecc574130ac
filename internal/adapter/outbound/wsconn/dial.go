// Package wsconn adapts gorilla/websocket connections to the
// wsrelay.Conn port, giving C15's session manager a concrete backend
// dialer. gorilla/websocket's *Conn method set already matches
// wsrelay.Conn exactly, so no wrapper type is needed.
package wsconn

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/wsrelay"
)

var _ wsrelay.Conn = (*websocket.Conn)(nil)

// Dialer wraps a gorilla/websocket.Dialer for dialing backend WebSocket
// connections on behalf of an authorized upgrade (C15).
type Dialer struct {
	inner *websocket.Dialer
}

// NewDialer creates a Dialer backed by gorilla/websocket's DefaultDialer,
// with that dialer's default handshake timeout.
func NewDialer() *Dialer {
	return &Dialer{inner: websocket.DefaultDialer}
}

// Dial opens a WebSocket connection to backendURI, forwarding headers
// (notably Authorization, carrying the AussieToken an upgrade decision
// issued) to the backend during the handshake.
func (d *Dialer) Dial(ctx context.Context, backendURI string, headers http.Header) (wsrelay.Conn, *http.Response, error) {
	conn, resp, err := d.inner.DialContext(ctx, backendURI, headers)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}
