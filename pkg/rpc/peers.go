package rpc

import (
	"fmt"
	"net"
	"time"
)

// hello is the one-shot handshake frame a dialing peer sends immediately
// after connecting, so the accepting side learns which configured peer id
// owns the new connection before wrapping it as a Conn.
type hello struct {
	PeerID string `json:"peerId"`
}

// ShouldDial breaks the symmetric tie for a peer pair: exactly one side
// dials, the other accepts, picked by lexicographic peer id order so both
// sides agree without any coordination (matching the teacher's symmetric
// peer model, where every pair connects exactly once regardless of which
// side starts first).
func ShouldDial(self, other string) bool {
	return self < other
}

// Dial opens a TCP connection to addr, identifies selfPeerID to the
// accepting side, and wraps the connection as a Conn reachable as
// remotePeerID.
func Dial(addr, selfPeerID, remotePeerID string, handler Handler, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	if err := NewFrameWriter(nc).WriteFrame(hello{PeerID: selfPeerID}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("rpc: handshake with %s: %w", addr, err)
	}
	return NewConn(remotePeerID, nc, handler, timeout), nil
}

// Listener accepts inbound peer connections on a bound TCP address.
type Listener struct {
	ln net.Listener
}

// Listen binds addr for inbound peer connections.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Accept blocks for one inbound connection, reads its handshake frame, and
// returns the dialing peer's id alongside a Conn wrapping the connection.
func (l *Listener) Accept(handler Handler, timeout time.Duration) (peerID string, conn *Conn, err error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return "", nil, err
	}
	var h hello
	if err := NewFrameReader(nc).ReadFrame(&h); err != nil {
		nc.Close()
		return "", nil, fmt.Errorf("rpc: handshake read failed: %w", err)
	}
	return h.PeerID, NewConn(h.PeerID, nc, handler, timeout), nil
}

// Serve accepts connections until the listener is closed, handing each
// identified peer connection to onConn. It returns once Accept starts
// failing (normally because Close was called).
func (l *Listener) Serve(handler Handler, timeout time.Duration, onConn func(peerID string, conn *Conn)) {
	for {
		peerID, conn, err := l.Accept(handler, timeout)
		if err != nil {
			return
		}
		onConn(peerID, conn)
	}
}
