package rpc

import (
	"encoding/json"
	"sync"
)

// methodCallParams is the wire shape for a remote entity method call.
type methodCallParams struct {
	EntityID string          `json:"entityId"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args"`
}

// propertySnapshot is a cached last-seen value for a remotely owned
// entity's property, written only through UpdateSnapshot.
type propertySnapshot struct {
	mu     sync.RWMutex
	values map[string]map[string]any // entityID -> property name -> value
}

// RemoteProxy intercepts operations on entities whose shard owner is a
// different peer: reads answer from the last-seen snapshot, and calls
// dispatch over the peer's wire Conn.
type RemoteProxy struct {
	conns map[string]*Conn // peerID -> Conn
	snap  *propertySnapshot
	mu    sync.RWMutex
}

// NewRemoteProxy constructs an empty RemoteProxy.
func NewRemoteProxy() *RemoteProxy {
	return &RemoteProxy{
		conns: make(map[string]*Conn),
		snap:  &propertySnapshot{values: make(map[string]map[string]any)},
	}
}

// SetConn registers (or replaces) the wire connection used to reach
// peerID.
func (p *RemoteProxy) SetConn(peerID string, conn *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[peerID] = conn
}

// RemoveConn drops the connection for peerID, e.g. after the peer is
// marked dead by the cluster supervisor.
func (p *RemoteProxy) RemoveConn(peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, peerID)
}

// Close deregisters every peer connection and calls Conn.Close on each,
// which stops its timeout sweeper; the underlying streams are not closed.
// Used by the worker runtime's shutdown sequence (spec §4.11: "shut down
// RPC" after RQs have drained).
func (p *RemoteProxy) Close() {
	p.mu.Lock()
	conns := make([]*Conn, 0, len(p.conns))
	for id, c := range p.conns {
		conns = append(conns, c)
		delete(p.conns, id)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (p *RemoteProxy) connFor(peerID string) (*Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[peerID]
	return c, ok
}

// Call dispatches method(args) against entityID, owned by peerID, over the
// wire, and returns the decoded result.
func (p *RemoteProxy) Call(peerID, entityID, method string, args any) (json.RawMessage, error) {
	conn, ok := p.connFor(peerID)
	if !ok {
		return nil, ErrNoConnection{PeerID: peerID}
	}

	argData, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	result, err := conn.Call("entity.call", methodCallParams{
		EntityID: entityID,
		Method:   method,
		Args:     argData,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PropertyRead returns the last-seen snapshot value for a remote entity's
// property, without a round trip. Values come only from UpdateSnapshot;
// Call does not refresh them.
func (p *RemoteProxy) PropertyRead(entityID, name string) (any, bool) {
	p.snap.mu.RLock()
	defer p.snap.mu.RUnlock()
	props, ok := p.snap.values[entityID]
	if !ok {
		return nil, false
	}
	v, ok := props[name]
	return v, ok
}

// UpdateSnapshot records a fresh last-seen property value for entityID,
// called after a remote Call result reports current property state.
func (p *RemoteProxy) UpdateSnapshot(entityID, name string, value any) {
	p.snap.mu.Lock()
	defer p.snap.mu.Unlock()
	props, ok := p.snap.values[entityID]
	if !ok {
		props = make(map[string]any)
		p.snap.values[entityID] = props
	}
	props[name] = value
}

// ErrNoConnection is returned when no wire Conn is registered for a peer.
type ErrNoConnection struct{ PeerID string }

func (e ErrNoConnection) Error() string {
	return "rpc: no connection to peer " + e.PeerID
}
