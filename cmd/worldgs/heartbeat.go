package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/worldgs/gameserver/pkg/cluster"
	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/rpc"
)

// heartbeatDialer maintains the master's own RPC connections to every
// worker it supervises, carrying nothing but gs.ping/pong (spec §4.10).
// It is not a shard peer: it never touches a RemoteProxy, which is the
// worker-to-worker wiring owned by pkg/workerproc.
type heartbeatDialer struct {
	master *cluster.Master

	mu    sync.Mutex
	conns map[string]*rpc.Conn
}

func newHeartbeatDialer(m *cluster.Master) *heartbeatDialer {
	return &heartbeatDialer{master: m, conns: make(map[string]*rpc.Conn)}
}

// onStarted is cluster.Master's OnStarted hook: it (re)dials the freshly
// (re)started worker's RPC listener, retrying while the worker finishes
// its own startup sequence, and replaces any stale connection left over
// from a prior incarnation of the same peer id.
func (h *heartbeatDialer) onStarted(spec cluster.WorkerSpec) {
	addr := fmt.Sprintf("%s:%d", spec.Host, spec.Port)
	go func() {
		var conn *rpc.Conn
		for attempt := 0; attempt < 25; attempt++ {
			c, err := rpc.Dial(addr, "master", spec.PeerID, rejectInboundCalls, 5*time.Second)
			if err == nil {
				conn = c
				break
			}
			time.Sleep(200 * time.Millisecond)
		}
		if conn == nil {
			log.WithPeerID(spec.PeerID).Warn().Msg("master could not establish heartbeat connection")
			return
		}

		h.mu.Lock()
		old := h.conns[spec.PeerID]
		h.conns[spec.PeerID] = conn
		h.mu.Unlock()
		if old != nil {
			old.Close()
		}
	}()
}

// sendPing is cluster.Master's heartbeat ping function: it calls gs.ping
// over the maintained connection and records the pong on success.
func (h *heartbeatDialer) sendPing(peerID string) error {
	h.mu.Lock()
	conn := h.conns[peerID]
	h.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no heartbeat connection to %s", peerID)
	}
	if _, err := conn.Call("gs.ping", nil); err != nil {
		return err
	}
	h.master.RecordPong(peerID)
	return nil
}

func (h *heartbeatDialer) closeAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*rpc.Conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// rejectInboundCalls answers the worker side of the handshake: the master
// never expects an inbound call over its heartbeat connection.
func rejectInboundCalls(method string, params json.RawMessage) (any, error) {
	return nil, fmt.Errorf("master: unexpected inbound call %q", method)
}
