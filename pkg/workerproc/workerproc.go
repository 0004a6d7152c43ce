// Package workerproc implements the Worker Runtime (spec §4.11, C10): the
// serialized startup/shutdown sequencing of one worker process's
// subsystems. Named workerproc rather than worker to keep the
// package-per-concern layout without colliding with the teacher's
// container-task vocabulary.
package workerproc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/worldgs/gameserver/pkg/cache"
	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/metrics"
	"github.com/worldgs/gameserver/pkg/queue"
	"github.com/worldgs/gameserver/pkg/rpc"
	"github.com/worldgs/gameserver/pkg/script"
	"github.com/worldgs/gameserver/pkg/session"
	"github.com/worldgs/gameserver/pkg/shard"
	"github.com/worldgs/gameserver/pkg/storage"
	"github.com/worldgs/gameserver/pkg/types"
)

// rpcTimeout bounds how long an outbound peer call waits before the
// sweeper fails it (spec §4.8).
const rpcTimeout = 30 * time.Second

// Config configures one worker process.
type Config struct {
	PeerID  string
	Peers   map[string]string // peerID -> dial address ("host:port"), excluding PeerID itself
	DataDir string
	// ListenAddr is the address this worker binds for inbound peer and
	// supervisor connections. Empty disables listening (single-node tests).
	ListenAddr  string
	MetricsAddr string // empty disables the metrics HTTP endpoint
	ScriptHost  script.Host
}

// Runtime holds the fully initialized subsystems of one worker process.
type Runtime struct {
	cfg Config

	Store      storage.Store
	Cache      *cache.Cache
	Router     *shard.Router
	Queues     *queue.Directory
	Remote     *rpc.RemoteProxy
	Sessions   *session.Manager
	Script     script.Host
	Dispatcher *session.Dispatcher

	listener      *rpc.Listener
	metricsServer *http.Server
}

// New constructs an uninitialized Runtime from cfg.
func New(cfg Config) *Runtime {
	return &Runtime{cfg: cfg}
}

// Start runs the serialized startup sequence: storage and cache
// initialization, script host init, RPC scaffolding, the RQ directory and
// session manager, and (if configured) the metrics HTTP endpoint. Each
// step's error aborts startup immediately, matching the teacher's
// fail-fast NewWorker chain.
func (r *Runtime) Start(ctx context.Context) error {
	r.Store = storage.NewBoltStore(r.cfg.DataDir, nil)
	if err := r.Store.Open(ctx); err != nil {
		return fmt.Errorf("workerproc: storage init: %w", err)
	}
	r.Cache = cache.New(r.Store)

	r.Script = r.cfg.ScriptHost
	if r.Script == nil {
		r.Script = script.NopHost{}
	}
	if err := r.Script.Start(ctx); err != nil {
		return fmt.Errorf("workerproc: script host init: %w", err)
	}

	peerIDs := make([]string, 0, len(r.cfg.Peers))
	for id := range r.cfg.Peers {
		peerIDs = append(peerIDs, id)
	}
	r.Router = shard.NewRouter(r.cfg.PeerID, peerIDs)
	r.Remote = rpc.NewRemoteProxy()
	r.Queues = queue.NewDirectory()
	r.Sessions = session.NewManager()
	r.Dispatcher = session.NewDispatcher(r.Router, r.Queues, r.Remote, r.locateEntity, r.dispatchLocal)

	if err := r.startPeerRPC(); err != nil {
		return err
	}

	if r.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		r.metricsServer = &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithPeerID(r.cfg.PeerID).Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	log.WithPeerID(r.cfg.PeerID).Info().Msg("worker runtime started")
	return nil
}

// startPeerRPC opens the inbound peer listener (if configured) and dials
// every peer this side owns the dial direction for (spec §4.11: "RPC
// connections to peers, inbound handler registration"). The accepting
// side learns the dialing peer's id from the handshake frame, so both
// directions end up registered in Remote identically.
func (r *Runtime) startPeerRPC() error {
	handler := r.inboundRPCHandler()

	if r.cfg.ListenAddr != "" {
		ln, err := rpc.Listen(r.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("workerproc: rpc listen: %w", err)
		}
		r.listener = ln
		go ln.Serve(handler, rpcTimeout, func(peerID string, conn *rpc.Conn) {
			r.Remote.SetConn(peerID, conn)
		})
	}

	for peerID, addr := range r.cfg.Peers {
		if !rpc.ShouldDial(r.cfg.PeerID, peerID) {
			continue
		}
		go r.dialPeerWithRetry(peerID, addr, handler)
	}
	return nil
}

// dialPeerWithRetry dials a peer this side owns the dial direction for,
// retrying on a short interval: peers in a cluster do not all finish
// starting their listener at the same instant, so Start does not block
// waiting for every peer to already be up.
func (r *Runtime) dialPeerWithRetry(peerID, addr string, handler rpc.Handler) {
	for attempt := 0; attempt < 25; attempt++ {
		conn, err := rpc.Dial(addr, r.cfg.PeerID, peerID, handler, rpcTimeout)
		if err == nil {
			r.Remote.SetConn(peerID, conn)
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	log.WithPeerID(r.cfg.PeerID).Warn().Str("peer", peerID).
		Msg("peer dial retries exhausted, entity.call to that peer will fail until it reconnects")
}

// inboundRPCHandler answers calls arriving from other peers: a supervisor
// heartbeat ping, or an entity method call that this worker is expected to
// own. The call is pushed onto the target's RQ so it is serialized with
// this worker's own local traffic before acknowledging; the scripted
// behavior the method ultimately runs is supplied by the script host,
// which is specified only as an interface (spec §4.13).
func (r *Runtime) inboundRPCHandler() rpc.Handler {
	return func(method string, params json.RawMessage) (any, error) {
		switch method {
		case "gs.ping":
			return map[string]any{"pong": true}, nil
		case "entity.call":
			var call struct {
				EntityID string          `json:"entityId"`
				Method   string          `json:"method"`
				Args     json.RawMessage `json:"args"`
			}
			if err := json.Unmarshal(params, &call); err != nil {
				return nil, fmt.Errorf("workerproc: decode entity.call: %w", err)
			}
			rq := r.Queues.Get(call.EntityID)
			done := make(chan struct{})
			rq.Push(call.Method, func() {}, func() { close(done) }, queue.PushOpts{})
			<-done
			return map[string]any{"ok": true}, nil
		default:
			return nil, fmt.Errorf("workerproc: unknown inbound method %q", method)
		}
	}
}

// locateEntity resolves an entity through the persistence cache for the
// dispatcher's relationship-routing lookups (spec §3); reads are not
// ownership-gated, so this may legitimately load an id this worker does
// not itself own.
func (r *Runtime) locateEntity(id string) (*types.Entity, error) {
	return r.Cache.Get(context.Background(), id)
}

// dispatchLocal is the default handler for client messages the dispatcher
// has resolved to a locally owned RQ: it serializes the call through the
// target's RQ. As with inboundRPCHandler, the scripted method body itself
// is supplied by the script host.
func (r *Runtime) dispatchLocal(rq *queue.RQ, msg session.ClientMessage, s *session.Session) {
	rq.Push(msg.Method, func() {}, func() {}, queue.PushOpts{})
}

// Stop runs the serialized shutdown sequence of spec §4.11: drain and
// close all RQs, shut down RPC, flush and close persistence, then stop
// auxiliary subsystems (metrics server, script host) in parallel at the
// end, matching the teacher's Worker.Stop ordering generalized to this
// runtime's subsystem set. Accepting new client connections and closing
// the client transport are out of scope (external collaborator, spec §1).
func (r *Runtime) Stop(ctx context.Context) error {
	var errs []error

	if r.Queues != nil {
		r.Queues.DrainAll()
	}
	if r.listener != nil {
		if err := r.listener.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rpc listener close: %w", err))
		}
	}
	if r.Remote != nil {
		r.Remote.Close()
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	if r.metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(r.metricsServer.Shutdown(ctx))
		}()
	}
	if r.Script != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(r.Script.Stop(ctx))
		}()
	}
	wg.Wait()

	log.WithPeerID(r.cfg.PeerID).Info().Msg("worker runtime stopped")
	if len(errs) > 0 {
		return fmt.Errorf("workerproc: shutdown errors: %v", errs)
	}
	return nil
}
