// Package cluster implements the Cluster Supervisor (spec §4.10, C9): a
// master process that forks one OS child worker process per configured
// local (host,port) pair, respawns on unexpected exit, and drives a tiered
// graceful shutdown sequence. Grounded on the teacher's spawn-and-supervise
// worker model (pkg/worker) and its health-monitor heartbeat pattern,
// generalized from gRPC health checks to ping/pong over the C7 wire.
package cluster

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/metrics"
)

// WorkerSpec describes one local worker process to fork and supervise.
type WorkerSpec struct {
	PeerID string // "<hostID>-NN"
	Host   string
	Port   int
	// Args builds the command line for the worker binary, given its peer
	// id and bind port.
	Args func(peerID string, port int) []string
	// Binary is the path to the worker executable (typically the same
	// binary re-invoked with a "worker" subcommand).
	Binary string
}

// ShutdownTiers configures the tiered graceful shutdown (spec §4.10):
// a shutdown message is sent first, then after ShutdownTimeout a SIGTERM,
// then after KillTimeout a SIGKILL, the whole sequence bounded by
// MasterTimeout.
type ShutdownTiers struct {
	ShutdownTimeout time.Duration
	KillTimeout     time.Duration
	MasterTimeout   time.Duration
}

// DefaultShutdownTiers mirrors the teacher's graceful-then-forceful
// termination windows.
func DefaultShutdownTiers() ShutdownTiers {
	return ShutdownTiers{
		ShutdownTimeout: 10 * time.Second,
		KillTimeout:     5 * time.Second,
		MasterTimeout:   30 * time.Second,
	}
}

// supervisedProcess tracks one forked worker.
type supervisedProcess struct {
	spec WorkerSpec
	mu   sync.Mutex
	cmd  *exec.Cmd
	// exited is closed exactly once, by supervise's cmd.Wait(), when the
	// current cmd exits. exec.Cmd.Wait must only ever be called once, so
	// every other goroutine that needs to know about process exit (e.g.
	// shutdownOne) waits on this channel instead of calling Wait itself.
	exited chan struct{}

	lastPong time.Time
	stopping bool
}

// Master forks and supervises one OS child process per WorkerSpec.
type Master struct {
	tiers ShutdownTiers
	mu    sync.Mutex
	procs map[string]*supervisedProcess

	// OnStarted, if set, is called after every successful start of a
	// worker process — both the initial Spawn and every later respawn —
	// so callers can (re)establish out-of-band connections (e.g. the
	// heartbeat RPC dial) that would otherwise go stale across a restart.
	OnStarted func(spec WorkerSpec)
}

// NewMaster constructs a Master with the given shutdown tiers.
func NewMaster(tiers ShutdownTiers) *Master {
	return &Master{tiers: tiers, procs: make(map[string]*supervisedProcess)}
}

// Spawn forks the worker described by spec and begins supervising it,
// respawning it under the same peer id if it exits unexpectedly.
func (m *Master) Spawn(ctx context.Context, spec WorkerSpec) error {
	sp := &supervisedProcess{spec: spec, lastPong: time.Now()}
	m.mu.Lock()
	m.procs[spec.PeerID] = sp
	m.mu.Unlock()

	return m.start(ctx, sp)
}

func (m *Master) start(ctx context.Context, sp *supervisedProcess) error {
	args := sp.spec.Args(sp.spec.PeerID, sp.spec.Port)
	cmd := exec.CommandContext(ctx, sp.spec.Binary, args...)

	sp.mu.Lock()
	sp.cmd = cmd
	sp.exited = make(chan struct{})
	sp.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cluster: spawn %s: %w", sp.spec.PeerID, err)
	}

	log.WithPeerID(sp.spec.PeerID).Info().Msg("worker process started")
	go m.supervise(ctx, sp)
	if m.OnStarted != nil {
		m.OnStarted(sp.spec)
	}
	return nil
}

// supervise blocks on the child process's exit and respawns it under the
// same peer id, unless the master is shutting it down intentionally.
func (m *Master) supervise(ctx context.Context, sp *supervisedProcess) {
	sp.mu.Lock()
	cmd := sp.cmd
	exited := sp.exited
	sp.mu.Unlock()

	err := cmd.Wait()
	close(exited)

	sp.mu.Lock()
	stopping := sp.stopping
	sp.mu.Unlock()
	if stopping {
		return
	}

	log.WithPeerID(sp.spec.PeerID).Warn().Err(err).Msg("worker process exited unexpectedly, respawning")
	metrics.WorkerRestartsTotal.WithLabelValues(sp.spec.PeerID).Inc()

	if startErr := m.start(ctx, sp); startErr != nil {
		log.WithPeerID(sp.spec.PeerID).Error().Err(startErr).Msg("respawn failed")
	}
}

// HeartbeatConfig configures the ping/pong liveness check (spec §4.7
// "Heartbeats", §4.10 C9): the master pings every local worker on a fixed
// Interval; a worker whose pong is older than Timeout is assumed dead and
// force-restarted under the same peer id.
type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultHeartbeatConfig mirrors the teacher's health-monitor cadence.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{Interval: 5 * time.Second, Timeout: 15 * time.Second}
}

// MonitorHeartbeats runs until ctx is canceled, sending gs.ping to every
// supervised peer on cfg.Interval via sendPing, and hard-restarting any
// peer whose last pong exceeds cfg.Timeout. The restart reuses the same
// respawn path as an unexpected exit (spec §4.10): killing the process
// unblocks the supervising goroutine's Wait, which then respawns it under
// the same peer id.
func (m *Master) MonitorHeartbeats(ctx context.Context, cfg HeartbeatConfig, sendPing func(peerID string) error) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkHeartbeats(cfg, sendPing)
		}
	}
}

func (m *Master) checkHeartbeats(cfg HeartbeatConfig, sendPing func(peerID string) error) {
	m.mu.Lock()
	procs := make([]*supervisedProcess, 0, len(m.procs))
	for _, sp := range m.procs {
		procs = append(procs, sp)
	}
	m.mu.Unlock()

	for _, sp := range procs {
		sp.mu.Lock()
		stopping := sp.stopping
		stale := time.Since(sp.lastPong) > cfg.Timeout
		sp.mu.Unlock()
		if stopping {
			continue
		}
		if stale {
			log.WithPeerID(sp.spec.PeerID).Warn().Msg("heartbeat lost, restarting worker")
			m.killForRestart(sp)
			continue
		}
		if sendPing == nil {
			continue
		}
		if err := sendPing(sp.spec.PeerID); err != nil {
			log.WithPeerID(sp.spec.PeerID).Warn().Err(err).Msg("heartbeat ping failed")
		}
	}
}

// killForRestart forcibly kills a worker assumed dead. It does not flip
// sp.stopping (that would tell supervise this was an intentional final
// shutdown): killing the process simply unblocks the existing
// supervise() goroutine's cmd.Wait(), which observes the exit as
// unexpected and respawns it via the normal path, incrementing
// WorkerRestartsTotal exactly once. lastPong is reset so the freshly
// spawned process isn't immediately flagged stale again before it has
// had a chance to answer a ping.
func (m *Master) killForRestart(sp *supervisedProcess) {
	sp.mu.Lock()
	cmd := sp.cmd
	sp.lastPong = time.Now()
	sp.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// RecordPong updates the last-seen heartbeat pong time for peerID, called
// by the RPC heartbeat handler.
func (m *Master) RecordPong(peerID string) {
	m.mu.Lock()
	sp, ok := m.procs[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	sp.mu.Lock()
	sp.lastPong = time.Now()
	sp.mu.Unlock()
}

// SampleHeartbeatAge updates the heartbeat-age gauge for every supervised
// peer, for periodic sampling by a ticker.
func (m *Master) SampleHeartbeatAge() {
	m.mu.Lock()
	procs := make([]*supervisedProcess, 0, len(m.procs))
	for _, sp := range m.procs {
		procs = append(procs, sp)
	}
	m.mu.Unlock()

	for _, sp := range procs {
		sp.mu.Lock()
		age := time.Since(sp.lastPong).Seconds()
		sp.mu.Unlock()
		metrics.HeartbeatAge.WithLabelValues(sp.spec.PeerID).Set(age)
	}
}

// Shutdown tears down every supervised worker using the tiered graceful
// shutdown sequence, bounded overall by MasterTimeout.
func (m *Master) Shutdown(shutdownSignal func(peerID string) error) error {
	m.mu.Lock()
	procs := make([]*supervisedProcess, 0, len(m.procs))
	for _, sp := range m.procs {
		procs = append(procs, sp)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, sp := range procs {
		wg.Add(1)
		go func(sp *supervisedProcess) {
			defer wg.Done()
			m.shutdownOne(sp, shutdownSignal)
		}(sp)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(m.tiers.MasterTimeout):
		return fmt.Errorf("cluster: shutdown timed out after %s", m.tiers.MasterTimeout)
	}
}

func (m *Master) shutdownOne(sp *supervisedProcess, shutdownSignal func(peerID string) error) {
	sp.mu.Lock()
	sp.stopping = true
	cmd := sp.cmd
	exited := sp.exited
	sp.mu.Unlock()
	if cmd == nil || cmd.Process == nil || exited == nil {
		return
	}

	if shutdownSignal != nil {
		if err := shutdownSignal(sp.spec.PeerID); err != nil {
			log.WithPeerID(sp.spec.PeerID).Warn().Err(err).Msg("shutdown message failed")
		}
	}

	select {
	case <-exited:
		return
	case <-time.After(m.tiers.ShutdownTimeout):
	}

	log.WithPeerID(sp.spec.PeerID).Warn().Msg("shutdown timeout elapsed, sending SIGTERM")
	cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-exited:
		return
	case <-time.After(m.tiers.KillTimeout):
	}

	log.WithPeerID(sp.spec.PeerID).Error().Msg("kill timeout elapsed, sending SIGKILL")
	cmd.Process.Kill()
	<-exited
}
