package cluster

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess isn't a real test; it's invoked as a subprocess by the
// tests below via the standard os.Args[0] re-exec trick, so we don't need
// a real worker binary on disk.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("WORLDGS_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("WORLDGS_HELPER_EXIT_IMMEDIATELY") == "1" {
		os.Exit(0)
	}
	select {}
}

func helperArgs(extraEnv ...string) (string, []string) {
	return os.Args[0], []string{"-test.run=TestHelperProcess", "--"}
}

func TestMasterSpawnStartsProcess(t *testing.T) {
	m := NewMaster(ShutdownTiers{
		ShutdownTimeout: 50 * time.Millisecond,
		KillTimeout:     50 * time.Millisecond,
		MasterTimeout:   2 * time.Second,
	})
	bin, baseArgs := helperArgs()

	spec := WorkerSpec{
		PeerID: "host-00",
		Args: func(peerID string, port int) []string {
			return baseArgs
		},
		Binary: bin,
	}

	os.Setenv("WORLDGS_WANT_HELPER_PROCESS", "1")
	defer os.Unsetenv("WORLDGS_WANT_HELPER_PROCESS")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Spawn(ctx, spec))

	m.RecordPong("host-00")
	m.SampleHeartbeatAge()

	err := m.Shutdown(nil)
	assert.NoError(t, err)
}

func TestHeartbeatTimeoutRestartsWorkerOnceUnderSamePeerID(t *testing.T) {
	m := NewMaster(ShutdownTiers{
		ShutdownTimeout: 50 * time.Millisecond,
		KillTimeout:     50 * time.Millisecond,
		MasterTimeout:   2 * time.Second,
	})
	bin, baseArgs := helperArgs()

	var starts int32
	spec := WorkerSpec{
		PeerID: "host-00",
		Args: func(peerID string, port int) []string {
			atomic.AddInt32(&starts, 1)
			return baseArgs
		},
		Binary: bin,
	}

	os.Setenv("WORLDGS_WANT_HELPER_PROCESS", "1")
	defer os.Unsetenv("WORLDGS_WANT_HELPER_PROCESS")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Spawn(ctx, spec))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&starts) == 1 }, time.Second, time.Millisecond)

	// Force the recorded pong far enough in the past to look stale.
	m.mu.Lock()
	sp := m.procs["host-00"]
	m.mu.Unlock()
	sp.mu.Lock()
	sp.lastPong = time.Now().Add(-time.Hour)
	sp.mu.Unlock()

	m.checkHeartbeats(HeartbeatConfig{Timeout: time.Millisecond}, nil)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&starts) == 2 }, 2*time.Second, 5*time.Millisecond,
		"exactly one respawn expected after heartbeat loss")

	assert.NoError(t, m.Shutdown(nil))
}

func TestDefaultShutdownTiersAreOrdered(t *testing.T) {
	tiers := DefaultShutdownTiers()
	assert.Less(t, tiers.KillTimeout, tiers.MasterTimeout)
	assert.Less(t, tiers.ShutdownTimeout, tiers.MasterTimeout)
	assert.Greater(t, tiers.MasterTimeout, time.Duration(0))
}
