package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []any
	fail bool
}

func (c *fakeConn) Send(msg any) error {
	if c.fail {
		return assert.AnError
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}
func (c *fakeConn) Close() error { return nil }

func TestManagerNewSessionAssignsUniqueIDs(t *testing.T) {
	m := NewManager()
	s1 := m.NewSession(&fakeConn{})
	s2 := m.NewSession(&fakeConn{})
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, m.Len())
}

func TestManagerRemoveClosesAndUnregisters(t *testing.T) {
	m := NewManager()
	conn := &fakeConn{}
	s := m.NewSession(conn)
	m.Remove(s.ID)

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestForEachSessionBoundsConcurrency(t *testing.T) {
	m := NewManager()
	for i := 0; i < 50; i++ {
		m.NewSession(&fakeConn{})
	}

	var current, maxSeen int32
	var mu sync.Mutex
	done := make(chan struct{})

	m.ForEachSession(func(s *Session) {
		n := atomic.AddInt32(&current, 1)
		mu.Lock()
		if n > int32(maxSeen) {
			maxSeen = n
		}
		mu.Unlock()
		atomic.AddInt32(&current, -1)
	}, func() { close(done) })

	<-done
	assert.LessOrEqual(t, int(maxSeen), maxConcurrentFanOut)
}

func TestSendToAllSwallowsPerSessionErrors(t *testing.T) {
	m := NewManager()
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	m.NewSession(good)
	m.NewSession(bad)

	require.NotPanics(t, func() {
		m.SendToAll("hello")
	})
}

func TestSessionActivateSetsOwner(t *testing.T) {
	m := NewManager()
	s := m.NewSession(&fakeConn{})
	s.Activate("P1")
	assert.Equal(t, "P1", s.OwnerID)
}
