// Package session implements the Session Manager (spec §4.9, C8): tracks
// connected client sessions, fans out broadcasts bounded to a fixed
// concurrency, and routes inbound client messages to the owning RQ (local)
// or the remote peer (via pkg/rpc), generalized from the teacher's
// events.Broker buffered fan-out into a bounded-concurrency variant.
package session

import (
	"math/big"
	"sync"

	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/metrics"
	"github.com/google/uuid"
)

// sessionState mirrors the session lifecycle machine of spec §3:
// connecting, active once the owning entity is resolved, closing while a
// final flush is in flight, closed once torn down.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosing
	stateClosed
)

// Conn is the minimal transport surface a Session needs: something the
// manager can push framed messages to and tear down. Concrete wire
// transports are out of scope (spec Non-goals); callers supply their own
// implementation.
type Conn interface {
	Send(msg any) error
	Close() error
}

// Session is one connected client.
type Session struct {
	ID      string
	OwnerID string // the player entity id this session is bound to, once active

	mu    sync.Mutex
	state sessionState
	conn  Conn
}

func newSession(conn Conn) *Session {
	return &Session{ID: newSessionID(), conn: conn, state: stateConnecting}
}

// newSessionID derives a short base-36 session id from the low 64 bits of
// a fresh UUID (a concrete resolution of an Open Question the spec left
// implicit about session id shape).
func newSessionID() string {
	id := uuid.New()
	low := new(big.Int).SetBytes(id[8:])
	return low.Text(36)
}

// Activate binds the session to owner once the connecting handshake
// resolves an entity to attach to.
func (s *Session) Activate(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OwnerID = owner
	s.state = stateActive
}

// Send pushes msg to the session's transport and returns the transport's
// error; a closed session (or one without a transport) drops msg and
// returns nil. SendToAll is what logs and swallows per-session errors.
func (s *Session) Send(msg any) error {
	s.mu.Lock()
	conn := s.conn
	st := s.state
	s.mu.Unlock()
	if st == stateClosed || conn == nil {
		return nil
	}
	return conn.Send(msg)
}

func (s *Session) beginClose() {
	s.mu.Lock()
	s.state = stateClosing
	s.mu.Unlock()
}

func (s *Session) finishClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.state = stateClosed
}

// maxConcurrentFanOut bounds how many sessions SendToAll/ForEachSession
// touch at once.
const maxConcurrentFanOut = 10

// Manager tracks all connected sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs an empty session Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// NewSession registers a new connecting session over conn.
func (m *Manager) NewSession(conn Conn) *Session {
	s := newSession(conn)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metrics.SessionsActive.Set(float64(m.Len()))
	return s
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove closes and unregisters a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.beginClose()
		s.finishClose()
	}
	metrics.SessionsActive.Set(float64(m.Len()))
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// snapshot returns the current sessions as a slice, safe to range over
// without holding the manager lock.
func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// ForEachSession invokes fn for every registered session, running at most
// maxConcurrentFanOut invocations concurrently. done is called once all
// invocations have returned.
func (m *Manager) ForEachSession(fn func(s *Session), done func()) {
	sessions := m.snapshot()
	sem := make(chan struct{}, maxConcurrentFanOut)
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		sem <- struct{}{}
		go func(s *Session) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(s)
		}(s)
	}
	wg.Wait()
	if done != nil {
		done()
	}
}

// SendToAll broadcasts msg to every session, bounded to
// maxConcurrentFanOut concurrent sends, swallowing per-session errors.
func (m *Manager) SendToAll(msg any) {
	m.ForEachSession(func(s *Session) {
		if err := s.Send(msg); err != nil {
			log.WithComponent("session").Warn().Err(err).Str("session_id", s.ID).
				Msg("failed to deliver broadcast")
		}
	}, nil)
}
