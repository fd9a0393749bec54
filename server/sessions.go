package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/lox/vm"
)

// DefaultSession is the id of the session serving requests that name none.
const DefaultSession = "default"

// Session is an independent interpreter: its own VM, heap and globals,
// reached only through its worker.
type Session struct {
	ID      string
	Name    string
	Created time.Time
	Worker  *VMWorker
}

// SessionStore manages sessions. The default session always exists.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newVM    func() *vm.VM
}

// NewSessionStore creates a store whose sessions get VMs from newVM.
func NewSessionStore(newVM func() *vm.VM) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*Session),
		newVM:    newVM,
	}
	s.sessions[DefaultSession] = s.open(DefaultSession, DefaultSession)
	return s
}

func (s *SessionStore) open(id, name string) *Session {
	return &Session{
		ID:      id,
		Name:    name,
		Created: time.Now(),
		Worker:  NewVMWorker(s.newVM()),
	}
}

// Create starts a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	session := s.open(uuid.NewString(), name)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Info("session created", "session", session.ID, "vm", session.Worker.VM().ID.String())
	return session
}

// Get retrieves a session by ID. The empty id names the default session.
func (s *SessionStore) Get(id string) (*Session, bool) {
	if id == "" {
		id = DefaultSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy stops a session's worker and forgets it. The default session
// cannot be destroyed; Destroy reports whether a session was removed.
func (s *SessionStore) Destroy(id string) bool {
	if id == DefaultSession || id == "" {
		return false
	}

	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.Worker.Stop()
		log.Info("session destroyed", "session", id)
	}
	return ok
}

// Len returns the number of live sessions, the default included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StopAll stops every session's worker.
func (s *SessionStore) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		session.Worker.Stop()
	}
}
