package store

import (
	"sync"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// MemorySessions holds issued sessions. Validity is checked by callers at use time.
type MemorySessions struct {
	sessions map[string]core.Session
	mu       sync.RWMutex
}

var _ ports.SessionStore = (*MemorySessions)(nil)

// NewMemorySessions creates an empty session store
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{
		sessions: make(map[string]core.Session),
	}
}

// Put stores the session under its ID
func (s *MemorySessions) Put(session *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = *session
}

// Get returns a copy of the session
func (s *MemorySessions) Get(id string) (*core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return &session, true
}

// DeleteByDID drops all sessions bound to did
func (s *MemorySessions) DeleteByDID(did string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, session := range s.sessions {
		if session.DID == did {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
