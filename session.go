package reach

import (
	"sync"
	"time"

	"github.com/layer-3/reach/core"
)

// sessionRefreshMargin renews a cached session shortly before the registry would expire it
const sessionRefreshMargin = 10 * time.Second

// session caches the credential returned by a successful proof
type session struct {
	mu       sync.Mutex
	token    string
	obtained time.Time
}

// get returns the cached token if it is still comfortably inside the session window
func (s *session) get(now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return "", false
	}
	if now.Sub(s.obtained) > core.SessionTTL-sessionRefreshMargin {
		return "", false
	}
	return s.token, true
}

func (s *session) set(token string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.obtained = now
}

func (s *session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.obtained = time.Time{}
}
