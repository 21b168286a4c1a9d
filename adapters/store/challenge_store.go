package store

import (
	"sync"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// MemoryChallenges keeps outstanding challenges until they are taken.
// There is no time-based expiry: a challenge expires by consumption.
type MemoryChallenges struct {
	challenges map[string]core.Challenge
	mu         sync.RWMutex
}

var _ ports.ChallengeStore = (*MemoryChallenges)(nil)

// NewMemoryChallenges creates an empty challenge store
func NewMemoryChallenges() *MemoryChallenges {
	return &MemoryChallenges{
		challenges: make(map[string]core.Challenge),
	}
}

// Put stores the challenge under its hash
func (s *MemoryChallenges) Put(hash string, challenge *core.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[hash] = *challenge
}

// Take removes and returns the challenge, so at most one caller gets it
func (s *MemoryChallenges) Take(hash string) (*core.Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[hash]
	if !ok {
		return nil, false
	}
	delete(s.challenges, hash)
	return &challenge, true
}

// Len returns the number of outstanding challenges
func (s *MemoryChallenges) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.challenges)
}
