package ports

import "github.com/layer-3/reach/core"

// RegistryStore holds one endpoint record per DID
type RegistryStore interface {
	// Register upserts the entry keyed by its DID
	Register(entry *core.RegistryEntry)
	// Lookup returns the stored entry verbatim, stale ones included
	Lookup(did string) (*core.RegistryEntry, bool)
	// Deregister removes the entry and reports whether it existed
	Deregister(did string) bool
}

// ChallengeStore holds outstanding single-use challenges keyed by hash
type ChallengeStore interface {
	Put(hash string, challenge *core.Challenge)
	// Take atomically removes and returns the challenge
	Take(hash string) (*core.Challenge, bool)
}

// SessionStore holds sessions issued after a successful handshake
type SessionStore interface {
	Put(session *core.Session)
	Get(id string) (*core.Session, bool)
	// DeleteByDID drops every session bound to did and returns how many
	DeleteByDID(did string) int
}
