package core

import (
	"strings"
	"time"
)

const (
	// DIDKeyPrefix is the only DID method accepted by the registry
	DIDKeyPrefix = "did:key:"

	// DefaultTTL applies when a registration omits ttl, in seconds
	DefaultTTL uint64 = 3600
)

// Status is the derived liveness of a registry entry
type Status string

const (
	StatusOnline  Status = "online"
	StatusExpired Status = "expired"
)

// RegistryEntry is the endpoint an agent published under its DID
type RegistryEntry struct {
	DID          string `json:"did"`
	Endpoint     string `json:"endpoint"`
	RegisteredAt int64  `json:"registered_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// NewRegistryEntry builds an entry valid for ttl seconds from now
func NewRegistryEntry(did, endpoint string, ttl uint64, now time.Time) *RegistryEntry {
	registeredAt := now.Unix()
	return &RegistryEntry{
		DID:          did,
		Endpoint:     endpoint,
		RegisteredAt: registeredAt,
		ExpiresAt:    registeredAt + int64(ttl),
	}
}

// Status derives liveness at now. Never cached.
func (e *RegistryEntry) Status(now time.Time) Status {
	if now.Unix() > e.ExpiresAt {
		return StatusExpired
	}
	return StatusOnline
}

// ValidateDID is the cheap shape check run before any cryptographic work
func ValidateDID(did string) error {
	if !strings.HasPrefix(did, DIDKeyPrefix) || len(did) == len(DIDKeyPrefix) {
		return ErrInvalidDID
	}
	if strings.ContainsAny(did, " \t\r\n/?#") {
		return ErrInvalidDID
	}
	return nil
}

// Listing is a registry entry with its status derived at read time
type Listing struct {
	RegistryEntry
	Status Status `json:"status"`
}
