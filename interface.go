package reach

import (
	"context"

	"github.com/layer-3/reach/core"
)

// Client represents the public interface for interacting with the registry
type Client interface {
	// DID returns the identity this client acts as
	DID() string

	// Authenticate runs the hello/proof handshake and caches the session
	Authenticate(ctx context.Context) error

	// Register publishes endpoint for ttl seconds; nil ttl uses the registry default
	Register(ctx context.Context, endpoint string, ttl *uint64) (*Registration, error)

	// Lookup resolves any DID to its endpoint
	Lookup(ctx context.Context, did string) (*core.Listing, error)

	// Deregister removes this identity's entry and reports whether one existed
	Deregister(ctx context.Context) (bool, error)

	// Status looks up this identity. A nil listing means not registered.
	Status(ctx context.Context) (*core.Listing, error)
}

// Registration is the registry's answer to a successful register
type Registration struct {
	OK        bool   `json:"ok"`
	DID       string `json:"did"`
	ExpiresAt int64  `json:"expires_at"`
}
