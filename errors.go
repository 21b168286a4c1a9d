package reach

import (
	"errors"
	"fmt"
	"strings"

	"github.com/layer-3/reach/core"
)

var (
	// ErrNoIdentity is returned when no identity file exists at the given path
	ErrNoIdentity = errors.New("identity not found")

	// ErrInvalidIdentity is returned when an identity file cannot be decoded
	ErrInvalidIdentity = errors.New("invalid identity file")

	// ErrMissingChallengeHash is returned when the registry answers a hello without a hash
	ErrMissingChallengeHash = errors.New("missing challenge hash")
)

// registryErrors are the errors the registry reports by message
var registryErrors = []error{
	core.ErrInvalidDID,
	core.ErrInvalidSignature,
	core.ErrInvalidChallenge,
	core.ErrNotFound,
	core.ErrExpired,
	core.ErrUnauthorized,
	core.ErrSessionExpired,
	core.ErrInvalidRequest,
}

// APIError is a non-2xx answer from the registry
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry: %d %s", e.StatusCode, e.Message)
}

// Unwrap exposes the matching core error so callers can use errors.Is
func (e *APIError) Unwrap() error {
	for _, err := range registryErrors {
		if e.Message == err.Error() || strings.HasSuffix(e.Message, ": "+err.Error()) {
			return err
		}
	}
	return nil
}
