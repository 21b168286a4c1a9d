package ports

import (
	"context"

	"github.com/layer-3/reach/core"
)

// EventPublisher notifies listeners about registry changes
type EventPublisher interface {
	PublishRegistered(ctx context.Context, entry *core.RegistryEntry) error
	PublishDeregistered(ctx context.Context, did string) error
}
