package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

const (
	TopicRegistered   = "reach.registered"
	TopicDeregistered = "reach.deregistered"
)

// RegisteredEvent is published after an upsert
type RegisteredEvent struct {
	DID          string `json:"did"`
	Endpoint     string `json:"endpoint"`
	RegisteredAt int64  `json:"registered_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// DeregisteredEvent is published after a removal
type DeregisteredEvent struct {
	DID string `json:"did"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishRegistered publishes a registration event
func (p *WatermillPublisher) PublishRegistered(ctx context.Context, entry *core.RegistryEntry) error {
	return p.publish(ctx, TopicRegistered, entry.DID, RegisteredEvent{
		DID:          entry.DID,
		Endpoint:     entry.Endpoint,
		RegisteredAt: entry.RegisteredAt,
		ExpiresAt:    entry.ExpiresAt,
	})
}

// PublishDeregistered publishes a deregistration event
func (p *WatermillPublisher) PublishDeregistered(ctx context.Context, did string) error {
	return p.publish(ctx, TopicDeregistered, did, DeregisteredEvent{DID: did})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, did string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("did", did)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishRegistered(context.Context, *core.RegistryEntry) error { return nil }
func (NopPublisher) PublishDeregistered(context.Context, string) error { return nil }
