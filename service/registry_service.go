package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// Registration is an endpoint claim. TTL is nil when the caller omitted it.
type Registration struct {
	Endpoint string
	TTL      *uint64
}

// SignedRegistration is a registration carrying its own signature over
// did:endpoint:ttl instead of a session
type SignedRegistration struct {
	DID       string
	Endpoint  string
	TTL       *uint64
	Signature string
}

// RegistryService handles registration, lookup and deregistration
type RegistryService struct {
	registry  ports.RegistryStore
	sessions  ports.SessionStore
	tokenizer ports.SessionTokenizer
	crypto    ports.Crypto
	eventPub  ports.EventPublisher
	env       Env

	legacySignatures bool
}

// NewRegistryService creates a new registry service.
// legacySignatures enables the per-request signature variant.
func NewRegistryService(
	registry ports.RegistryStore,
	sessions ports.SessionStore,
	tokenizer ports.SessionTokenizer,
	crypto ports.Crypto,
	eventPub ports.EventPublisher,
	legacySignatures bool,
	env Env,
) *RegistryService {
	return &RegistryService{
		registry:         registry,
		sessions:         sessions,
		tokenizer:        tokenizer,
		crypto:           crypto,
		eventPub:         eventPub,
		env:              env.withDefaults(),
		legacySignatures: legacySignatures,
	}
}

// LegacySignatures reports whether signed-body requests are accepted
func (s *RegistryService) LegacySignatures() bool {
	return s.legacySignatures
}

// AuthenticateSession resolves a bearer credential to a live session
func (s *RegistryService) AuthenticateSession(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrUnauthorized
	}

	id, err := s.tokenizer.TokenToSessionID(token)
	if err != nil {
		return nil, core.ErrUnauthorized
	}

	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, core.ErrUnauthorized
	}

	// The session stays in the store; it keeps failing this check
	if session.Expired(s.env.Clock.Now()) {
		return nil, core.ErrSessionExpired
	}

	return session, nil
}

// Register publishes an endpoint for the DID bound to the session
func (s *RegistryService) Register(ctx context.Context, session *core.Session, reg Registration) (*core.RegistryEntry, error) {
	if reg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required: %w", core.ErrInvalidRequest)
	}
	ttl, err := core.EffectiveTTL(reg.TTL)
	if err != nil {
		return nil, err
	}

	return s.upsert(ctx, session.DID, reg.Endpoint, ttl), nil
}

// RegisterSigned publishes an endpoint authorized by a signature over did:endpoint:ttl
func (s *RegistryService) RegisterSigned(ctx context.Context, reg SignedRegistration) (*core.RegistryEntry, error) {
	if !s.legacySignatures {
		return nil, core.ErrUnauthorized
	}
	if err := core.ValidateDID(reg.DID); err != nil {
		return nil, err
	}
	if reg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required: %w", core.ErrInvalidRequest)
	}
	ttl, err := core.EffectiveTTL(reg.TTL)
	if err != nil {
		return nil, err
	}

	if err := s.verifySigned(reg.DID, core.RegistrationMessage(reg.DID, reg.Endpoint, ttl), reg.Signature); err != nil {
		return nil, err
	}

	return s.upsert(ctx, reg.DID, reg.Endpoint, ttl), nil
}

// Deregister removes the session DID's entry and ends every session bound to it
func (s *RegistryService) Deregister(ctx context.Context, session *core.Session) bool {
	existed := s.remove(ctx, session.DID)
	s.dropSessions(session.DID)
	return existed
}

// DeregisterSigned removes the entry of did authorized by a signature over did,
// ending its sessions the same way Deregister does
func (s *RegistryService) DeregisterSigned(ctx context.Context, did, signature string) (bool, error) {
	if !s.legacySignatures {
		return false, core.ErrUnauthorized
	}
	if err := core.ValidateDID(did); err != nil {
		return false, err
	}

	if err := s.verifySigned(did, core.DeregistrationMessage(did), signature); err != nil {
		return false, err
	}

	existed := s.remove(ctx, did)
	s.dropSessions(did)
	return existed, nil
}

func (s *RegistryService) dropSessions(did string) {
	if n := s.sessions.DeleteByDID(did); n > 0 {
		s.env.Logger.Debug("sessions invalidated", zap.String("did", did), zap.Int("count", n))
	}
}

// Lookup resolves a DID to its live entry
func (s *RegistryService) Lookup(ctx context.Context, did string) (*core.Listing, error) {
	if err := core.ValidateDID(did); err != nil {
		return nil, err
	}

	entry, ok := s.registry.Lookup(did)
	if !ok {
		return nil, core.ErrNotFound
	}

	status := entry.Status(s.env.Clock.Now())
	if status == core.StatusExpired {
		return nil, core.ErrExpired
	}

	return &core.Listing{RegistryEntry: *entry, Status: status}, nil
}

func (s *RegistryService) verifySigned(did string, message []byte, encodedSig string) error {
	key, err := s.crypto.ParseDID(did)
	if err != nil {
		return fmt.Errorf("parse DID: %w", core.ErrInvalidDID)
	}

	signature, err := s.crypto.DecodeSignature(encodedSig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", core.ErrInvalidSignature)
	}

	if !s.crypto.Verify(key, message, signature) {
		return core.ErrInvalidSignature
	}
	return nil
}

func (s *RegistryService) upsert(ctx context.Context, did, endpoint string, ttl uint64) *core.RegistryEntry {
	entry := core.NewRegistryEntry(did, endpoint, ttl, s.env.Clock.Now())
	s.registry.Register(entry)

	s.env.Logger.Info("agent registered",
		zap.String("did", did),
		zap.String("endpoint", endpoint),
		zap.Int64("expires_at", entry.ExpiresAt),
	)

	// Publish failures never fail the request
	if err := s.eventPub.PublishRegistered(ctx, entry); err != nil {
		s.env.Logger.Warn("failed to publish registered event", zap.String("did", did), zap.Error(err))
	}

	return entry
}

func (s *RegistryService) remove(ctx context.Context, did string) bool {
	existed := s.registry.Deregister(did)
	if !existed {
		return false
	}

	s.env.Logger.Info("agent deregistered", zap.String("did", did))

	if err := s.eventPub.PublishDeregistered(ctx, did); err != nil {
		s.env.Logger.Warn("failed to publish deregistered event", zap.String("did", did), zap.Error(err))
	}

	return true
}
