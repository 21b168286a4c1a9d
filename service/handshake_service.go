package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

const nonceSize = 32

// Env carries the time, randomness and logging shared by services.
// Zero fields fall back to the system clock, crypto/rand and a no-op logger.
type Env struct {
	Clock  ports.Clock
	Random io.Reader
	Logger *zap.Logger
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = ports.SystemClock
	}
	if e.Random == nil {
		e.Random = rand.Reader
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	return e
}

// HandshakeService runs the Hello -> Challenge -> Proof -> Session exchange.
// It keeps no state of its own; challenges and sessions live in their stores.
type HandshakeService struct {
	crypto     ports.Crypto
	challenges ports.ChallengeStore
	sessions   ports.SessionStore
	tokenizer  ports.SessionTokenizer
	audience   string
	env        Env
}

// ProofResult is what a successful proof hands back to the caller
type ProofResult struct {
	Session *core.Session
	Token   string
}

// NewHandshakeService creates a new handshake engine issuing challenges for audience
func NewHandshakeService(
	crypto ports.Crypto,
	challenges ports.ChallengeStore,
	sessions ports.SessionStore,
	tokenizer ports.SessionTokenizer,
	audience string,
	env Env,
) *HandshakeService {
	return &HandshakeService{
		crypto:     crypto,
		challenges: challenges,
		sessions:   sessions,
		tokenizer:  tokenizer,
		audience:   audience,
		env:        env.withDefaults(),
	}
}

// Hello issues a fresh challenge for the claimed DID and returns it with its hash
func (s *HandshakeService) Hello(ctx context.Context, hello *core.Hello) (*core.Challenge, string, error) {
	if hello.Type != "" && hello.Type != core.MsgTypeHello {
		return nil, "", &core.HandshakeError{Detail: fmt.Sprintf("unexpected message type %q", hello.Type)}
	}
	if hello.Version != "" && hello.Version != core.ProtocolVersion {
		return nil, "", &core.HandshakeError{Detail: fmt.Sprintf("unsupported version %q", hello.Version)}
	}
	if err := core.ValidateDID(hello.DID); err != nil {
		return nil, "", err
	}
	if _, err := s.crypto.ParseDID(hello.DID); err != nil {
		return nil, "", fmt.Errorf("parse DID: %w", core.ErrInvalidDID)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(s.env.Random, nonce); err != nil {
		return nil, "", core.Internal("generate nonce", err)
	}

	challenge := &core.Challenge{
		Type:      core.MsgTypeChallenge,
		Version:   core.ProtocolVersion,
		Nonce:     hex.EncodeToString(nonce),
		Timestamp: s.env.Clock.Now().UnixMilli(),
		Audience:  s.audience,
		Issuer:    hello.DID,
	}

	hash, err := s.crypto.HashChallenge(challenge)
	if err != nil {
		return nil, "", core.Internal("hash challenge", err)
	}
	s.challenges.Put(hash, challenge)

	s.env.Logger.Debug("challenge issued", zap.String("did", hello.DID), zap.String("challenge_hash", hash))
	return challenge, hash, nil
}

// Proof consumes the referenced challenge and, if the signature over it
// verifies against the issuer DID, opens a session. A failed proof still
// consumes the challenge.
func (s *HandshakeService) Proof(ctx context.Context, proof *core.Proof) (*ProofResult, error) {
	if proof.Type != "" && proof.Type != core.MsgTypeProof {
		return nil, &core.HandshakeError{Detail: fmt.Sprintf("unexpected message type %q", proof.Type)}
	}
	if proof.Version != "" && proof.Version != core.ProtocolVersion {
		return nil, &core.HandshakeError{Detail: fmt.Sprintf("unsupported version %q", proof.Version)}
	}
	if proof.ChallengeHash == "" {
		return nil, core.ErrInvalidChallenge
	}

	challenge, ok := s.challenges.Take(proof.ChallengeHash)
	if !ok {
		return nil, core.ErrInvalidChallenge
	}

	if err := s.verify(challenge, proof); err != nil {
		s.env.Logger.Info("proof rejected", zap.String("did", challenge.Issuer), zap.Error(err))
		return nil, err
	}

	id, err := uuid.NewRandomFromReader(s.env.Random)
	if err != nil {
		return nil, core.Internal("generate session id", err)
	}
	session := &core.Session{
		ID:        id.String(),
		DID:       challenge.Issuer,
		CreatedAt: s.env.Clock.Now(),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, core.Internal("render session token", err)
	}
	s.sessions.Put(session)

	s.env.Logger.Info("session issued", zap.String("did", session.DID))
	return &ProofResult{Session: session, Token: token}, nil
}

func (s *HandshakeService) verify(challenge *core.Challenge, proof *core.Proof) error {
	if proof.ResponderDID != challenge.Issuer {
		return fmt.Errorf("responder does not match challenge issuer: %w", core.ErrInvalidSignature)
	}

	key, err := s.crypto.ParseDID(challenge.Issuer)
	if err != nil {
		return fmt.Errorf("parse issuer DID: %w", core.ErrInvalidSignature)
	}

	signature, err := s.crypto.DecodeSignature(proof.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", core.ErrInvalidSignature)
	}

	message, err := s.crypto.CanonicalChallenge(challenge)
	if err != nil {
		return core.Internal("serialize challenge", err)
	}

	if !s.crypto.Verify(key, message, signature) {
		return core.ErrInvalidSignature
	}
	return nil
}
