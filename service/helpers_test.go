package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/layer-3/reach/adapters/store"
	"github.com/layer-3/reach/adapters/tokenizer"
	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// fakeKey is the handle returned by fakeCrypto
type fakeKey struct{ did string }

func (k fakeKey) DID() string { return k.did }

// fakeCrypto accepts any did:key and treats "sig(<did>|<message>)" as the
// only valid signature for a message.
type fakeCrypto struct{}

var _ ports.Crypto = fakeCrypto{}

func fakeSign(did string, message []byte) string {
	return "sig(" + did + "|" + string(message) + ")"
}

func (fakeCrypto) ParseDID(did string) (ports.PublicKey, error) {
	if err := core.ValidateDID(did); err != nil {
		return nil, err
	}
	if strings.HasSuffix(did, "Unparseable") {
		return nil, core.ErrInvalidDID
	}
	return fakeKey{did: did}, nil
}

func (fakeCrypto) Verify(key ports.PublicKey, message, signature []byte) bool {
	return string(signature) == fakeSign(key.DID(), message)
}

func (fakeCrypto) CanonicalChallenge(c *core.Challenge) ([]byte, error) {
	return json.Marshal(c)
}

func (f fakeCrypto) HashChallenge(c *core.Challenge) (string, error) {
	return "hash:" + c.Issuer + ":" + c.Nonce, nil
}

func (fakeCrypto) DecodeSignature(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, core.ErrInvalidSignature
	}
	return []byte(encoded), nil
}

// fakeClock is a settable clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// counterReader yields a deterministic, never-repeating byte stream
type counterReader struct {
	mu sync.Mutex
	n  byte
}

func (r *counterReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p {
		r.n++
		p[i] = r.n
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

// recordingPublisher captures published events
type recordingPublisher struct {
	mu           sync.Mutex
	registered   []core.RegistryEntry
	deregistered []string
	err          error
}

func (p *recordingPublisher) PublishRegistered(_ context.Context, entry *core.RegistryEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, *entry)
	return p.err
}

func (p *recordingPublisher) PublishDeregistered(_ context.Context, did string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deregistered = append(p.deregistered, did)
	return p.err
}

type fixture struct {
	clock      *fakeClock
	registry   *store.MemoryRegistry
	challenges *store.MemoryChallenges
	sessions   *store.MemorySessions
	events     *recordingPublisher
	handshake  *HandshakeService
	reg        *RegistryService
}

func newFixture(t *testing.T, legacy bool) *fixture {
	t.Helper()

	f := &fixture{
		clock:      newFakeClock(),
		registry:   store.NewMemoryRegistry(),
		challenges: store.NewMemoryChallenges(),
		sessions:   store.NewMemorySessions(),
		events:     &recordingPublisher{},
	}
	env := Env{Clock: f.clock, Random: &counterReader{}, Logger: zaptest.NewLogger(t)}
	tk := tokenizer.NewOpaqueTokenizer()

	f.handshake = NewHandshakeService(fakeCrypto{}, f.challenges, f.sessions, tk, "reach.test", env)
	f.reg = NewRegistryService(f.registry, f.sessions, tk, fakeCrypto{}, f.events, legacy, env)
	return f
}

// login runs a full handshake for did and returns the session and token
func (f *fixture) login(t *testing.T, did string) *ProofResult {
	t.Helper()

	ctx := context.Background()
	challenge, hash, err := f.handshake.Hello(ctx, &core.Hello{Type: core.MsgTypeHello, Version: core.ProtocolVersion, DID: did})
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	msg, _ := fakeCrypto{}.CanonicalChallenge(challenge)

	res, err := f.handshake.Proof(ctx, &core.Proof{
		Type:          core.MsgTypeProof,
		Version:       core.ProtocolVersion,
		ChallengeHash: hash,
		ResponderDID:  did,
		Signature:     fakeSign(did, msg),
	})
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	return res
}
