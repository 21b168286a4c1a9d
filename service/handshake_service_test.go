package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/reach/adapters/store"
	"github.com/layer-3/reach/adapters/tokenizer"
	"github.com/layer-3/reach/core"
)

func TestHello_IssuesIndependentChallenges(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	hello := &core.Hello{Type: core.MsgTypeHello, Version: core.ProtocolVersion, DID: "did:key:zABC"}

	c1, h1, err := f.handshake.Hello(ctx, hello)
	require.NoError(t, err)
	c2, h2, err := f.handshake.Hello(ctx, hello)
	require.NoError(t, err)

	assert.NotEqual(t, c1.Nonce, c2.Nonce)
	assert.NotEqual(t, h1, h2)
	assert.Len(t, c1.Nonce, 2*nonceSize)
	assert.Equal(t, core.MsgTypeChallenge, c1.Type)
	assert.Equal(t, core.ProtocolVersion, c1.Version)
	assert.Equal(t, "reach.test", c1.Audience)
	assert.Equal(t, "did:key:zABC", c1.Issuer)
	assert.Equal(t, f.clock.Now().UnixMilli(), c1.Timestamp)
	assert.Equal(t, 2, f.challenges.Len())
}

func TestHello_InvalidDIDCreatesNoState(t *testing.T) {
	f := newFixture(t, false)

	for _, did := range []string{"", "not-a-did", "did:key:zUnparseable"} {
		_, _, err := f.handshake.Hello(context.Background(), &core.Hello{DID: did})
		assert.ErrorIs(t, err, core.ErrInvalidDID, did)
	}
	assert.Equal(t, 0, f.challenges.Len())
}

func TestHello_RejectsProtocolMismatch(t *testing.T) {
	f := newFixture(t, false)

	_, _, err := f.handshake.Hello(context.Background(), &core.Hello{Version: "2.0", DID: "did:key:zABC"})
	var he *core.HandshakeError
	require.ErrorAs(t, err, &he)
	assert.Contains(t, he.Detail, "2.0")

	_, _, err = f.handshake.Hello(context.Background(), &core.Hello{Type: "proof", DID: "did:key:zABC"})
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 0, f.challenges.Len())
}

func TestHello_RandomFailureIsInternal(t *testing.T) {
	challenges := store.NewMemoryChallenges()
	hs := NewHandshakeService(fakeCrypto{}, challenges, store.NewMemorySessions(), tokenizer.NewOpaqueTokenizer(), "reach.test",
		Env{Random: failingReader{}, Logger: zaptest.NewLogger(t)})

	_, _, err := hs.Hello(context.Background(), &core.Hello{DID: "did:key:zABC"})
	var ie *core.InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 0, challenges.Len())
}

func TestProof_IssuesSessionOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	challenge, hash, err := f.handshake.Hello(ctx, &core.Hello{DID: "did:key:zABC"})
	require.NoError(t, err)
	msg, err := fakeCrypto{}.CanonicalChallenge(challenge)
	require.NoError(t, err)

	proof := &core.Proof{ChallengeHash: hash, ResponderDID: "did:key:zABC", Signature: fakeSign("did:key:zABC", msg)}
	res, err := f.handshake.Proof(ctx, proof)
	require.NoError(t, err)
	assert.Equal(t, "did:key:zABC", res.Session.DID)
	assert.Equal(t, f.clock.Now(), res.Session.CreatedAt)
	assert.Equal(t, res.Session.ID, res.Token)

	stored, ok := f.sessions.Get(res.Session.ID)
	require.True(t, ok)
	assert.Equal(t, "did:key:zABC", stored.DID)

	// replay
	_, err = f.handshake.Proof(ctx, proof)
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)
}

func TestProof_UnknownChallenge(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.handshake.Proof(context.Background(), &core.Proof{ChallengeHash: "nope", ResponderDID: "did:key:zABC", Signature: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = f.handshake.Proof(context.Background(), &core.Proof{ResponderDID: "did:key:zABC", Signature: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)
}

func TestProof_TamperedSignatureConsumesChallenge(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	challenge, hash, err := f.handshake.Hello(ctx, &core.Hello{DID: "did:key:zABC"})
	require.NoError(t, err)
	msg, err := fakeCrypto{}.CanonicalChallenge(challenge)
	require.NoError(t, err)

	_, err = f.handshake.Proof(ctx, &core.Proof{ChallengeHash: hash, ResponderDID: "did:key:zABC", Signature: fakeSign("did:key:zOTHER", msg)})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	// the honest proof now arrives too late
	_, err = f.handshake.Proof(ctx, &core.Proof{ChallengeHash: hash, ResponderDID: "did:key:zABC", Signature: fakeSign("did:key:zABC", msg)})
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)

	assert.Equal(t, 0, f.sessions.DeleteByDID("did:key:zABC"))
}

func TestProof_ResponderMustBeIssuer(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	challenge, hash, err := f.handshake.Hello(ctx, &core.Hello{DID: "did:key:zABC"})
	require.NoError(t, err)
	msg, err := fakeCrypto{}.CanonicalChallenge(challenge)
	require.NoError(t, err)

	// a valid signature by a different DID over the same challenge
	_, err = f.handshake.Proof(ctx, &core.Proof{ChallengeHash: hash, ResponderDID: "did:key:zEVE", Signature: fakeSign("did:key:zEVE", msg)})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestProof_MissingSignature(t *testing.T) {
	f := newFixture(t, false)

	_, hash, err := f.handshake.Hello(context.Background(), &core.Hello{DID: "did:key:zABC"})
	require.NoError(t, err)

	_, err = f.handshake.Proof(context.Background(), &core.Proof{ChallengeHash: hash, ResponderDID: "did:key:zABC"})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestProof_WrongVersionKeepsChallenge(t *testing.T) {
	f := newFixture(t, false)

	_, hash, err := f.handshake.Hello(context.Background(), &core.Hello{DID: "did:key:zABC"})
	require.NoError(t, err)

	_, err = f.handshake.Proof(context.Background(), &core.Proof{Version: "0.9", ChallengeHash: hash})
	var he *core.HandshakeError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 1, f.challenges.Len())
}

func TestProof_SessionIDsAreUnique(t *testing.T) {
	f := newFixture(t, false)

	a := f.login(t, "did:key:zABC")
	b := f.login(t, "did:key:zABC")
	assert.NotEqual(t, a.Session.ID, b.Session.ID)
}
