package ports

import "github.com/layer-3/reach/core"

// PublicKey is an opaque handle recovered from a DID
type PublicKey interface {
	DID() string
}

// Crypto is the DID and signature capability. Implementations must be
// deterministic and free of side effects.
type Crypto interface {
	ParseDID(did string) (PublicKey, error)
	Verify(key PublicKey, message, signature []byte) bool
	// CanonicalChallenge returns the exact bytes a prover signs
	CanonicalChallenge(challenge *core.Challenge) ([]byte, error)
	HashChallenge(challenge *core.Challenge) (string, error)
	DecodeSignature(encoded string) ([]byte, error)
}
