// Package didkey implements the DID and signature capability for did:key
// identifiers carrying Ed25519 or secp256k1 public keys.
package didkey

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// KeyType identifies the curve behind a did:key
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeSecp256k1 KeyType = "secp256k1"

	// multibase prefix for base58btc
	multibaseBase58BTC = 'z'
)

// multicodec varint prefixes
var (
	codecEd25519   = []byte{0xed, 0x01}
	codecSecp256k1 = []byte{0xe7, 0x01}
)

// PublicKey is a key recovered from a did:key
type PublicKey struct {
	did   string
	Type  KeyType
	Bytes []byte
}

func (k *PublicKey) DID() string { return k.did }

// Crypto implements ports.Crypto for did:key
type Crypto struct{}

var _ ports.Crypto = Crypto{}

// New returns the did:key capability
func New() Crypto {
	return Crypto{}
}

// ParseDID decodes the multibase/multicodec suffix into a public key
func (Crypto) ParseDID(did string) (ports.PublicKey, error) {
	return Parse(did)
}

// Parse is ParseDID with the concrete key type
func Parse(did string) (*PublicKey, error) {
	if err := core.ValidateDID(did); err != nil {
		return nil, err
	}
	suffix := strings.TrimPrefix(did, core.DIDKeyPrefix)
	if suffix[0] != multibaseBase58BTC {
		return nil, fmt.Errorf("unsupported multibase %q: %w", suffix[0], core.ErrInvalidDID)
	}
	raw, err := base58.Decode(suffix[1:])
	if err != nil {
		return nil, fmt.Errorf("decode base58: %w", core.ErrInvalidDID)
	}

	switch {
	case bytes.HasPrefix(raw, codecEd25519) && len(raw) == len(codecEd25519)+ed25519.PublicKeySize:
		return &PublicKey{did: did, Type: KeyTypeEd25519, Bytes: raw[len(codecEd25519):]}, nil
	case bytes.HasPrefix(raw, codecSecp256k1) && len(raw) == len(codecSecp256k1)+33:
		key := raw[len(codecSecp256k1):]
		if _, err := ethcrypto.DecompressPubkey(key); err != nil {
			return nil, fmt.Errorf("secp256k1 point: %w", core.ErrInvalidDID)
		}
		return &PublicKey{did: did, Type: KeyTypeSecp256k1, Bytes: key}, nil
	default:
		return nil, fmt.Errorf("unsupported key codec: %w", core.ErrInvalidDID)
	}
}

// Verify checks signature over message.
// Ed25519 signs the message itself; secp256k1 signs its SHA-256 digest
// and accepts both 64-byte R||S and 65-byte R||S||V signatures.
func (Crypto) Verify(key ports.PublicKey, message, signature []byte) bool {
	pk, ok := key.(*PublicKey)
	if !ok {
		return false
	}

	switch pk.Type {
	case KeyTypeEd25519:
		if len(signature) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pk.Bytes), message, signature)
	case KeyTypeSecp256k1:
		if len(signature) == 65 {
			signature = signature[:64]
		}
		if len(signature) != 64 {
			return false
		}
		digest := sha256.Sum256(message)
		return ethcrypto.VerifySignature(pk.Bytes, digest[:], signature)
	}
	return false
}

// CanonicalChallenge serializes the challenge as compact JSON in field order
func (Crypto) CanonicalChallenge(challenge *core.Challenge) ([]byte, error) {
	return json.Marshal(challenge)
}

// HashChallenge is the hex SHA-256 of the canonical challenge
func (c Crypto) HashChallenge(challenge *core.Challenge) (string, error) {
	canonical, err := c.CanonicalChallenge(challenge)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DecodeSignature accepts 0x-prefixed hex or standard/URL base64
func (Crypto) DecodeSignature(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, core.ErrInvalidSignature
	}
	// Standard base64 may also start with "0x"
	if strings.HasPrefix(encoded, "0x") {
		if sig, err := hexutil.Decode(encoded); err == nil {
			return sig, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if sig, err := enc.DecodeString(encoded); err == nil {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("decode signature: %w", core.ErrInvalidSignature)
}

