package didkey

import (
	"crypto/ecdsa"
	"crypto/ed25519"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/layer-3/reach/core"
)

// EncodeEd25519 renders an Ed25519 public key as a did:key
func EncodeEd25519(pub ed25519.PublicKey) string {
	return encode(codecEd25519, pub)
}

// EncodeSecp256k1 renders a secp256k1 public key as a did:key using the compressed point
func EncodeSecp256k1(pub *ecdsa.PublicKey) string {
	return encode(codecSecp256k1, ethcrypto.CompressPubkey(pub))
}

func encode(codec, key []byte) string {
	raw := make([]byte, 0, len(codec)+len(key))
	raw = append(raw, codec...)
	raw = append(raw, key...)
	return core.DIDKeyPrefix + string(multibaseBase58BTC) + base58.Encode(raw)
}
