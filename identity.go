package reach

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/layer-3/reach/adapters/didkey"
)

// Identity is an agent's Ed25519 signing key and the did:key derived from it
type Identity struct {
	priv ed25519.PrivateKey
	did  string
}

type identityFile struct {
	SecretKey string `json:"secret_key"`
}

// GenerateIdentity creates a fresh random identity
func GenerateIdentity() (*Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return NewIdentity(seed)
}

// NewIdentity derives an identity from a 32-byte Ed25519 seed
func NewIdentity(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidIdentity, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{
		priv: priv,
		did:  didkey.EncodeEd25519(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// DefaultIdentityPath is agent-id/identity.json under the user config dir
// (XDG_CONFIG_HOME on Linux).
func DefaultIdentityPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agent-id", "identity.json"), nil
}

// LoadIdentity reads an identity file written by Save
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, err
	}

	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	seed, err := base64.StdEncoding.DecodeString(f.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return NewIdentity(seed)
}

// LoadOrGenerateIdentity loads path, creating and saving a new identity if none exists
func LoadOrGenerateIdentity(path string) (*Identity, error) {
	id, err := LoadIdentity(path)
	if !errors.Is(err, ErrNoIdentity) {
		return id, err
	}

	id, err = GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, err
	}
	return id, nil
}

// Save writes the seed to path, readable by the owner only
func (i *Identity) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(identityFile{SecretKey: base64.StdEncoding.EncodeToString(i.priv.Seed())})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (i *Identity) DID() string { return i.did }

// Sign signs message with the identity key
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.priv, message)
}

// SignEncoded signs message and returns the signature in the registry's base64 form
func (i *Identity) SignEncoded(message []byte) string {
	return base64.StdEncoding.EncodeToString(i.Sign(message))
}
