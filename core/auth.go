package core

import "time"

const (
	// ProtocolVersion is the only handshake version this service speaks
	ProtocolVersion = "1.0"

	MsgTypeHello     = "hello"
	MsgTypeChallenge = "challenge"
	MsgTypeProof     = "proof"

	// SessionTTL is the fixed validity window of an authenticated session
	SessionTTL = 300 * time.Second
)

// Hello opens a handshake for the DID the caller claims
type Hello struct {
	Type      string   `json:"type"`
	Version   string   `json:"version"`
	DID       string   `json:"did"`
	Protocols []string `json:"protocols"`
	Timestamp int64    `json:"timestamp"`
}

// Challenge is issued in response to a Hello and must be signed by the issuer's key.
// Field order is the canonical serialization order.
type Challenge struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Nonce     string `json:"nonce"`     // Random hex nonce, unique per issuance
	Timestamp int64  `json:"timestamp"` // Issuance time in unix milliseconds
	Audience  string `json:"audience"`  // Identifier of the issuing service
	Issuer    string `json:"issuer"`    // DID the challenge was issued to
}

// Proof answers a Challenge referenced by its hash
type Proof struct {
	Type          string `json:"type"`
	Version       string `json:"version"`
	ChallengeHash string `json:"challenge_hash"`
	ResponderDID  string `json:"responder_did"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
}

// Session represents an authenticated agent session
type Session struct {
	ID        string    // Random session identifier, the bearer credential
	DID       string    // DID proven by the handshake
	CreatedAt time.Time // When the proof was accepted
}

// ExpiresAt returns the end of the session validity window
func (s *Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(SessionTTL)
}

// Expired reports whether now lies past the validity window
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionTTL
}
