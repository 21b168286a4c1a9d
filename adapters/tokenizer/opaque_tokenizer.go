package tokenizer

import (
	"github.com/google/uuid"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// OpaqueTokenizer hands out the random session ID itself as the credential
type OpaqueTokenizer struct{}

// NewOpaqueTokenizer creates an opaque tokenizer
func NewOpaqueTokenizer() ports.SessionTokenizer {
	return OpaqueTokenizer{}
}

func (OpaqueTokenizer) SessionToToken(session *core.Session) (string, error) {
	return session.ID, nil
}

// TokenToSessionID rejects anything that is not a UUID
func (OpaqueTokenizer) TokenToSessionID(token string) (string, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return "", core.ErrUnauthorized
	}
	return id.String(), nil
}
