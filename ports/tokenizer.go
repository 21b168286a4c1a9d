package ports

import "github.com/layer-3/reach/core"

// SessionTokenizer converts between sessions and bearer credentials
type SessionTokenizer interface {
	// SessionToToken renders the credential handed to the agent
	SessionToToken(session *core.Session) (string, error)
	// TokenToSessionID extracts the session id from a credential.
	// It does not judge expiry; the session store is authoritative.
	TokenToSessionID(token string) (string, error)
}
