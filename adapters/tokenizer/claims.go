package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the standard claims of a session token; jti is the session ID
type SessionClaims struct {
	jwt.RegisteredClaims
}
