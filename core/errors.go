package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDID       = errors.New("invalid DID")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidChallenge = errors.New("invalid or already used challenge")
	ErrNotFound         = errors.New("agent not found")
	ErrExpired          = errors.New("registration expired")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSessionExpired   = errors.New("session expired")
	ErrInvalidRequest   = errors.New("invalid request")
)

// HandshakeError reports a protocol violation during Hello or Proof
type HandshakeError struct {
	Detail string
}

func (e *HandshakeError) Error() string {
	return "handshake error: " + e.Detail
}

// InternalError wraps an unexpected failure. Detail is for logs only.
type InternalError struct {
	Detail string
	Err    error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Detail, e.Err)
	}
	return "internal error: " + e.Detail
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Internal builds an InternalError
func Internal(detail string, err error) error {
	return &InternalError{Detail: detail, Err: err}
}
