package http

import (
	"errors"
	"net/http"

	"github.com/layer-3/reach/core"
)

// errorResponse maps service errors to a status code and a client-facing message.
// Unknown and internal errors never expose their detail.
func errorResponse(err error) (int, string) {
	var handshakeErr *core.HandshakeError
	var internalErr *core.InternalError

	switch {
	case errors.As(err, &internalErr):
		return http.StatusInternalServerError, "internal error"
	case errors.As(err, &handshakeErr):
		return http.StatusBadRequest, handshakeErr.Error()
	case errors.Is(err, core.ErrInvalidDID):
		return http.StatusBadRequest, core.ErrInvalidDID.Error()
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrInvalidChallenge):
		return http.StatusBadRequest, core.ErrInvalidChallenge.Error()
	case errors.Is(err, core.ErrInvalidSignature):
		return http.StatusUnauthorized, core.ErrInvalidSignature.Error()
	case errors.Is(err, core.ErrSessionExpired):
		return http.StatusUnauthorized, core.ErrSessionExpired.Error()
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, core.ErrUnauthorized.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, core.ErrNotFound.Error()
	case errors.Is(err, core.ErrExpired):
		return http.StatusGone, core.ErrExpired.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
