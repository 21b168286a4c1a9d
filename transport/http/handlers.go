package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/service"
)

// HeaderChallengeHash carries the hash a Proof must reference
const HeaderChallengeHash = "X-Challenge-Hash"

// Handlers contains the HTTP handlers of the registry
type Handlers struct {
	handshake *service.HandshakeService
	registry  *service.RegistryService
	log       *zap.Logger
}

// NewHandlers creates new registry handlers
func NewHandlers(handshake *service.HandshakeService, registry *service.RegistryService, log *zap.Logger) *Handlers {
	return &Handlers{
		handshake: handshake,
		registry:  registry,
		log:       log,
	}
}

type registerRequest struct {
	DID       string  `json:"did"`
	Endpoint  string  `json:"endpoint"`
	TTL       *uint64 `json:"ttl"`
	Signature string  `json:"signature"`
}

type registerResponse struct {
	OK        bool   `json:"ok"`
	DID       string `json:"did"`
	ExpiresAt int64  `json:"expires_at"`
}

type deregisterRequest struct {
	DID       string `json:"did"`
	Signature string `json:"signature"`
}

type deregisterResponse struct {
	OK bool `json:"ok"`
}

type proofResponse struct {
	SessionID    string  `json:"session_id"`
	CounterProof *string `json:"counter_proof"`
}

type lookupResponse struct {
	DID          string      `json:"did"`
	Endpoint     string      `json:"endpoint"`
	Status       core.Status `json:"status"`
	RegisteredAt int64       `json:"registered_at"`
	ExpiresAt    int64       `json:"expires_at"`
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Hello starts a handshake and returns the challenge to sign
func (h *Handlers) Hello(c *gin.Context) {
	var req core.Hello
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	challenge, hash, err := h.handshake.Hello(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header(HeaderChallengeHash, hash)
	c.JSON(http.StatusOK, challenge)
}

// Proof completes a handshake and returns the session credential
func (h *Handlers) Proof(c *gin.Context) {
	var req core.Proof
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.handshake.Proof(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, proofResponse{SessionID: res.Token})
}

// Register publishes the caller's endpoint. With a session the DID comes
// from the session and any DID in the body is ignored.
func (h *Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var (
		entry *core.RegistryEntry
		err   error
	)
	if session, ok := sessionFromContext(c); ok {
		entry, err = h.registry.Register(c.Request.Context(), session, service.Registration{
			Endpoint: req.Endpoint,
			TTL:      req.TTL,
		})
	} else {
		entry, err = h.registry.RegisterSigned(c.Request.Context(), service.SignedRegistration{
			DID:       req.DID,
			Endpoint:  req.Endpoint,
			TTL:       req.TTL,
			Signature: req.Signature,
		})
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, registerResponse{
		OK:        true,
		DID:       entry.DID,
		ExpiresAt: entry.ExpiresAt,
	})
}

// Deregister removes the caller's registration
func (h *Handlers) Deregister(c *gin.Context) {
	if session, ok := sessionFromContext(c); ok {
		existed := h.registry.Deregister(c.Request.Context(), session)
		c.JSON(http.StatusOK, deregisterResponse{OK: existed})
		return
	}

	var req deregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	existed, err := h.registry.DeregisterSigned(c.Request.Context(), req.DID, req.Signature)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, deregisterResponse{OK: existed})
}

// Lookup resolves a DID to its endpoint
func (h *Handlers) Lookup(c *gin.Context) {
	listing, err := h.registry.Lookup(c.Request.Context(), c.Param("did"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, lookupResponse{
		DID:          listing.DID,
		Endpoint:     listing.Endpoint,
		Status:       listing.Status,
		RegisteredAt: listing.RegisteredAt,
		ExpiresAt:    listing.ExpiresAt,
	})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, msg := errorResponse(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
