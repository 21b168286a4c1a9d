package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/reach/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(handshake *service.HandshakeService, registry *service.RegistryService, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(log), RequestLogger(log))

	handlers := NewHandlers(handshake, registry, log)

	router.GET("/health", handlers.Health)

	// Handshake
	router.POST("/hello", handlers.Hello)
	router.POST("/proof", handlers.Proof)

	// Registration, session or signed body
	auth := router.Group("/")
	auth.Use(SessionMiddleware(registry))
	{
		auth.POST("/register", handlers.Register)
		auth.POST("/deregister", handlers.Deregister)
		auth.DELETE("/deregister", handlers.Deregister)
	}

	// Public lookup
	router.GET("/lookup/:did", handlers.Lookup)

	return router
}
