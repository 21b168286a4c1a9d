// Command reach runs the agent discovery registry.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/layer-3/reach/adapters/didkey"
	"github.com/layer-3/reach/adapters/events"
	"github.com/layer-3/reach/adapters/store"
	"github.com/layer-3/reach/adapters/tokenizer"
	"github.com/layer-3/reach/ports"
	"github.com/layer-3/reach/service"
	transport "github.com/layer-3/reach/transport/http"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:    "reach",
		Usage:   "agent discovery registry",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":3001", EnvVars: []string{"REACH_ADDR"}, Usage: "listen address"},
			&cli.StringFlag{Name: "service-id", Value: "reach.agent-id.ai", EnvVars: []string{"REACH_SERVICE_ID"}, Usage: "audience placed in every challenge"},
			&cli.StringFlag{Name: "redis-url", EnvVars: []string{"REDIS_URL"}, Usage: "publish registry events to Redis Streams (in-process channel when empty)"},
			&cli.StringFlag{Name: "session-format", Value: "opaque", EnvVars: []string{"REACH_SESSION_FORMAT"}, Usage: "session credential format: opaque or jwt"},
			&cli.StringFlag{Name: "jwt-key", EnvVars: []string{"REACH_JWT_KEY"}, Usage: "PEM file with the P-256 key signing jwt sessions (ephemeral when empty)"},
			&cli.BoolFlag{Name: "legacy-signatures", EnvVars: []string{"REACH_LEGACY_SIGNATURES"}, Usage: "accept signed-body register/deregister without a session"},
			&cli.BoolFlag{Name: "dev", Usage: "development logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.Bool("dev"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", c.String("addr")),
		zap.String("service_id", c.String("service-id")),
		zap.Bool("legacy_signatures", c.Bool("legacy-signatures")),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tk, err := newTokenizer(c.String("session-format"), c.String("jwt-key"), c.String("service-id"))
	if err != nil {
		return err
	}

	publisher, err := newPublisher(c.String("redis-url"), logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	env := service.Env{Clock: ports.SystemClock, Random: rand.Reader, Logger: logger}
	crypto := didkey.New()
	sessions := store.NewMemorySessions()

	handshake := service.NewHandshakeService(crypto, store.NewMemoryChallenges(), sessions, tk, c.String("service-id"), env)
	registry := service.NewRegistryService(
		store.NewMemoryRegistry(),
		sessions,
		tk,
		crypto,
		events.NewWatermillPublisher(publisher),
		c.Bool("legacy-signatures"),
		env,
	)

	if !c.Bool("dev") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              c.String("addr"),
		Handler:           transport.SetupRouter(handshake, registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
		return srv.Close()
	}
	logger.Info("stopped")
	return nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newTokenizer(format, keyPath, issuer string) (ports.SessionTokenizer, error) {
	switch format {
	case "", "opaque":
		return tokenizer.NewOpaqueTokenizer(), nil
	case "jwt":
		key, err := loadSigningKey(keyPath)
		if err != nil {
			return nil, err
		}
		return tokenizer.NewJWTTokenizer(key, issuer), nil
	default:
		return nil, fmt.Errorf("unknown session format %q", format)
	}
}

// loadSigningKey reads a PEM encoded EC key, or generates one that lives as long as the process
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse jwt key: %w", err)
	}
	return key, nil
}

func newPublisher(redisURL string, logger *zap.Logger) (message.Publisher, error) {
	wmLogger := events.NewZapLogger(logger)

	if redisURL == "" {
		return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redis.NewClient(opts),
		},
		wmLogger,
	)
}
