package reach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/reach/adapters/didkey"
	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

const (
	// DefaultRegistryURL is the public registry
	DefaultRegistryURL = "https://reach.agent-id.ai"

	// DefaultTimeout bounds every registry request
	DefaultTimeout = 10 * time.Second

	headerChallengeHash = "X-Challenge-Hash"
)

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying net/http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithLogger sets the client logger
func WithLogger(log *zap.Logger) Option {
	return func(c *HTTPClient) { c.log = log }
}

// WithClock overrides the clock used for session caching
func WithClock(clock ports.Clock) Option {
	return func(c *HTTPClient) { c.clock = clock }
}

// HTTPClient talks to a registry over HTTP as a single identity
type HTTPClient struct {
	baseURL  string
	identity *Identity
	http     *http.Client
	log      *zap.Logger
	clock    ports.Clock
	crypto   didkey.Crypto
	session  session
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the registry at baseURL acting as identity
func NewHTTPClient(baseURL string, identity *Identity, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		http:     &http.Client{Timeout: DefaultTimeout},
		log:      zap.NewNop(),
		clock:    ports.SystemClock,
		crypto:   didkey.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) DID() string { return c.identity.DID() }

// Authenticate runs hello and proof and caches the resulting session
func (c *HTTPClient) Authenticate(ctx context.Context) error {
	hello := core.Hello{
		Type:      core.MsgTypeHello,
		Version:   core.ProtocolVersion,
		DID:       c.identity.DID(),
		Protocols: []string{"reach/" + core.ProtocolVersion},
		Timestamp: c.clock.Now().UnixMilli(),
	}

	var challenge core.Challenge
	header, err := c.do(ctx, http.MethodPost, "/hello", "", hello, &challenge)
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	hash := header.Get(headerChallengeHash)
	if hash == "" {
		return ErrMissingChallengeHash
	}
	// Refuse to sign anything but what we asked for
	if challenge.Issuer != c.identity.DID() {
		return fmt.Errorf("challenge issued to %q: %w", challenge.Issuer, core.ErrInvalidChallenge)
	}
	if want, err := c.crypto.HashChallenge(&challenge); err != nil || want != hash {
		return fmt.Errorf("challenge hash mismatch: %w", core.ErrInvalidChallenge)
	}

	msg, err := c.crypto.CanonicalChallenge(&challenge)
	if err != nil {
		return err
	}

	proof := core.Proof{
		Type:          core.MsgTypeProof,
		Version:       core.ProtocolVersion,
		ChallengeHash: hash,
		ResponderDID:  c.identity.DID(),
		Signature:     c.identity.SignEncoded(msg),
		Timestamp:     c.clock.Now().UnixMilli(),
	}

	var res struct {
		SessionID string `json:"session_id"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/proof", "", proof, &res); err != nil {
		return fmt.Errorf("proof: %w", err)
	}

	c.session.set(res.SessionID, c.clock.Now())
	c.log.Debug("authenticated", zap.String("did", c.identity.DID()))
	return nil
}

// Register publishes endpoint under this identity
func (c *HTTPClient) Register(ctx context.Context, endpoint string, ttl *uint64) (*Registration, error) {
	body := struct {
		Endpoint string  `json:"endpoint"`
		TTL      *uint64 `json:"ttl,omitempty"`
	}{Endpoint: endpoint, TTL: ttl}

	var res Registration
	if err := c.authorized(ctx, http.MethodPost, "/register", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterSigned publishes endpoint with a signed body instead of a session.
// The registry must have signed-body requests enabled.
func (c *HTTPClient) RegisterSigned(ctx context.Context, endpoint string, ttl *uint64) (*Registration, error) {
	var res Registration
	if _, err := c.do(ctx, http.MethodPost, "/register", "", SignedRegistration(c.identity, endpoint, ttl), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Lookup(ctx context.Context, did string) (*core.Listing, error) {
	var listing core.Listing
	if _, err := c.do(ctx, http.MethodGet, "/lookup/"+url.PathEscape(did), "", nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Deregister removes this identity's entry. The registry drops every session
// of the DID, so the cached one is discarded too.
func (c *HTTPClient) Deregister(ctx context.Context) (bool, error) {
	var res struct {
		OK bool `json:"ok"`
	}
	err := c.authorized(ctx, http.MethodDelete, "/deregister", nil, &res)
	c.session.clear()
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

func (c *HTTPClient) Status(ctx context.Context) (*core.Listing, error) {
	listing, err := c.Lookup(ctx, c.identity.DID())
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrExpired) {
		return nil, nil
	}
	return listing, err
}

// authorized sends a session-bearing request, authenticating first if needed
// and once more if the registry rejects the cached session.
func (c *HTTPClient) authorized(ctx context.Context, method, path string, body, out any) error {
	token, ok := c.session.get(c.clock.Now())
	if !ok {
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
		token, _ = c.session.get(c.clock.Now())
	}

	_, err := c.do(ctx, method, path, token, body, out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.log.Debug("session rejected, re-authenticating", zap.String("reason", apiErr.Message))
		c.session.clear()
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
		token, _ = c.session.get(c.clock.Now())
		_, err = c.do(ctx, method, path, token, body, out)
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.Header, nil
}

// SignedRequest is the signed-body form of a register call
type SignedRequest struct {
	DID       string  `json:"did"`
	Endpoint  string  `json:"endpoint"`
	TTL       *uint64 `json:"ttl,omitempty"`
	Signature string  `json:"signature"`
}

// SignedRegistration builds a register body signed over "did:endpoint:ttl".
// A nil ttl is signed as the registry default.
func SignedRegistration(identity *Identity, endpoint string, ttl *uint64) SignedRequest {
	effective := core.DefaultTTL
	if ttl != nil {
		effective = *ttl
	}
	return SignedRequest{
		DID:       identity.DID(),
		Endpoint:  endpoint,
		TTL:       ttl,
		Signature: identity.SignEncoded(core.RegistrationMessage(identity.DID(), endpoint, effective)),
	}
}
