package reach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/reach/adapters/didkey"
	"github.com/layer-3/reach/adapters/events"
	"github.com/layer-3/reach/adapters/store"
	"github.com/layer-3/reach/adapters/tokenizer"
	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/service"
	transport "github.com/layer-3/reach/transport/http"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type registry struct {
	url   string
	clock *manualClock
	hits  map[string]int
	mu    sync.Mutex
}

func (r *registry) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func startRegistry(t *testing.T, legacy bool) *registry {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	log := zaptest.NewLogger(t)
	env := service.Env{Clock: clock, Logger: log}
	crypto := didkey.New()
	sessions := store.NewMemorySessions()
	tk := tokenizer.NewOpaqueTokenizer()

	handshake := service.NewHandshakeService(crypto, store.NewMemoryChallenges(), sessions, tk, "reach.test", env)
	reg := service.NewRegistryService(store.NewMemoryRegistry(), sessions, tk, crypto, events.NopPublisher{}, legacy, env)
	router := transport.SetupRouter(handshake, reg, log)

	r := &registry{clock: clock, hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.hits[req.URL.Path]++
		r.mu.Unlock()
		router.ServeHTTP(w, req)
	}))
	t.Cleanup(srv.Close)
	r.url = srv.URL
	return r
}

func newClient(t *testing.T, r *registry) *HTTPClient {
	t.Helper()
	id, err := GenerateIdentity()
	require.NoError(t, err)
	return NewHTTPClient(r.url+"/", id, WithClock(r.clock), WithLogger(zaptest.NewLogger(t)))
}

func u64(v uint64) *uint64 { return &v }

func TestClient_RegisterLookupDeregister(t *testing.T) {
	r := startRegistry(t, false)
	alice, bob := newClient(t, r), newClient(t, r)
	ctx := context.Background()

	res, err := alice.Register(ctx, "https://alice.example/inbox", u64(120))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, alice.DID(), res.DID)
	assert.Equal(t, r.clock.Now().Unix()+120, res.ExpiresAt)

	listing, err := bob.Lookup(ctx, alice.DID())
	require.NoError(t, err)
	assert.Equal(t, "https://alice.example/inbox", listing.Endpoint)
	assert.Equal(t, core.StatusOnline, listing.Status)

	status, err := alice.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)

	ok, err := alice.Deregister(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = bob.Lookup(ctx, alice.DID())
	assert.ErrorIs(t, err, core.ErrNotFound)

	status, err = alice.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestClient_ReusesSession(t *testing.T) {
	r := startRegistry(t, false)
	c := newClient(t, r)
	ctx := context.Background()

	_, err := c.Register(ctx, "https://a.example", nil)
	require.NoError(t, err)
	_, err = c.Register(ctx, "https://b.example", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.count("/proof"))

	// past the session window the client authenticates again before sending
	r.clock.Advance(core.SessionTTL)
	_, err = c.Register(ctx, "https://c.example", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.count("/proof"))
}

func TestClient_ReauthenticatesOnRejectedSession(t *testing.T) {
	r := startRegistry(t, false)
	c := newClient(t, r)
	ctx := context.Background()

	require.NoError(t, c.Authenticate(ctx))
	c.session.set("00000000-0000-4000-8000-000000000000", r.clock.Now())

	_, err := c.Register(ctx, "https://a.example", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.count("/proof"))
	assert.Equal(t, 2, r.count("/register"))
}

func TestClient_DeregisterClearsSession(t *testing.T) {
	r := startRegistry(t, false)
	c := newClient(t, r)
	ctx := context.Background()

	_, err := c.Register(ctx, "https://a.example", nil)
	require.NoError(t, err)
	_, err = c.Deregister(ctx)
	require.NoError(t, err)

	_, ok := c.session.get(r.clock.Now())
	assert.False(t, ok)

	_, err = c.Register(ctx, "https://a.example", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.count("/proof"))
}

func TestClient_ErrorsMapToCore(t *testing.T) {
	r := startRegistry(t, false)
	c := newClient(t, r)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "did:web:example.com")
	assert.ErrorIs(t, err, core.ErrInvalidDID)

	_, err = c.Register(ctx, "", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = c.Register(ctx, "https://a.example", u64(0))
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = c.Register(ctx, "https://a.example", u64(30))
	require.NoError(t, err)
	r.clock.Advance(31 * time.Second)
	_, err = c.Lookup(ctx, c.DID())
	assert.ErrorIs(t, err, core.ErrExpired)
}

func TestClient_RegisterSigned(t *testing.T) {
	ctx := context.Background()

	off := startRegistry(t, false)
	_, err := newClient(t, off).RegisterSigned(ctx, "wss://a.example:8080", nil)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	on := startRegistry(t, true)
	c := newClient(t, on)
	res, err := c.RegisterSigned(ctx, "wss://a.example:8080", u64(90))
	require.NoError(t, err)
	assert.Equal(t, on.clock.Now().Unix()+90, res.ExpiresAt)
	assert.Equal(t, 0, on.count("/proof"))
}

func TestSignedRegistration_Verifies(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	req := SignedRegistration(id, "wss://test.example.com:8080", nil)
	assert.Nil(t, req.TTL)

	crypto := didkey.New()
	key, err := crypto.ParseDID(id.DID())
	require.NoError(t, err)
	sig, err := crypto.DecodeSignature(req.Signature)
	require.NoError(t, err)
	assert.True(t, crypto.Verify(key, core.RegistrationMessage(id.DID(), "wss://test.example.com:8080", 3600), sig))
}

func TestIdentity_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-id", "identity.json")

	_, err := LoadIdentity(path)
	assert.ErrorIs(t, err, ErrNoIdentity)

	created, err := LoadOrGenerateIdentity(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, created.DID(), loaded.DID())

	again, err := LoadOrGenerateIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, created.DID(), again.DID())

	require.NoError(t, os.WriteFile(path, []byte(`{"secret_key":"c2hvcnQ="}`), 0o600))
	_, err = LoadIdentity(path)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestIdentity_DeterministicDID(t *testing.T) {
	seed := make([]byte, 32)
	a, err := NewIdentity(seed)
	require.NoError(t, err)
	b, err := NewIdentity(seed)
	require.NoError(t, err)
	assert.Equal(t, a.DID(), b.DID())
	assert.Regexp(t, `^did:key:z6Mk`, a.DID())
}

func TestAPIError_UnwrapsWrappedMessage(t *testing.T) {
	err := &APIError{StatusCode: http.StatusBadRequest, Message: "ttl must be between 1 and 315360000 seconds: invalid request"}
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	err = &APIError{StatusCode: http.StatusNotFound, Message: core.ErrNotFound.Error()}
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = &APIError{StatusCode: http.StatusTeapot, Message: "short and stout"}
	assert.Nil(t, err.Unwrap())
}

// Signatures whose base64 form starts with "0x" must still be accepted
func TestClient_RegisterSignedBase64With0xPrefix(t *testing.T) {
	r := startRegistry(t, true)
	id, err := NewIdentity(make([]byte, 32))
	require.NoError(t, err)

	var endpoint string
	var req SignedRequest
	for i := 0; i < 1<<20; i++ {
		endpoint = "https://a.example/" + strconv.Itoa(i)
		req = SignedRegistration(id, endpoint, nil)
		if strings.HasPrefix(req.Signature, "0x") {
			break
		}
	}
	require.True(t, strings.HasPrefix(req.Signature, "0x"))

	c := NewHTTPClient(r.url, id, WithClock(r.clock))
	res, err := c.RegisterSigned(context.Background(), endpoint, nil)
	require.NoError(t, err)
	assert.Equal(t, id.DID(), res.DID)
}
