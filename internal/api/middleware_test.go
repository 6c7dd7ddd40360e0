package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaengine/engine/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.DataRoot = t.TempDir()
	require.NoError(t, cfg.EnsureLayout())
	return New(Deps{
		Config:     cfg,
		Token:      "secret-token",
		EngineUUID: "uuid-test",
		StartedAt:  time.Now(),
	})
}

func protectedProbe(s *Server) http.Handler {
	return s.authAndOrigin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

// Given: a request with the correct bearer token and no Origin
// Then: it reaches the handler
func TestAuthAndOrigin_AcceptsBearerToken(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()

	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthAndOrigin_RejectsMissingToken(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()

	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTH_INVALID")
}

func TestAuthAndOrigin_RejectsWrongToken(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()

	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Given: an Origin that is neither the shell's nor the dev origin
// Then: the request is rejected before auth is even considered
func TestAuthAndOrigin_RejectsUnknownOrigin(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()

	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ORIGIN_REJECTED")
}

func TestAuthAndOrigin_AllowsShellOrigin(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", s.d.Config.ShellOrigin)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()

	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, s.d.Config.ShellOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
}

// The dev origin only passes in debug mode.
func TestAuthAndOrigin_DevOriginRequiresDebug(t *testing.T) {
	s := testServer(t)
	s.d.Config.DevOrigin = "http://localhost:5173"

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.d.Config.Debug = true
	rec = httptest.NewRecorder()
	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// WebSocket handshakes carry the token as a subprotocol entry.
func TestRequestToken_WebSocketSubprotocol(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Sec-WebSocket-Protocol", "bearer.secret-token, json")
	assert.Equal(t, "secret-token", requestToken(req))
}

func TestRequestToken_QueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events?token=secret-token", nil)
	assert.Equal(t, "secret-token", requestToken(req))
}

// Preflight requests are answered without a token.
func TestAuthAndOrigin_PreflightShortCircuits(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", s.d.Config.ShellOrigin)
	rec := httptest.NewRecorder()

	protectedProbe(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestHandleHealth_ReportsUUIDWithoutAuth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"engine_uuid":"uuid-test"`)
}
