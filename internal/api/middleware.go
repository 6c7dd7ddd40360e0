package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	enginerrors "github.com/mediaengine/engine/internal/errors"
)

// wsBearerPrefix is the Sec-WebSocket-Protocol entry the desktop shell
// uses to carry the token on event-stream upgrades, since browsers
// cannot set an Authorization header on a WebSocket handshake.
const wsBearerPrefix = "bearer."

// authAndOrigin enforces the bearer token and the Origin allowlist on
// every route except /health. Auth failures return immediately without
// touching any other state.
func (s *Server) authAndOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !s.originAllowed(origin) {
			writeError(w, http.StatusForbidden, enginerrors.KindOriginRejected, "origin not allowed")
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		token := requestToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.d.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, enginerrors.KindAuthInvalid, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts an absent Origin (the shell's native HTTP
// client), the configured shell origin, and the dev origin in debug
// mode only.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if origin == s.d.Config.ShellOrigin {
		return true
	}
	if s.d.Config.Debug && s.d.Config.DevOrigin != "" && origin == s.d.Config.DevOrigin {
		return true
	}
	return false
}

// requestToken extracts the bearer token from, in order: the
// Authorization header, the WebSocket subprotocol list, and the
// query-string fallback.
func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return tok
		}
	}
	for _, proto := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(proto, ",") {
			p = strings.TrimSpace(p)
			if tok, ok := strings.CutPrefix(p, wsBearerPrefix); ok {
				return tok
			}
		}
	}
	return r.URL.Query().Get("token")
}
