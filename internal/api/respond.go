package api

import (
	"encoding/json"
	"errors"
	"net/http"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

// errorBody is the JSON shape of every non-2xx response: a stable
// machine-readable code from the engine's error taxonomy plus a
// human-readable message.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code enginerrors.Kind, message string) {
	var body errorBody
	body.Error.Code = string(code)
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeErr maps an error from a component into an HTTP status via its
// Kind, falling back to 500/UNKNOWN_ERROR for untagged errors.
func writeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, enginerrors.KindUnknown, "not found")
		return
	}
	kind := enginerrors.KindOf(err)
	writeError(w, statusFor(kind), kind, err.Error())
}

func statusFor(kind enginerrors.Kind) int {
	switch kind {
	case enginerrors.KindFileNotFound, enginerrors.KindModelMissing:
		return http.StatusNotFound
	case enginerrors.KindAuthInvalid:
		return http.StatusUnauthorized
	case enginerrors.KindOriginRejected:
		return http.StatusForbidden
	case enginerrors.KindOfflineBlocked:
		return http.StatusForbidden
	case enginerrors.KindLockContention:
		return http.StatusServiceUnavailable
	case enginerrors.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a request body into v, rejecting unknown fields so
// a typoed setting name fails loudly instead of silently no-oping.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
