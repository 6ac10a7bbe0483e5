package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nsl-router/nsl-router/internal/apperrors"
)

type requestIDKey struct{}

// requestIDMiddleware stamps every request with a short correlation id,
// threaded into audit log lines for auth-denied and conflict paths.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendError maps a RouterError's Kind to a status code and writes a JSON
// error body. Non-RouterError failures are treated as Infrastructure
// errors and surfaced as 500 with the underlying message embedded, which
// matches this control plane's observed (if imperfect) behavior: an
// internal error is not hidden from an internal client.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error, authEndpoint string) {
	re, ok := err.(*apperrors.RouterError)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	switch re.Kind {
	case apperrors.Validation:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": re.Detail})
	case apperrors.Auth:
		s.Log.Warning("auth denied: endpoint=%s requestId=%s remote=%s ua=%s detail=%s",
			authEndpoint, requestID(r), r.RemoteAddr, r.UserAgent(), re.Detail)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case apperrors.NotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": re.Detail})
	case apperrors.Conflict:
		s.Log.Warning("conflict: endpoint=%s requestId=%s detail=%s",
			authEndpoint, requestID(r), re.Detail)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": re.Detail})
	case apperrors.Unavailable:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": re.Detail})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": re.Detail})
	}
}
