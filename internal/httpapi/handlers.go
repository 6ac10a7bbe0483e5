package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nsl-router/nsl-router/internal/apperrors"
	"github.com/nsl-router/nsl-router/internal/signing"
	"github.com/nsl-router/nsl-router/internal/validate"
)

func certValidity(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

// availabilityStatus is the non-standard 209 sentinel used by
// /available/{label} to signal "checked successfully, not available"
// without conflating it with a 4xx client error.
const availabilityStatus = 209

// userNotFoundStatus is the non-standard 280 sentinel used by
// /domain/{userId} to signal an absent record.
const userNotFoundStatus = 280

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	result, err := s.Identities.CheckAvailability(r.Context(), label)
	if err != nil {
		s.sendError(w, r, err, "available")
		return
	}
	if !result.Available {
		writeJSON(w, availabilityStatus, map[string]interface{}{"available": false, "message": result.Reason})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"available": true, "message": result.Reason})
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	rec, err := s.Identities.GetByID(r.Context(), userID)
	if err != nil {
		s.sendError(w, r, err, "domain")
		return
	}
	if rec == nil {
		writeJSON(w, userNotFoundStatus, map[string]string{"error": "User not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"domainName":   rec.DomainName,
		"serverDomain": rec.ServerDomain,
		"publicKey":    rec.PublicKey,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sig := chi.URLParam(r, "sig")

	result, err := s.Authenticator.Authenticate(r.Context(), userID, sig)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}

	switch result {
	case signing.Authenticated:
		rec, err := s.Identities.GetByID(r.Context(), userID)
		if err != nil || rec == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "unknown user"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"serverDomain": rec.ServerDomain,
			"domainName":   rec.DomainName,
		})
	case signing.UnknownUser:
		writeJSON(w, http.StatusOK, map[string]string{"error": "unknown user"})
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"valid": false})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	rec, err := s.Identities.GetByID(r.Context(), userID)
	if err != nil {
		s.sendError(w, r, err, "status")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found."})
		return
	}

	online := false
	var lastSeen interface{}
	if rec.LastSeenOnline != nil {
		online = s.now().Sub(*rec.LastSeenOnline).Seconds() <= OnlineThresholdSeconds
		lastSeen = rec.LastSeenOnline
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":         online,
		"lastSeenOnline": lastSeen,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	label := strings.ToLower(chi.URLParam(r, "label"))

	rec, err := s.Identities.GetByDomain(r.Context(), label)
	if err != nil {
		s.sendError(w, r, err, "resolve")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Domain not found."})
		return
	}

	routes, err := s.Routes.GetRoutes(r.Context(), rec.UserID)
	if err != nil {
		s.sendError(w, r, err, "resolve")
		return
	}
	ttl, err := s.Routes.GetRoutesTTL(r.Context(), rec.UserID)
	if err != nil {
		s.sendError(w, r, err, "resolve")
		return
	}
	if routes == nil {
		routes = []validate.Route{}
	}

	var lastSeen interface{}
	if rec.LastSeenOnline != nil {
		lastSeen = rec.LastSeenOnline
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":         rec.UserID,
		"domainName":     rec.DomainName,
		"serverDomain":   rec.ServerDomain,
		"routes":         routes,
		"routesTtl":      ttl,
		"lastSeenOnline": lastSeen,
	})
}

func (s *Server) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	routes, err := s.Routes.GetRoutes(r.Context(), userID)
	if err != nil {
		s.sendError(w, r, err, "routes")
		return
	}
	if routes == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No routes found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"routes": routes})
}

func (s *Server) handleCACert(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := s.CertAuthority.GetCACertificate()
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("certificate authority is not initialized"))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pemBytes)
}

// requireSignature authenticates sig over userID and writes the
// appropriate error response on failure. It returns true only when the
// caller may proceed.
func (s *Server) requireSignature(w http.ResponseWriter, r *http.Request, userID, sig, endpoint string) bool {
	result, err := s.Authenticator.Authenticate(r.Context(), userID, sig)
	if err != nil {
		s.sendError(w, r, err, endpoint)
		return false
	}
	switch result {
	case signing.Authenticated:
		return true
	case signing.UnknownUser:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found."})
		return false
	default:
		s.sendError(w, r, apperrors.AuthError("signature verification failed for user %s on endpoint %s", userID, endpoint), endpoint)
		return false
	}
}

type registerRoutesRequest struct {
	Routes []validate.Route `json:"routes"`
}

func (s *Server) handlePostRoutes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sig := chi.URLParam(r, "sig")

	var body registerRoutesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Routes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "routes is required"})
		return
	}

	if !s.requireSignature(w, r, userID, sig, "routes") {
		return
	}

	// Validation failures here are surfaced as 500, matching this control
	// plane's long-observed (if non-canonical) behavior; see design notes.
	if err := s.Routes.Register(r.Context(), userID, body.Routes); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	rec, _ := s.Identities.GetByID(r.Context(), userID)
	domain := ""
	if rec != nil {
		domain = rec.DomainName
	}
	_, _ = s.Identities.TouchRouteRegistration(r.Context(), userID)

	routes, err := s.Routes.GetRoutes(r.Context(), userID)
	if err != nil {
		s.sendError(w, r, err, "routes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Routes registered.",
		"routes":  routes,
		"domain":  domain,
	})
}

func (s *Server) handleDeleteRoutes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sig := chi.URLParam(r, "sig")
	if !s.requireSignature(w, r, userID, sig, "routes") {
		return
	}
	if err := s.Routes.DeleteRoutes(r.Context(), userID); err != nil {
		s.sendError(w, r, err, "routes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Routes deleted."})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sig := chi.URLParam(r, "sig")
	if !s.requireSignature(w, r, userID, sig, "heartbeat") {
		return
	}
	ts, err := s.Identities.TouchHeartbeat(r.Context(), userID)
	if err != nil {
		s.sendError(w, r, err, "heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Heartbeat recorded.",
		"lastSeenOnline": ts,
	})
}

type certRequest struct {
	CSR      string `json:"csr"`
	PublicIP string `json:"publicIp"`
}

func (s *Server) handleCert(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sig := chi.URLParam(r, "sig")
	if !s.requireSignature(w, r, userID, sig, "cert") {
		return
	}

	var body certRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CSR == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "csr is required"})
		return
	}

	result, err := s.CertAuthority.SignCSR([]byte(body.CSR), userID, s.ServerDomain, body.PublicIP, certValidity(s.CertValidityHours))
	if err != nil {
		s.sendError(w, r, err, "cert")
		return
	}

	caCertPEM, err := s.CertAuthority.GetCACertificate()
	if err != nil {
		s.sendError(w, r, err, "cert")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"certificate":   result.CertificatePEM,
		"expiresAt":     result.NotAfter,
		"caCertificate": string(caCertPEM),
	})
}
