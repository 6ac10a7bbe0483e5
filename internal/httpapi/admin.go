package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// requireServiceToken implements the preshared-key half of the
// token-authenticated path used by POST /domain, DELETE /domain and
// POST /admin/cleanup: "Bearer <SERVICE_API_KEY>;<userId>". The identity-provider
// token half of that path is an external collaborator this control
// plane does not itself validate.
func (s *Server) requireServiceToken(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}
	rest := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(rest, ";", 2)
	if len(parts) != 2 || parts[0] == "" || parts[0] != s.ServiceAPIKey || parts[1] == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}
	return parts[1], true
}

type domainRequest struct {
	UserID       string `json:"userId"`
	DomainName   string `json:"domainName"`
	PublicKey    string `json:"publicKey"`
	ServerDomain string `json:"serverDomain"`
}

func (s *Server) handlePostDomain(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireServiceToken(w, r); !ok {
		return
	}

	var body domainRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	fields := map[string]interface{}{}
	if body.DomainName != "" {
		fields["domainName"] = body.DomainName
	}
	if body.PublicKey != "" {
		fields["publicKey"] = body.PublicKey
	}
	if body.ServerDomain != "" {
		fields["serverDomain"] = body.ServerDomain
	}

	if err := s.Identities.Upsert(r.Context(), body.UserID, fields); err != nil {
		s.sendError(w, r, err, "domain")
		return
	}
	if body.DomainName != "" {
		s.Log.Assigned(body.DomainName, body.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Domain registered."})
}

type deleteDomainRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireServiceToken(w, r); !ok {
		return
	}

	var body deleteDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	if err := s.Identities.Delete(r.Context(), body.UserID); err != nil {
		s.sendError(w, r, err, "domain")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Identity deleted."})
}

func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireServiceToken(w, r); !ok {
		return
	}

	result, err := s.Cleanup.Run(r.Context())
	if err != nil {
		s.sendError(w, r, err, "admin-cleanup")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
