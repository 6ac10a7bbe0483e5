// Package httpapi exposes the control plane's REST surface: a chi router
// plus the handlers for every endpoint in the external interface
// description. JSON encoding/decoding is treated as commodity plumbing,
// as boulder's wfe2 treats it; this package's job is status-code mapping
// and wiring the four core subsystems together.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmhodges/clock"

	"github.com/nsl-router/nsl-router/internal/activity"
	"github.com/nsl-router/nsl-router/internal/ca"
	"github.com/nsl-router/nsl-router/internal/cleanup"
	"github.com/nsl-router/nsl-router/internal/identity"
	"github.com/nsl-router/nsl-router/internal/logging"
	"github.com/nsl-router/nsl-router/internal/routestore"
	"github.com/nsl-router/nsl-router/internal/signing"
)

// OnlineThresholdSeconds is the default window used to derive online
// status from lastSeenOnline.
const OnlineThresholdSeconds = 120

// Server wires the Identity Registry, Route Store, Activity Tracker,
// Signature Authenticator, Cleanup Controller, and Certificate Authority
// into the HTTP surface.
type Server struct {
	Identities      *identity.Registry
	Routes          *routestore.Store
	ActivityTracker *activity.Tracker
	Authenticator   *signing.Authenticator
	CertAuthority   *ca.CA
	Cleanup         *cleanup.Controller
	Log             *logging.AuditLogger
	Clock           clock.Clock

	ServerDomain      string
	ServiceAPIKey     string
	CertValidityHours int
}

// Router builds the chi router for the full endpoint surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Get("/available/{label}", s.handleAvailable)
	r.Get("/domain/{userId}", s.handleGetDomain)
	r.Get("/verify/{userId}/{sig}", s.handleVerify)
	r.Get("/status/{userId}", s.handleStatus)
	r.Get("/resolve/v2/{label}", s.handleResolve)
	r.Get("/routes/{userId}", s.handleGetRoutes)
	r.Get("/ca-cert", s.handleCACert)

	r.Post("/routes/{userId}/{sig}", s.handlePostRoutes)
	r.Delete("/routes/{userId}/{sig}", s.handleDeleteRoutes)
	r.Post("/heartbeat/{userId}/{sig}", s.handleHeartbeat)
	r.Post("/cert/{userId}/{sig}", s.handleCert)

	r.Post("/domain", s.handlePostDomain)
	r.Delete("/domain", s.handleDeleteDomain)
	r.Post("/admin/cleanup", s.handleAdminCleanup)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) now() time.Time {
	return s.Clock.Now().UTC()
}
