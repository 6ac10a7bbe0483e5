// Package validate holds the field- and range-level checks applied to
// identity labels and route leases before they reach storage. Exception
// ("fail fast") style validation is deliberately avoided here: every check
// returns a fallible error value so the HTTP layer is the only place that
// converts a failure into a status code.
package validate

import (
	"net"
	"regexp"
	"strconv"

	"github.com/nsl-router/nsl-router/internal/apperrors"
)

// ReservedLabels can never be allocated as a subdomain.
var ReservedLabels = map[string]bool{
	"root": true,
	"app":  true,
	"www":  true,
}

var labelPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Label reports whether s is a syntactically valid subdomain label:
// lowercase letters and digits only, 1-63 characters.
func Label(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	return labelPattern.MatchString(s)
}

// RouteType enumerates the closed sum of route endpoint kinds.
type RouteType string

const (
	RouteTypeIP     RouteType = "ip"
	RouteTypeDomain RouteType = "domain"
)

// Scheme enumerates the transport schemes a route may advertise.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// HealthCheck is the optional liveness hint attached to a route. The control
// plane never acts on it directly (no health probing is performed here);
// it is carried through as opaque metadata for downstream proxies.
type HealthCheck struct {
	Path string `json:"path"`
	Host string `json:"host,omitempty"`
}

// Route is one reachable endpoint within a lease.
type Route struct {
	IP          string       `json:"ip"`
	Port        int          `json:"port"`
	Priority    int          `json:"priority"`
	Scheme      Scheme       `json:"scheme,omitempty"`
	Source      string       `json:"source"`
	HealthCheck *HealthCheck `json:"healthCheck,omitempty"`
	Type        RouteType    `json:"type,omitempty"`
	Domain      string       `json:"domain,omitempty"`
}

// DedupeKey is the composite key that determines whether two routes within
// one lease are duplicates of each other.
func (r Route) DedupeKey() string {
	return r.IP + "|" + strconv.Itoa(r.Port) + "|" + string(r.effectiveScheme()) + "|" + string(r.effectiveType()) + "|" + r.Domain
}

func (r Route) effectiveScheme() Scheme {
	if r.Scheme == "" {
		return SchemeHTTPS
	}
	return r.Scheme
}

func (r Route) effectiveType() RouteType {
	if r.Type == "" {
		return RouteTypeIP
	}
	return r.Type
}

// Normalize fills in the default scheme/type so every stored route carries
// an explicit value.
func (r Route) Normalize() Route {
	r.Scheme = r.effectiveScheme()
	r.Type = r.effectiveType()
	return r
}

// ValidateRoute applies the field and range checks from the data model: a
// valid IPv4/IPv6 literal, a port in [1, 65535], a non-empty source, and a
// known scheme/type.
func ValidateRoute(r Route) error {
	if r.Source == "" {
		return apperrors.ValidationError("route is missing required field: source")
	}
	if net.ParseIP(r.IP) == nil {
		return apperrors.ValidationError("route has invalid ip literal: %q", r.IP)
	}
	if r.Port < 1 || r.Port > 65535 {
		return apperrors.ValidationError("route port %d is out of range [1, 65535]", r.Port)
	}
	switch r.Scheme {
	case "", SchemeHTTP, SchemeHTTPS:
	default:
		return apperrors.ValidationError("route has unknown scheme: %q", r.Scheme)
	}
	switch r.Type {
	case "", RouteTypeIP:
	case RouteTypeDomain:
		if r.Domain == "" {
			return apperrors.ValidationError("route of type domain is missing the domain field")
		}
	default:
		return apperrors.ValidationError("route has unknown type: %q", r.Type)
	}
	return nil
}
