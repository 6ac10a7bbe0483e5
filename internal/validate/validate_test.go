package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsl-router/nsl-router/internal/apperrors"
)

func TestLabel(t *testing.T) {
	for _, tc := range []struct {
		label string
		want  bool
	}{
		{"myapp", true},
		{"my-app", false},
		{"MyApp", false},
		{"", false},
		{"a", true},
		{"123", true},
		{string(make([]byte, 64)), false},
	} {
		assert.Equal(t, tc.want, Label(tc.label), "label %q", tc.label)
	}
}

func TestReservedLabels(t *testing.T) {
	for _, label := range []string{"root", "app", "www"} {
		assert.True(t, ReservedLabels[label])
	}
	assert.False(t, ReservedLabels["myapp"])
}

func TestDedupeKeyDefaultsSchemeAndType(t *testing.T) {
	a := Route{IP: "10.0.0.1", Port: 443, Source: "vpn"}
	b := Route{IP: "10.0.0.1", Port: 443, Source: "vpn", Scheme: SchemeHTTPS, Type: RouteTypeIP}
	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
}

func TestDedupeKeyDistinguishesPort(t *testing.T) {
	a := Route{IP: "10.0.0.1", Port: 443, Source: "vpn"}
	b := Route{IP: "10.0.0.1", Port: 8443, Source: "vpn"}
	assert.NotEqual(t, a.DedupeKey(), b.DedupeKey())
}

func TestNormalizeFillsDefaults(t *testing.T) {
	r := Route{IP: "10.0.0.1", Port: 443, Source: "vpn"}
	norm := r.Normalize()
	assert.Equal(t, SchemeHTTPS, norm.Scheme)
	assert.Equal(t, RouteTypeIP, norm.Type)
}

func TestValidateRouteRejectsMissingSource(t *testing.T) {
	err := ValidateRoute(Route{IP: "10.0.0.1", Port: 443})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Validation))
}

func TestValidateRouteRejectsBadIP(t *testing.T) {
	err := ValidateRoute(Route{IP: "not-an-ip", Port: 443, Source: "vpn"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Validation))
}

func TestValidateRouteRejectsPortOutOfRange(t *testing.T) {
	for _, port := range []int{0, -1, 65536, 100000} {
		err := ValidateRoute(Route{IP: "10.0.0.1", Port: port, Source: "vpn"})
		require.Errorf(t, err, "port %d", port)
	}
}

func TestValidateRouteAcceptsIPv6Literal(t *testing.T) {
	err := ValidateRoute(Route{IP: "::1", Port: 443, Source: "vpn"})
	require.NoError(t, err)
}

func TestValidateRouteRejectsUnknownScheme(t *testing.T) {
	err := ValidateRoute(Route{IP: "10.0.0.1", Port: 443, Source: "vpn", Scheme: "ftp"})
	require.Error(t, err)
}

func TestValidateRouteDomainTypeRequiresDomainField(t *testing.T) {
	err := ValidateRoute(Route{IP: "10.0.0.1", Port: 443, Source: "vpn", Type: RouteTypeDomain})
	require.Error(t, err)

	err = ValidateRoute(Route{IP: "10.0.0.1", Port: 443, Source: "vpn", Type: RouteTypeDomain, Domain: "example.com"})
	require.NoError(t, err)
}
