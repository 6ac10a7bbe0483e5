package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetKind(t *testing.T) {
	for _, tc := range []struct {
		kind Kind
		err  error
	}{
		{Validation, ValidationError("bad %s", "input")},
		{Auth, AuthError("denied")},
		{NotFound, NotFoundError("missing")},
		{Conflict, ConflictError("taken")},
		{Unavailable, UnavailableError("down")},
		{Infrastructure, InfrastructureError("boom")},
	} {
		assert.True(t, Is(tc.err, tc.kind))
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), Validation))
}

func TestErrorMessageFormatting(t *testing.T) {
	err := ValidationError("route port %d is out of range", 99999)
	assert.Equal(t, "route port 99999 is out of range", err.Error())
}
