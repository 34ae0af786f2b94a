package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(Conflict("payment %s already captured", "p1")))
	assert.Equal(t, KindNotFound, KindOf(errors.Wrap(NotFound("missing"), "loading")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:443: i/o timeout")
	err := Internal(cause, "payment provider unavailable")

	assert.Equal(t, "payment provider unavailable", PublicMessage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Cause(err))
	assert.Equal(t, "internal error", PublicMessage(cause))
}

func TestIs(t *testing.T) {
	err := errors.WithMessage(Forbidden("not your payment"), "capture")
	assert.True(t, Is(err, KindForbidden))
	assert.False(t, Is(err, KindConflict))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ValidationError", KindValidation.String())
	assert.Equal(t, "UnauthorizedError", KindUnauthorized.String())
	assert.Equal(t, "ForbiddenError", KindForbidden.String())
	assert.Equal(t, "NotFoundError", KindNotFound.String())
	assert.Equal(t, "ConflictError", KindConflict.String())
	assert.Equal(t, "InternalServerError", KindInternal.String())
}
