package errs

import (
	"errors"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapMsg_KeepsCodeAndAppendsDetail(t *testing.T) {
	err := ErrNotFound.WrapMsg("room missing", "roomId", "a_b")

	require.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrSelfRoom))
	assert.Equal(t, "1004 NotFound room missing, roomId=a_b", err.Error())
	assert.Empty(t, ErrNotFound.Detail, "sentinel must not be mutated")
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := pkgerrors.Wrap(ErrStoreUnavailable.Wrap(cause), "append")

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusServiceUnavailable, From(err).HTTPStatus())
}

func TestFrom_FallsBackToInternal(t *testing.T) {
	ce := From(errors.New("boom"))
	assert.Equal(t, ServerInternalError, ce.Code)
	assert.Equal(t, http.StatusInternalServerError, ce.HTTPStatus())
	assert.Nil(t, From(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[*CodeError]int{
		ErrInvalidArgument: http.StatusBadRequest,
		ErrUnauthenticated: http.StatusUnauthorized,
		ErrNotParticipant:  http.StatusForbidden,
		ErrNotFound:        http.StatusNotFound,
		ErrSelfRoom:        http.StatusUnprocessableEntity,
	}
	for ce, want := range cases {
		assert.Equal(t, want, ce.HTTPStatus(), ce.Msg)
	}
}

func TestErrPanic(t *testing.T) {
	assert.Nil(t, ErrPanic(nil))
	err := ErrPanic("kaboom")
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Contains(t, err.Error(), "kaboom")
}
