package errs

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errRoot = errors.New("root")

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))

	err := Wrapf(Wrap(errRoot, "read"), "station %s", "cnc_1")
	assert.ErrorIs(t, err, errRoot)
	assert.Equal(t, "station cnc_1: read: root", err.Error())
	assert.Equal(t, []string{"station cnc_1: read: root", "read: root", "root"}, Chain(err))
}

func TestAsAppError(t *testing.T) {
	nf := ErrNotFound("station").WithDetail("id", "x")
	wrapped := Wrap(nf, "lookup")

	got := AsAppError(wrapped)
	assert.Same(t, nf, got)
	assert.Equal(t, http.StatusNotFound, got.HTTPStatus)
	assert.Equal(t, "x", got.Details["id"])

	internal := AsAppError(errRoot)
	assert.Equal(t, CodeInternal, internal.Code)
	assert.ErrorIs(t, internal, errRoot)
}
