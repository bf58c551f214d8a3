package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("purchase: %w", OutOfStock("c1"))

	assert.True(t, stderrors.Is(err, OutOfStock("")))
	assert.False(t, stderrors.Is(err, NotPublished("")))
	assert.True(t, HasCode(err, CodeOutOfStock))
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := Validation("bad")
	withID := base.WithDetails("field", "price")

	assert.Nil(t, base.Details)
	assert.Equal(t, "price", withID.Details["field"])
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))

	plain := Wrap(stderrors.New("disk"), "store failed")
	assert.Equal(t, CodeInternal, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.HTTPStatus)

	typed := Wrap(fmt.Errorf("ctx: %w", AlreadyOpened("i1")), "ignored")
	assert.Equal(t, CodeAlreadyOpened, typed.Code)
}

func TestAuthorizationStatuses(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, Unauthorized("").HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, Unauthenticated("").HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, InvalidToken(nil).HTTPStatus)
}
