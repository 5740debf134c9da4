package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidTransitionCarriesStates(t *testing.T) {
	err := NewInvalidTransition("approveFinance", "NEW", "FINANCE_APPROVED")

	assert.Equal(t, CodeInvalidTransition, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, "NEW", err.Details["from"])
	assert.Equal(t, "FINANCE_APPROVED", err.Details["to"])
	assert.Equal(t, "approveFinance", err.Details["operation"])
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("ship deal: %w", NewInsufficientStock("p-1", 6, 4))

	assert.True(t, IsInsufficientStock(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(wrapped))

	appErr, ok := AsAppError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, int64(6), appErr.Details["requested"])
	assert.Equal(t, int64(4), appErr.Details["available"])
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	err := errors.New("connection refused")

	assert.False(t, IsAppError(err))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(err))
}

func TestConflictCoversDuplicates(t *testing.T) {
	assert.True(t, IsConflict(NewDuplicate("product", "sku", "A-1")))
	assert.True(t, IsConflict(NewConflict("contract number taken")))
	assert.False(t, IsConflict(NewValidation("bad")))
}

func TestWithCauseIsUnwrappable(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternal(nil).WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}
