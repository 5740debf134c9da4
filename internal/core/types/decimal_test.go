package types

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crm/internal/core/apperror"
)

func TestLineTotalAndSum(t *testing.T) {
	total := Sum(LineTotal(5, MustMoney("100")), LineTotal(3, MustMoney("50")))

	assert.True(t, total.Equal(MustMoney("650")), "got %s", total)
}

func TestFloorZero(t *testing.T) {
	assert.True(t, FloorZero(MustMoney("-10.5")).IsZero())
	assert.True(t, FloorZero(MustMoney("330")).Equal(MustMoney("330")))
}

func TestCheckScale(t *testing.T) {
	assert.True(t, ValidScale(MustMoney("10.5")))
	assert.True(t, ValidScale(MustMoney("10.50")))
	assert.True(t, ValidScale(MustMoney("-3.25")))
	assert.False(t, ValidScale(MustMoney("10.004")))

	assert.NoError(t, CheckScale("price", MustMoney("630.00")))
	err := CheckScale("amount", MustMoney("0.006"))
	assert.True(t, apperror.IsValidation(err))
}
