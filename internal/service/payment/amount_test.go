package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "callfeed-backend/pkg/errors"
)

func TestNormalizeAmountMinorUnits(t *testing.T) {
	got, err := NormalizeAmount(5.00, "USD")
	assert.NoError(t, err)
	assert.Equal(t, int64(500), got)

	got, err = NormalizeAmount(19.99, "EUR")
	assert.NoError(t, err)
	assert.Equal(t, int64(1999), got)
}

func TestNormalizeAmountZeroDecimal(t *testing.T) {
	got, err := NormalizeAmount(5.00, "JPY")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = NormalizeAmount(1200, "KRW")
	assert.NoError(t, err)
	assert.Equal(t, int64(1200), got)
}

func TestNormalizeAmountCaseInsensitiveCurrency(t *testing.T) {
	got, err := NormalizeAmount(5.00, "jpy")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), got)
}

func TestNormalizeAmountRoundsHalfToEven(t *testing.T) {
	// 0.125 * 100 = 12.5 rounds down to the even 12,
	// 0.135 * 100 = 13.5 rounds up to the even 14.
	got, err := NormalizeAmount(0.125, "USD")
	assert.NoError(t, err)
	assert.Equal(t, int64(12), got)

	got, err = NormalizeAmount(0.135, "USD")
	assert.NoError(t, err)
	assert.Equal(t, int64(14), got)
}

func TestNormalizeAmountRejectsNonPositive(t *testing.T) {
	for _, amount := range []float64{0, -1, -0.01} {
		_, err := NormalizeAmount(amount, "USD")
		assert.Error(t, err)
		appErr := apperrors.GetAppError(err)
		assert.Equal(t, apperrors.ErrCodeInvalidAmount, appErr.Code)
	}
}

func TestNormalizeAmountRejectsUnsupportedCurrency(t *testing.T) {
	_, err := NormalizeAmount(5.00, "XYZ")
	assert.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedCurrency, appErr.Code)
}

func TestIsZeroDecimal(t *testing.T) {
	assert.True(t, IsZeroDecimal("JPY"))
	assert.True(t, IsZeroDecimal("vnd"))
	assert.False(t, IsZeroDecimal("USD"))
}
