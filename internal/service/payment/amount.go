package payment

import (
	"math"
	"strings"

	apperrors "callfeed-backend/pkg/errors"
)

// zeroDecimalCurrencies are sent to the gateway as whole units; all other
// currencies are sent as integer minor units (amount x 100).
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// supportedCurrencies is the set the donation flow accepts
var supportedCurrencies = map[string]struct{}{
	"AUD": {}, "BIF": {}, "BRL": {}, "CAD": {}, "CHF": {}, "CLP": {},
	"CNY": {}, "CZK": {}, "DJF": {}, "DKK": {}, "EUR": {}, "GBP": {},
	"GNF": {}, "HKD": {}, "HUF": {}, "INR": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "MXN": {}, "NOK": {}, "NZD": {}, "PLN": {},
	"PYG": {}, "RWF": {}, "SEK": {}, "SGD": {}, "UGX": {}, "USD": {},
	"VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {}, "ZAR": {},
}

// IsZeroDecimal reports whether a currency has no minor unit
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]
	return ok
}

// IsSupportedCurrency reports whether the donation flow accepts a currency
func IsSupportedCurrency(currency string) bool {
	_, ok := supportedCurrencies[strings.ToUpper(currency)]
	return ok
}

// NormalizeAmount converts a decimal amount into the integral amount the
// gateway expects: whole units for zero-decimal currencies, minor units
// (x100, rounded to nearest even) for everything else. Validation happens
// here, before any network call.
func NormalizeAmount(amount float64, currency string) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.InvalidAmountError("amount must be positive")
	}
	if !IsSupportedCurrency(currency) {
		return 0, apperrors.UnsupportedCurrencyError(currency)
	}

	if IsZeroDecimal(currency) {
		return int64(math.RoundToEven(amount)), nil
	}
	return int64(math.RoundToEven(amount * 100)), nil
}
