package payment

import (
	"context"

	"callfeed-backend/internal/domain"
)

// Gateway is the external payment-processor contract. The four calls run
// strictly in sequence; no retries happen at this layer.
type Gateway interface {
	// CreatePaymentIntent registers an intended charge for an integral
	// amount already normalized for the currency
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*domain.PaymentIntent, error)

	// TokenizeCard exchanges raw card details for a single-use token
	TokenizeCard(ctx context.Context, card domain.CardDetails) (string, error)

	// CreatePaymentMethod turns a card token into a reusable method id
	CreatePaymentMethod(ctx context.Context, tokenID string) (string, error)

	// ConfirmPaymentIntent executes the charge
	ConfirmPaymentIntent(ctx context.Context, methodID, clientSecret, intentID string) error
}
