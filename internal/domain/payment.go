package domain

// PaymentIntent is the gateway-side record of an intended charge
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CardDetails is the payment credential tokenized by the gateway.
// It never touches our persistence layer.
type CardDetails struct {
	Number      string `json:"number"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	CVC         string `json:"cvc"`
}

// PaymentResult is the outcome of a completed payment flow
type PaymentResult struct {
	IntentID        string `json:"intent_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Status          string `json:"status"`
}
