package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "callfeed-backend/pkg/errors"
)

func newTestStripeClient(t *testing.T, handler http.HandlerFunc) (*StripeClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewStripeClient(&StripeConfig{
		SecretKey: "sk_test_123",
		BaseURL:   server.URL,
		Timeout:   5 * time.Second,
	})
	assert.NoError(t, err)
	return client, server
}

func TestNewStripeClientRequiresSecretKey(t *testing.T) {
	_, err := NewStripeClient(&StripeConfig{})
	assert.Error(t, err)

	_, err = NewStripeClient(nil)
	assert.Error(t, err)
}

func TestCreatePaymentIntentSendsFormEncodedRequest(t *testing.T) {
	var gotPath, gotAmount, gotCurrency, gotUser string
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, r.ParseForm())
		gotAmount = r.PostForm.Get("amount")
		gotCurrency = r.PostForm.Get("currency")
		gotUser, _, _ = r.BasicAuth()
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret"}`))
	})

	intent, err := client.CreatePaymentIntent(context.Background(), 500, "USD")
	assert.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.Equal(t, "/v1/payment_intents", gotPath)
	assert.Equal(t, "500", gotAmount)
	assert.Equal(t, "usd", gotCurrency)
	assert.Equal(t, "sk_test_123", gotUser)
}

func TestCreatePaymentIntentMissingFieldsIsMalformed(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"pi_123"}`))
	})

	_, err := client.CreatePaymentIntent(context.Background(), 500, "USD")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGatewayMalformed, apperrors.GetAppError(err).Code)
}

func TestPostEmptyBodyIsMalformed(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.TokenizeCard(context.Background(), testCard())
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGatewayMalformed, apperrors.GetAppError(err).Code)
}

func TestPostErrorEnvelopeIsRejected(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := client.TokenizeCard(context.Background(), testCard())
	assert.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeGatewayRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "Your card was declined.")
}

func TestPostNonJSONErrorFallsBackToStatus(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream exploded`))
	})

	_, err := client.CreatePaymentMethod(context.Background(), "tok_abc")
	assert.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeGatewayRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "502")
}

func TestTokenizeCardSendsCardFields(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/tokens", r.URL.Path)
		assert.Equal(t, "4242424242424242", r.PostForm.Get("card[number]"))
		assert.Equal(t, "12", r.PostForm.Get("card[exp_month]"))
		assert.Equal(t, "2030", r.PostForm.Get("card[exp_year]"))
		assert.Equal(t, "123", r.PostForm.Get("card[cvc]"))
		w.Write([]byte(`{"id":"tok_abc"}`))
	})

	tokenID, err := client.TokenizeCard(context.Background(), testCard())
	assert.NoError(t, err)
	assert.Equal(t, "tok_abc", tokenID)
}

func TestCreatePaymentMethodSendsToken(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_methods", r.URL.Path)
		assert.Equal(t, "card", r.PostForm.Get("type"))
		assert.Equal(t, "tok_abc", r.PostForm.Get("card[token]"))
		w.Write([]byte(`{"id":"pm_xyz"}`))
	})

	methodID, err := client.CreatePaymentMethod(context.Background(), "tok_abc")
	assert.NoError(t, err)
	assert.Equal(t, "pm_xyz", methodID)
}

func TestConfirmPaymentIntentTargetsIntentPath(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_intents/pi_123/confirm", r.URL.Path)
		assert.Equal(t, "pm_xyz", r.PostForm.Get("payment_method"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Write([]byte(`{"status":"succeeded"}`))
	})

	err := client.ConfirmPaymentIntent(context.Background(), "pm_xyz", "secret", "pi_123")
	assert.NoError(t, err)
}

func TestConfirmPaymentIntentMissingStatusIsMalformed(t *testing.T) {
	client, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	err := client.ConfirmPaymentIntent(context.Background(), "pm_xyz", "secret", "pi_123")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGatewayMalformed, apperrors.GetAppError(err).Code)
}
