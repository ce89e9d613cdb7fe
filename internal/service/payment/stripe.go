package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	apperrors "callfeed-backend/pkg/errors"
	"callfeed-backend/pkg/logger"
)

// StripeConfig contains configuration for the Stripe gateway client
type StripeConfig struct {
	SecretKey string        // sk_... secret key, sent as basic auth user
	BaseURL   string        // override for tests; defaults to the live API
	Timeout   time.Duration // per-request timeout
}

const defaultStripeBaseURL = "https://api.stripe.com"

// StripeClient implements Gateway against the Stripe HTTP API.
// Requests are form-encoded POSTs authenticated with the secret key.
type StripeClient struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// NewStripeClient creates a new Stripe gateway client
func NewStripeClient(config *StripeConfig) (*StripeClient, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultStripeBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &StripeClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secretKey:  config.SecretKey,
	}, nil
}

// CreatePaymentIntent registers an intended charge
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*domain.PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.post(ctx, "/v1/payment_intents", form, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, apperrors.GatewayMalformedError("payment intent response missing id or client secret", nil)
	}

	logger.Debug("created payment intent", zap.String("intent_id", out.ID))
	return &domain.PaymentIntent{ID: out.ID, ClientSecret: out.ClientSecret}, nil
}

// TokenizeCard exchanges card details for a single-use token
func (c *StripeClient) TokenizeCard(ctx context.Context, card domain.CardDetails) (string, error) {
	form := url.Values{}
	form.Set("card[number]", card.Number)
	form.Set("card[exp_month]", strconv.Itoa(card.ExpiryMonth))
	form.Set("card[exp_year]", strconv.Itoa(card.ExpiryYear))
	form.Set("card[cvc]", card.CVC)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/tokens", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", apperrors.GatewayMalformedError("token response missing id", nil)
	}

	return out.ID, nil
}

// CreatePaymentMethod turns a card token into a payment method id
func (c *StripeClient) CreatePaymentMethod(ctx context.Context, tokenID string) (string, error) {
	form := url.Values{}
	form.Set("type", "card")
	form.Set("card[token]", tokenID)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/payment_methods", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", apperrors.GatewayMalformedError("payment method response missing id", nil)
	}

	return out.ID, nil
}

// ConfirmPaymentIntent executes the charge
func (c *StripeClient) ConfirmPaymentIntent(ctx context.Context, methodID, clientSecret, intentID string) error {
	form := url.Values{}
	form.Set("payment_method", methodID)
	form.Set("client_secret", clientSecret)

	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v1/payment_intents/%s/confirm", intentID)
	if err := c.post(ctx, path, form, &out); err != nil {
		return err
	}
	if out.Status == "" {
		return apperrors.GatewayMalformedError("confirm response missing status", nil)
	}

	logger.Info("payment intent confirmed",
		zap.String("intent_id", intentID),
		zap.String("status", out.Status),
	)
	return nil
}

// stripeError is the gateway's error envelope
type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.GatewayRejectedError("gateway request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.GatewayMalformedError("failed to read gateway response", err)
	}
	if len(body) == 0 {
		return apperrors.GatewayMalformedError("empty gateway response body", nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr stripeError
		if err := json.Unmarshal(body, &gwErr); err == nil && gwErr.Error.Message != "" {
			return apperrors.GatewayRejectedError(
				fmt.Sprintf("gateway rejected request: %s", gwErr.Error.Message), nil)
		}
		return apperrors.GatewayRejectedError(
			fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.GatewayMalformedError("failed to decode gateway response", err)
	}

	return nil
}
