package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
	"callfeed-backend/pkg/metrics"
	"callfeed-backend/pkg/resilience"
)

// Service runs the sequential payment flow against the gateway:
// intent -> token -> method -> confirm. Validation failures surface
// before the first network call; gateway failures are typed and passed
// to the caller without retries. A circuit breaker sheds calls while
// the gateway is refusing everything.
type Service struct {
	gateway Gateway
	breaker *resilience.GatewayResilience
	metrics *metrics.Metrics
}

// NewService creates a new payment service
func NewService(gateway Gateway, breaker *resilience.GatewayResilience, m *metrics.Metrics) *Service {
	return &Service{gateway: gateway, breaker: breaker, metrics: m}
}

// ProcessPaymentInput is one donation attempt
type ProcessPaymentInput struct {
	Amount   float64
	Currency string
	Card     domain.CardDetails
}

// ProcessPayment runs the whole flow and returns the confirmed result
func (s *Service) ProcessPayment(ctx context.Context, input *ProcessPaymentInput) (*domain.PaymentResult, error) {
	integral, err := NormalizeAmount(input.Amount, input.Currency)
	if err != nil {
		s.record("validation_failed")
		return nil, err
	}

	var intent *domain.PaymentIntent
	err = s.call(ctx, "create_intent", func() error {
		var callErr error
		intent, callErr = s.gateway.CreatePaymentIntent(ctx, integral, input.Currency)
		return callErr
	})
	if err != nil {
		s.record("intent_failed")
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	var tokenID string
	err = s.call(ctx, "tokenize_card", func() error {
		var callErr error
		tokenID, callErr = s.gateway.TokenizeCard(ctx, input.Card)
		return callErr
	})
	if err != nil {
		s.record("tokenize_failed")
		return nil, fmt.Errorf("failed to tokenize card: %w", err)
	}

	var methodID string
	err = s.call(ctx, "create_method", func() error {
		var callErr error
		methodID, callErr = s.gateway.CreatePaymentMethod(ctx, tokenID)
		return callErr
	})
	if err != nil {
		s.record("method_failed")
		return nil, fmt.Errorf("failed to create payment method: %w", err)
	}

	err = s.call(ctx, "confirm_intent", func() error {
		return s.gateway.ConfirmPaymentIntent(ctx, methodID, intent.ClientSecret, intent.ID)
	})
	if err != nil {
		s.record("confirm_failed")
		return nil, fmt.Errorf("failed to confirm payment intent: %w", err)
	}

	s.record("succeeded")
	logger.Info("payment processed",
		zap.String("intent_id", intent.ID),
		zap.String("currency", input.Currency),
		zap.Int64("integral_amount", integral),
	)

	return &domain.PaymentResult{
		IntentID:        intent.ID,
		PaymentMethodID: methodID,
		Status:          "succeeded",
	}, nil
}

func (s *Service) call(ctx context.Context, operation string, fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(ctx, operation, fn)
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPayment(outcome)
	}
}
