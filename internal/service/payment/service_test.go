package payment

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	apperrors "callfeed-backend/pkg/errors"
	"callfeed-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	logger.Sugar = logger.Log.Sugar()
	os.Exit(m.Run())
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

func (m *MockGateway) TokenizeCard(ctx context.Context, card domain.CardDetails) (string, error) {
	args := m.Called(ctx, card)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreatePaymentMethod(ctx context.Context, tokenID string) (string, error) {
	args := m.Called(ctx, tokenID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ConfirmPaymentIntent(ctx context.Context, methodID, clientSecret, intentID string) error {
	args := m.Called(ctx, methodID, clientSecret, intentID)
	return args.Error(0)
}

func testCard() domain.CardDetails {
	return domain.CardDetails{
		Number:      "4242424242424242",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVC:         "123",
	}
}

func TestProcessPaymentSuccess(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)
	ctx := context.Background()
	card := testCard()

	intent := &domain.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}
	gateway.On("CreatePaymentIntent", ctx, int64(500), "USD").Return(intent, nil).Once()
	gateway.On("TokenizeCard", ctx, card).Return("tok_abc", nil).Once()
	gateway.On("CreatePaymentMethod", ctx, "tok_abc").Return("pm_xyz", nil).Once()
	gateway.On("ConfirmPaymentIntent", ctx, "pm_xyz", "pi_123_secret", "pi_123").Return(nil).Once()

	result, err := svc.ProcessPayment(ctx, &ProcessPaymentInput{
		Amount:   5.00,
		Currency: "USD",
		Card:     card,
	})

	assert.NoError(t, err)
	assert.Equal(t, "pi_123", result.IntentID)
	assert.Equal(t, "pm_xyz", result.PaymentMethodID)
	assert.Equal(t, "succeeded", result.Status)
	gateway.AssertExpectations(t)
}

func TestProcessPaymentZeroDecimalAmountReachesGateway(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)
	ctx := context.Background()
	card := testCard()

	intent := &domain.PaymentIntent{ID: "pi_jpy", ClientSecret: "secret"}
	gateway.On("CreatePaymentIntent", ctx, int64(500), "JPY").Return(intent, nil).Once()
	gateway.On("TokenizeCard", ctx, card).Return("tok_abc", nil).Once()
	gateway.On("CreatePaymentMethod", ctx, "tok_abc").Return("pm_xyz", nil).Once()
	gateway.On("ConfirmPaymentIntent", ctx, "pm_xyz", "secret", "pi_jpy").Return(nil).Once()

	_, err := svc.ProcessPayment(ctx, &ProcessPaymentInput{
		Amount:   500,
		Currency: "JPY",
		Card:     card,
	})

	assert.NoError(t, err)
	gateway.AssertExpectations(t)
}

func TestProcessPaymentValidationFailureSkipsGateway(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)

	_, err := svc.ProcessPayment(context.Background(), &ProcessPaymentInput{
		Amount:   -5,
		Currency: "USD",
		Card:     testCard(),
	})

	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidAmount, apperrors.GetAppError(err).Code)
	gateway.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaymentIntentFailureAbortsFlow(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)
	ctx := context.Background()

	gateway.On("CreatePaymentIntent", ctx, int64(500), "USD").
		Return(nil, errors.New("gateway down")).Once()

	_, err := svc.ProcessPayment(ctx, &ProcessPaymentInput{
		Amount:   5.00,
		Currency: "USD",
		Card:     testCard(),
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create payment intent")
	gateway.AssertNotCalled(t, "TokenizeCard", mock.Anything, mock.Anything)
	gateway.AssertExpectations(t)
}

func TestProcessPaymentTokenizeFailureAbortsFlow(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)
	ctx := context.Background()
	card := testCard()

	intent := &domain.PaymentIntent{ID: "pi_123", ClientSecret: "secret"}
	gateway.On("CreatePaymentIntent", ctx, int64(500), "USD").Return(intent, nil).Once()
	gateway.On("TokenizeCard", ctx, card).Return("", errors.New("card declined")).Once()

	_, err := svc.ProcessPayment(ctx, &ProcessPaymentInput{
		Amount:   5.00,
		Currency: "USD",
		Card:     card,
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to tokenize card")
	gateway.AssertNotCalled(t, "CreatePaymentMethod", mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "ConfirmPaymentIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertExpectations(t)
}

func TestProcessPaymentConfirmFailureSurfaces(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)
	ctx := context.Background()
	card := testCard()

	intent := &domain.PaymentIntent{ID: "pi_123", ClientSecret: "secret"}
	gateway.On("CreatePaymentIntent", ctx, int64(500), "USD").Return(intent, nil).Once()
	gateway.On("TokenizeCard", ctx, card).Return("tok_abc", nil).Once()
	gateway.On("CreatePaymentMethod", ctx, "tok_abc").Return("pm_xyz", nil).Once()
	gateway.On("ConfirmPaymentIntent", ctx, "pm_xyz", "secret", "pi_123").
		Return(apperrors.GatewayRejectedError("insufficient funds", nil)).Once()

	result, err := svc.ProcessPayment(ctx, &ProcessPaymentInput{
		Amount:   5.00,
		Currency: "USD",
		Card:     card,
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "failed to confirm payment intent")
	gateway.AssertExpectations(t)
}

func TestProcessPaymentNoRetryOnFailure(t *testing.T) {
	gateway := new(MockGateway)
	svc := NewService(gateway, nil, nil)
	ctx := context.Background()

	gateway.On("CreatePaymentIntent", ctx, int64(500), "USD").
		Return(nil, errors.New("timeout")).Once()

	_, err := svc.ProcessPayment(ctx, &ProcessPaymentInput{
		Amount:   5.00,
		Currency: "USD",
		Card:     testCard(),
	})

	assert.Error(t, err)
	gateway.AssertNumberOfCalls(t, "CreatePaymentIntent", 1)
}
