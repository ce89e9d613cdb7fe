package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callfeed-backend/internal/domain"
	"callfeed-backend/internal/service/payment"
	"callfeed-backend/pkg/response"
)

// Handler handles payment HTTP requests
type Handler struct {
	paymentService *payment.Service
}

// NewHandler creates a new payment handler
func NewHandler(paymentService *payment.Service) *Handler {
	return &Handler{paymentService: paymentService}
}

// ProcessPaymentRequest represents one donation attempt
type ProcessPaymentRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"required,len=3"`
	CardNumber  string  `json:"card_number" binding:"required"`
	ExpiryMonth int     `json:"expiry_month" binding:"required,min=1,max=12"`
	ExpiryYear  int     `json:"expiry_year" binding:"required"`
	CVC         string  `json:"cvc" binding:"required,min=3,max=4"`
}

// ProcessPayment runs the full tokenize-and-confirm flow
// POST /v1/payments
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.paymentService.ProcessPayment(c.Request.Context(), &payment.ProcessPaymentInput{
		Amount:   req.Amount,
		Currency: req.Currency,
		Card: domain.CardDetails{
			Number:      req.CardNumber,
			ExpiryMonth: req.ExpiryMonth,
			ExpiryYear:  req.ExpiryYear,
			CVC:         req.CVC,
		},
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
