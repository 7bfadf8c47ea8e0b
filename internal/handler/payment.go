package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"booking/internal/domain"
	"booking/internal/service"
)

type paymentLedger interface {
	CreateIntent(ctx context.Context, req service.CreateIntentRequest) (*domain.PaymentIntent, error)
	GetStatus(ctx context.Context, idOrReference string) (*service.PaymentStatus, error)
}

// PaymentHandler handles HTTP requests for payment intents.
type PaymentHandler struct {
	ledger paymentLedger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(ledger paymentLedger) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

// CreatePaymentRequest is the HTTP request body for creating a payment intent.
type CreatePaymentRequest struct {
	UserID        string          `json:"user_id"`
	RideID        string          `json:"ride_id"`
	BookingID     string          `json:"booking_id"`
	BookingNumber string          `json:"booking_number"`
	Method        string          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentResponse is the HTTP response for payment operations.
type PaymentResponse struct {
	ID               string          `json:"id"`
	GatewayReference string          `json:"gateway_reference"`
	AccountNumber    string          `json:"account_number,omitempty"`
	BookingNumber    string          `json:"booking_number,omitempty"`
	Method           string          `json:"method"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

// CreatePayment handles POST /v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	intent, err := h.ledger.CreateIntent(c.Request.Context(), service.CreateIntentRequest{
		UserID:        req.UserID,
		RideID:        req.RideID,
		BookingID:     req.BookingID,
		BookingNumber: req.BookingNumber,
		Method:        domain.PaymentMethod(req.Method),
		Amount:        req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, PaymentResponse{
		ID:               intent.ID,
		GatewayReference: intent.GatewayReference,
		AccountNumber:    intent.AccountNumber,
		BookingNumber:    intent.BookingNumber,
		Method:           string(intent.Method),
		Amount:           intent.Amount,
		Status:           string(intent.Status),
		ExpiresAt:        optionalTime(intent.ExpiresAt),
		PaidAt:           optionalTime(intent.PaidAt),
	})
}

// GetStatus handles GET /payments/:id/status. The id may be the intent id or
// the gateway reference.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	status, err := h.ledger.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, PaymentResponse{
		ID:               status.ID,
		GatewayReference: status.GatewayReference,
		AccountNumber:    status.AccountNumber,
		BookingNumber:    status.BookingNumber,
		Method:           string(status.Method),
		Amount:           status.Amount,
		Status:           string(status.Status),
		ExpiresAt:        optionalTime(status.ExpiresAt),
		PaidAt:           optionalTime(status.PaidAt),
	})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
