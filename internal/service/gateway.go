package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"booking/internal/domain"
)

// GatewayRequest asks the payment gateway for a payable instrument.
type GatewayRequest struct {
	UserID      string
	Method      domain.PaymentMethod
	Amount      decimal.Decimal
	Description string
}

// GatewayPayment is what the gateway issues for a request.
type GatewayPayment struct {
	Reference     string
	AccountNumber string
	ExpiresAt     time.Time
}

// Gateway is the interface for the external payment gateway.
type Gateway interface {
	CreatePayment(ctx context.Context, req GatewayRequest) (*GatewayPayment, error)
}

// MockGateway is a mock implementation of Gateway. It issues random
// references and confirms nothing on its own.
type MockGateway struct {
	ttl time.Duration
	now func() time.Time
}

// NewMockGateway creates a new mock gateway whose payments expire after ttl.
func NewMockGateway(ttl time.Duration) *MockGateway {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MockGateway{ttl: ttl, now: time.Now}
}

// CreatePayment simulates issuing a virtual account, QR code or e-wallet charge.
func (g *MockGateway) CreatePayment(ctx context.Context, req GatewayRequest) (*GatewayPayment, error) {
	id := uuid.New()

	var prefix, account string
	switch req.Method {
	case domain.PaymentMethodVirtualAccount:
		prefix = "VA"
		account = fmt.Sprintf("8808%010d", id.ID())
	case domain.PaymentMethodQRIS:
		prefix = "QR"
		account = "QRIS-" + strings.ToUpper(id.String()[:8])
	case domain.PaymentMethodEWallet:
		prefix = "EW"
	default:
		return nil, ErrInvalidPaymentMethod
	}

	return &GatewayPayment{
		Reference:     prefix + "-" + id.String(),
		AccountNumber: account,
		ExpiresAt:     g.now().Add(g.ttl),
	}, nil
}
