package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment intent.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// IsTerminal reports whether no further ledger mutation is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed || s == PaymentStatusExpired
}

// PaymentMethod represents how the customer pays through the gateway.
type PaymentMethod string

const (
	PaymentMethodVirtualAccount PaymentMethod = "virtual_account"
	PaymentMethodQRIS           PaymentMethod = "qris"
	PaymentMethodEWallet        PaymentMethod = "ewallet"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodVirtualAccount, PaymentMethodQRIS, PaymentMethodEWallet:
		return true
	}
	return false
}

// PaymentIntent is one attempted payment, keyed by the gateway reference.
// BookingID, BookingNumber and RideID are advisory links used by the resolver;
// none of them is a foreign key.
type PaymentIntent struct {
	ID               string
	GatewayReference string
	AccountNumber    string
	BookingID        string
	BookingNumber    string
	RideID           string
	UserID           string
	Method           PaymentMethod
	Amount           decimal.Decimal
	Status           PaymentStatus
	ExpiresAt        time.Time
	PaidAt           time.Time
	FailedAt         time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
