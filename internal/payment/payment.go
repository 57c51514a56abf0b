package payment

import (
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/reservation-payments/internal"
	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
)

const ProviderStripe = "stripe"

type Status string

const (
	StatusPending    Status = paymentmodel.StatusPending
	StatusAuthorized Status = paymentmodel.StatusAuthorized
	StatusPaid       Status = paymentmodel.StatusPaid
	StatusRefunded   Status = paymentmodel.StatusRefunded
	StatusVoid       Status = paymentmodel.StatusVoid
)

// IsTerminal reports whether no lifecycle operation may move a payment out of s.
func (s Status) IsTerminal() bool {
	return s == StatusRefunded || s == StatusVoid
}

type Strategy string

const (
	StrategyAuthorization Strategy = internal.StrategyAuthorization
	StrategyCapture       Strategy = internal.StrategyCapture
	StrategyDeposit       Strategy = internal.StrategyDeposit
)

// CaptureMethod is the gateway capture mode implied by the strategy.
func (s Strategy) CaptureMethod() string {
	if s == StrategyAuthorization {
		return "manual"
	}
	return "automatic"
}

// BookingSnapshot is the slice of a booking the engine needs to price it.
type BookingSnapshot struct {
	ID             int64            `json:"id"`
	PartySize      int              `json:"party_size"`
	Currency       string           `json:"currency,omitempty"`
	SubmittedValue *decimal.Decimal `json:"submitted_value,omitempty"`
	PayerEmail     string           `json:"payer_email,omitempty"`
}

// Booking statuses the hosting application applies after a lifecycle call.
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// BookingStatusFor returns the booking status implied by a payment status, or
// "" when the booking should be left untouched.
func BookingStatusFor(status Status) string {
	switch status {
	case StatusPaid, StatusAuthorized:
		return BookingStatusConfirmed
	case StatusRefunded, StatusVoid:
		return BookingStatusCancelled
	}
	return ""
}
