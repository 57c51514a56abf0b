package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/core/common/validation"
	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
)

// FormattedPayment is the view returned from every lifecycle operation.
type FormattedPayment struct {
	ID              int64     `json:"id"`
	BookingID       int64     `json:"booking_id"`
	Provider        string    `json:"provider"`
	Strategy        Strategy  `json:"strategy"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Status          Status    `json:"status"`
	ExternalID      string    `json:"external_id"`
	ClientSecret    string    `json:"client_secret,omitempty"`
	IntentStatus    string    `json:"intent_status,omitempty"`
	Mode            string    `json:"mode"`
	CaptureStrategy string    `json:"capture_strategy"`
	BookingStatus   string    `json:"booking_status,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewFormattedPayment(p *paymentmodel.Payment, meta Metadata, mode string) *FormattedPayment {
	status := Status(p.Status)
	strategy := Strategy(p.Strategy)
	return &FormattedPayment{
		ID:              p.ID,
		BookingID:       p.BookingID,
		Provider:        p.Provider,
		Strategy:        strategy,
		Amount:          p.Amount.StringFixed(2),
		Currency:        p.Currency,
		Status:          status,
		ExternalID:      p.ExternalID,
		ClientSecret:    meta.ClientSecret,
		IntentStatus:    meta.IntentStatus,
		Mode:            mode,
		CaptureStrategy: strategy.CaptureMethod(),
		BookingStatus:   BookingStatusFor(status),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// CreateIntentRequest is the body of POST /bookings/{bookingID}/payment-intent.
type CreateIntentRequest struct {
	PartySize      int              `json:"party_size"`
	Currency       string           `json:"currency,omitempty"`
	SubmittedValue *decimal.Decimal `json:"submitted_value,omitempty"`
	PayerEmail     string           `json:"payer_email,omitempty"`
	AmountOverride *decimal.Decimal `json:"amount_override,omitempty"`
}

func (r *CreateIntentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("party_size", r.PartySize).MinInt(0, errors.ErrCodeInvalidPartySize).MaxInt(1000, errors.ErrCodeInvalidPartySize)
	validator.Field("currency", r.Currency).Currency()
	validator.Field("submitted_value", r.SubmittedValue).NonNegativeDecimal()
	validator.Field("payer_email", r.PayerEmail).Email().MaxLength(254)
	validator.Field("amount_override", r.AmountOverride).NonNegativeDecimal()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *CreateIntentRequest) Booking(bookingID int64) BookingSnapshot {
	return BookingSnapshot{
		ID:             bookingID,
		PartySize:      r.PartySize,
		Currency:       r.Currency,
		SubmittedValue: r.SubmittedValue,
		PayerEmail:     r.PayerEmail,
	}
}

// Cancellation reasons accepted by the gateway.
const (
	CancelReasonDuplicate           = "duplicate"
	CancelReasonFraudulent          = "fraudulent"
	CancelReasonRequestedByCustomer = "requested_by_customer"
	CancelReasonAbandoned           = "abandoned"
)

type VoidRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (r *VoidRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("reason", r.Reason).OneOf(
		CancelReasonDuplicate,
		CancelReasonFraudulent,
		CancelReasonRequestedByCustomer,
		CancelReasonAbandoned,
	)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (r *RefundRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).NonNegativeDecimal()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// RequirementResponse answers GET /payments/requirement.
type RequirementResponse struct {
	Required bool   `json:"required"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Strategy string `json:"strategy"`
}
