package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"

	"github.com/frahmantamala/reservation-payments/internal"
	gatewaytypes "github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
)

type IntentBuilder struct {
	calculator *AmountCalculator
	converter  *MinorUnitConverter
	formatter  Formatter
}

func NewIntentBuilder(calculator *AmountCalculator, converter *MinorUnitConverter, formatter Formatter) *IntentBuilder {
	return &IntentBuilder{
		calculator: calculator,
		converter:  converter,
		formatter:  formatter,
	}
}

// ResolveAmount prices booking under the configured strategy and deposit.
func (b *IntentBuilder) ResolveAmount(ctx context.Context, cfg internal.PaymentConfig, booking BookingSnapshot) decimal.Decimal {
	return b.calculator.Amount(ctx, booking, Strategy(cfg.Strategy), cfg.DepositPerPerson, booking.SubmittedValue)
}

// ResolveCurrency prefers the booking currency and falls back to the configured one.
func (b *IntentBuilder) ResolveCurrency(cfg internal.PaymentConfig, booking BookingSnapshot) string {
	currency := strings.ToUpper(strings.TrimSpace(booking.Currency))
	if internal.IsCurrencyCode(currency) {
		return currency
	}
	if internal.IsCurrencyCode(cfg.Currency) {
		return cfg.Currency
	}
	if internal.IsCurrencyCode(cfg.DefaultCurrency) {
		return cfg.DefaultCurrency
	}
	return internal.FallbackCurrency
}

func (b *IntentBuilder) BuildIntentPayload(cfg internal.PaymentConfig, bookingID int64, booking BookingSnapshot, amount decimal.Decimal, currency string) *stripe.PaymentIntentParams {
	strategy := Strategy(cfg.Strategy)

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(b.converter.ToMinorUnits(amount, currency)),
		Currency:           stripe.String(strings.ToLower(currency)),
		CaptureMethod:      stripe.String(strategy.CaptureMethod()),
		ConfirmationMethod: stripe.String(string(stripe.PaymentIntentConfirmationMethodAutomatic)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("Reservation #%d", bookingID)),
	}

	params.AddMetadata("reservation_id", strconv.FormatInt(bookingID, 10))
	params.AddMetadata("strategy", string(strategy))
	if cfg.SiteURL != "" {
		params.AddMetadata("site_url", cfg.SiteURL)
	}

	if email := strings.TrimSpace(booking.PayerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}

	return params
}

// BuildMetaSnapshot seeds the metadata of a newly created payment.
func (b *IntentBuilder) BuildMetaSnapshot(result *gatewaytypes.Result, amount decimal.Decimal) Metadata {
	meta := Metadata{RequestedAmount: amount.StringFixed(2)}
	return b.formatter.Merge(meta, LogContextCreate, result, MapIntent(result))
}
