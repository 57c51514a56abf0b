package payment

import (
	"github.com/stripe/stripe-go/v74"

	gatewaytypes "github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
)

// MapIntentStatus maps a gateway intent status onto the payment status.
// Anything unrecognised stays pending.
func MapIntentStatus(status string) Status {
	switch stripe.PaymentIntentStatus(status) {
	case stripe.PaymentIntentStatusRequiresCapture:
		return StatusAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return StatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return StatusVoid
	}
	return StatusPending
}

func MapIntent(result *gatewaytypes.Result) Status {
	if result == nil {
		return StatusPending
	}
	return MapIntentStatus(result.Status)
}
