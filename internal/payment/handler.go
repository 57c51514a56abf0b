package payment

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
}

func NewHandler(paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    *transport.NewBaseHandler(logger),
		PaymentService: paymentService,
	}
}

// CreateIntent handles POST /api/v1/bookings/{bookingID}/payment-intent
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	bookingID, err := h.IDParam(r, "bookingID")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	var req CreateIntentRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, r, err)
		return
	}

	view, err := h.PaymentService.CreateReservationIntent(r.Context(), bookingID, req.Booking(bookingID), req.AmountOverride)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, view)
}

// GetBookingPayment handles GET /api/v1/bookings/{bookingID}/payment
func (h *Handler) GetBookingPayment(w http.ResponseWriter, r *http.Request) {
	bookingID, err := h.IDParam(r, "bookingID")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	view, err := h.PaymentService.GetLatestForBooking(r.Context(), bookingID)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	view, err := h.PaymentService.GetPayment(r.Context(), id)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// Requirement handles GET /api/v1/payments/requirement?party_size=&submitted_value=&currency=
func (h *Handler) Requirement(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var booking BookingSnapshot
	if raw := query.Get("party_size"); raw != "" {
		party, err := strconv.Atoi(raw)
		if err != nil || party < 0 {
			h.HandleError(w, r, errors.NewValidationFieldError("party_size", "party_size must be a non-negative integer", errors.ErrCodeInvalidPartySize))
			return
		}
		booking.PartySize = party
	}
	if raw := query.Get("submitted_value"); raw != "" {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			h.HandleError(w, r, errors.NewValidationFieldError("submitted_value", "submitted_value must be a decimal number", errors.ErrCodeInvalidAmount))
			return
		}
		booking.SubmittedValue = &value
	}
	booking.Currency = query.Get("currency")

	amount, currency := h.PaymentService.RequiredAmount(r.Context(), booking)
	required := h.PaymentService.ShouldRequireReservationPayment(r.Context(), booking)

	h.WriteJSON(w, http.StatusOK, RequirementResponse{
		Required: required,
		Amount:   amount.StringFixed(2),
		Currency: currency,
		Strategy: h.PaymentService.Config().Strategy,
	})
}

// Refresh handles POST /api/v1/payments/{id}/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, id int64) (*FormattedPayment, error) {
		return h.PaymentService.RefreshPayment(ctx, id, RejectFinalized())
	})
}

// Capture handles POST /api/v1/payments/{id}/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, id int64) (*FormattedPayment, error) {
		return h.PaymentService.CapturePayment(ctx, id, RejectFinalized())
	})
}

// Void handles POST /api/v1/payments/{id}/void
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	var req VoidRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.lifecycle(w, r, func(ctx context.Context, id int64) (*FormattedPayment, error) {
		return h.PaymentService.VoidPayment(ctx, id, req.Reason, RejectFinalized())
	})
}

// Refund handles POST /api/v1/payments/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.lifecycle(w, r, func(ctx context.Context, id int64) (*FormattedPayment, error) {
		return h.PaymentService.RefundPayment(ctx, id, req.Amount, RejectFinalized())
	})
}

// lifecycle parses the payment id and renders the outcome of op.
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*FormattedPayment, error)) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	view, err := op(r.Context(), id)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}
