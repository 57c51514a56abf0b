package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/reservation-payments/internal/payment"
	"github.com/frahmantamala/reservation-payments/internal/transport"
	"github.com/frahmantamala/reservation-payments/internal/transport/middleware"
	"github.com/frahmantamala/reservation-payments/internal/transport/swagger"
)

const (
	ScopePaymentsRead  = "payments:read"
	ScopePaymentsWrite = "payments:write"
)

type RouterDeps struct {
	PaymentHandler *payment.Handler
	HealthHandler  *HealthHandler
	// Authenticator is nil when auth is disabled.
	Authenticator *middleware.Authenticator
	SpecPath      string
	Logger        *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, deps RouterDeps) {
	base := transport.NewBaseHandler(deps.Logger)

	specPath := deps.SpecPath
	if specPath == "" {
		specPath = "./api/openapi.yml"
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(base))
	router.Use(middleware.Logging(base.Logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, specPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if deps.HealthHandler != nil {
			r.Get("/health", deps.HealthHandler.Health)
			r.Get("/ping", deps.HealthHandler.Ping)
		}

		if deps.PaymentHandler == nil {
			return
		}
		h := deps.PaymentHandler

		r.Group(func(pr chi.Router) {
			if deps.Authenticator != nil {
				pr.Use(deps.Authenticator.Middleware)
			}

			pr.Group(func(rr chi.Router) {
				if deps.Authenticator != nil {
					rr.Use(middleware.RequireScope(base, ScopePaymentsRead, ScopePaymentsWrite))
				}
				rr.Get("/bookings/{bookingID}/payment", h.GetBookingPayment)
				rr.Get("/payments/requirement", h.Requirement)
				rr.Get("/payments/{id}", h.GetPayment)
			})

			pr.Group(func(wr chi.Router) {
				if deps.Authenticator != nil {
					wr.Use(middleware.RequireScope(base, ScopePaymentsWrite))
				}
				wr.Post("/bookings/{bookingID}/payment-intent", h.CreateIntent)
				wr.Post("/payments/{id}/refresh", h.Refresh)
				wr.Post("/payments/{id}/capture", h.Capture)
				wr.Post("/payments/{id}/void", h.Void)
				wr.Post("/payments/{id}/refund", h.Refund)
			})
		})
	})
}
