package payment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/payment"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ = Describe("Payment Handler Integration", func() {
	var (
		gw      *fakeGateway
		service *payment.Service
		router  chi.Router
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decodeView := func(w *httptest.ResponseRecorder) payment.FormattedPayment {
		var view payment.FormattedPayment
		Expect(json.NewDecoder(w.Body).Decode(&view)).To(Succeed())
		return view
	}

	decodeError := func(w *httptest.ResponseRecorder) errorBody {
		var body errorBody
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		return body
	}

	BeforeEach(func() {
		logger := discardLogger()
		gw = newFakeGateway()
		cfg := errors.PaymentConfig{
			Enabled:          true,
			Strategy:         errors.StrategyAuthorization,
			Currency:         "USD",
			DepositPerPerson: decimal.RequireFromString("15"),
			SecretKey:        "sk_test_123",
			APIBaseURL:       gw.URL(),
		}
		service = payment.NewService(cfg, openTestRepository(), gatewayFactory(logger), logger)
		handler := payment.NewHandler(service, logger)

		router = chi.NewRouter()
		router.Post("/bookings/{bookingID}/payment-intent", handler.CreateIntent)
		router.Get("/bookings/{bookingID}/payment", handler.GetBookingPayment)
		router.Get("/payments/requirement", handler.Requirement)
		router.Get("/payments/{id}", handler.GetPayment)
		router.Post("/payments/{id}/refresh", handler.Refresh)
		router.Post("/payments/{id}/capture", handler.Capture)
		router.Post("/payments/{id}/void", handler.Void)
		router.Post("/payments/{id}/refund", handler.Refund)
	})

	AfterEach(func() {
		gw.Close()
	})

	createIntent := func() payment.FormattedPayment {
		w := do(http.MethodPost, "/bookings/7/payment-intent", `{"party_size":2,"payer_email":"guest@example.com"}`)
		Expect(w.Code).To(Equal(http.StatusCreated))
		return decodeView(w)
	}

	It("creates an intent for a booking", func() {
		view := createIntent()

		Expect(view.BookingID).To(Equal(int64(7)))
		Expect(view.Amount).To(Equal("30.00"))
		Expect(view.Currency).To(Equal("USD"))
		Expect(view.Status).To(Equal(payment.StatusAuthorized))
		Expect(view.CaptureStrategy).To(Equal("manual"))
		Expect(gw.Calls()[0].Form.Get("receipt_email")).To(Equal("guest@example.com"))
	})

	It("rejects an invalid create body", func() {
		w := do(http.MethodPost, "/bookings/7/payment-intent", `{"party_size":-1,"currency":"dollars"}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(decodeError(w).Error.Code).To(Equal(string(errors.ErrCodeValidationFailed)))
		Expect(gw.Calls()).To(BeEmpty())
	})

	It("rejects unknown fields in the body", func() {
		w := do(http.MethodPost, "/bookings/7/payment-intent", `{"guests":2}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a non-numeric booking id", func() {
		w := do(http.MethodGet, "/bookings/abc/payment", "")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns the latest payment of a booking", func() {
		created := createIntent()

		w := do(http.MethodGet, "/bookings/7/payment", "")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decodeView(w).ID).To(Equal(created.ID))
	})

	It("answers 404 for an unknown payment", func() {
		w := do(http.MethodGet, "/payments/404", "")

		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(decodeError(w).Error.Code).To(Equal(string(errors.ErrCodePaymentNotFound)))
	})

	It("quotes the requirement for a prospective booking", func() {
		w := do(http.MethodGet, "/payments/requirement?party_size=3&currency=eur", "")

		Expect(w.Code).To(Equal(http.StatusOK))
		var body payment.RequirementResponse
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Required).To(BeTrue())
		Expect(body.Amount).To(Equal("45.00"))
		Expect(body.Currency).To(Equal("EUR"))
		Expect(body.Strategy).To(Equal("authorization"))
	})

	It("rejects a malformed requirement query", func() {
		w := do(http.MethodGet, "/payments/requirement?party_size=many", "")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("captures and then refunds a payment", func() {
		created := createIntent()
		path := "/payments/" + strconv.FormatInt(created.ID, 10)

		w := do(http.MethodPost, path+"/capture", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decodeView(w).Status).To(Equal(payment.StatusPaid))

		w = do(http.MethodPost, path+"/refund", `{"amount":"10.00"}`)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decodeView(w).Status).To(Equal(payment.StatusRefunded))
		Expect(gw.Calls()[2].Form.Get("amount")).To(Equal("1000"))
	})

	It("refuses to move a payment that is already void", func() {
		created := createIntent()
		path := "/payments/" + strconv.FormatInt(created.ID, 10)

		w := do(http.MethodPost, path+"/void", `{"reason":"abandoned"}`)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decodeView(w).Status).To(Equal(payment.StatusVoid))
		callsAfterVoid := len(gw.Calls())

		w = do(http.MethodPost, path+"/capture", "")

		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(decodeError(w).Error.Code).To(Equal(string(errors.ErrCodePaymentFinalized)))
		Expect(gw.Calls()).To(HaveLen(callsAfterVoid))
	})

	It("answers a racing second refund with a conflict", func() {
		// Given a payment and a gateway slow enough for two requests to overlap
		created := createIntent()
		path := "/payments/" + strconv.FormatInt(created.ID, 10) + "/refund"
		gw.set(func(g *fakeGateway) { g.holdFor = 100 * time.Millisecond })

		// When two refunds arrive together
		codes := make([]int, 2)
		var wg sync.WaitGroup
		for i := range codes {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				codes[i] = do(http.MethodPost, path, "").Code
			}(i)
		}
		wg.Wait()

		// Then exactly one refund reaches the gateway
		Expect(codes).To(ConsistOf(http.StatusOK, http.StatusConflict))
		refunds := 0
		for _, call := range gw.Calls() {
			if call.Path == "/v1/refunds" {
				refunds++
			}
		}
		Expect(refunds).To(Equal(1))
	})

	It("rejects an unknown cancellation reason", func() {
		created := createIntent()

		w := do(http.MethodPost, "/payments/"+strconv.FormatInt(created.ID, 10)+"/void", `{"reason":"bored"}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps a gateway rejection to 502", func() {
		created := createIntent()
		gw.set(func(g *fakeGateway) {
			g.failWith = http.StatusBadRequest
			g.failBody = `{"error":{"message":"This PaymentIntent could not be captured."}}`
		})

		w := do(http.MethodPost, "/payments/"+strconv.FormatInt(created.ID, 10)+"/capture", "")

		Expect(w.Code).To(Equal(http.StatusBadGateway))
		body := decodeError(w)
		Expect(body.Error.Code).To(Equal(string(errors.ErrCodeGatewayApplication)))
		Expect(body.Error.Message).To(Equal("This PaymentIntent could not be captured."))
	})

	It("maps a disabled integration to 503", func() {
		service = service.WithConfig(errors.PaymentConfig{SecretKey: "sk_test_123", APIBaseURL: gw.URL()})
		handler := payment.NewHandler(service, discardLogger())
		router = chi.NewRouter()
		router.Post("/bookings/{bookingID}/payment-intent", handler.CreateIntent)

		w := do(http.MethodPost, "/bookings/7/payment-intent", `{"party_size":2}`)

		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(decodeError(w).Error.Code).To(Equal(string(errors.ErrCodeIntegrationDisabled)))
	})
})
