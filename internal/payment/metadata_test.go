package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/form"

	"github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/reservation-payments/internal/payment"
)

var _ = Describe("Metadata", func() {
	It("keeps only the newest entries once the bound is exceeded", func() {
		// Given
		var meta payment.Metadata
		for i := 1; i <= payment.MaxLogEntries; i++ {
			meta.AppendLog(payment.LogEntry{ID: fmt.Sprintf("log-%d", i), Context: payment.LogContextIntent})
		}
		Expect(meta.Logs).To(HaveLen(20))

		// When
		meta.AppendLog(payment.LogEntry{ID: "log-21", Context: payment.LogContextRefund})

		// Then
		Expect(meta.Logs).To(HaveLen(20))
		Expect(meta.Logs[0].ID).To(Equal("log-2"))
		Expect(meta.Logs[19].ID).To(Equal("log-21"))
	})

	It("does not mutate the caller's log slice", func() {
		original := payment.Metadata{Logs: make([]payment.LogEntry, 1, 5)}
		original.Logs[0] = payment.LogEntry{ID: "a"}

		copied := original
		copied.AppendLog(payment.LogEntry{ID: "b"})

		Expect(copied.Logs).To(HaveLen(2))
		Expect(original.Logs[:2][1].ID).To(BeEmpty())
	})

	It("parses empty blobs as empty metadata", func() {
		meta, err := payment.ParseMetadata(nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(meta.Logs).To(BeEmpty())

		meta, err = payment.ParseMetadata([]byte("null"))
		Expect(err).ToNot(HaveOccurred())
		Expect(meta.Logs).To(BeEmpty())
	})

	It("rejects malformed blobs", func() {
		_, err := payment.ParseMetadata([]byte("{"))
		Expect(err).To(HaveOccurred())
	})

	It("always encodes a logs array", func() {
		raw, err := payment.Metadata{}.JSON()

		Expect(err).ToNot(HaveOccurred())
		Expect(string(raw)).To(Equal(`{"logs":[]}`))
	})
})

var _ = Describe("Formatter", func() {
	var (
		formatter payment.Formatter
		fixed     time.Time
	)

	BeforeEach(func() {
		fixed = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
		formatter = payment.NewFormatter(func() time.Time { return fixed })
	})

	It("records an intent response and mirrors its status and secret", func() {
		result := &paymentgateway.Result{
			Object:       "payment_intent",
			ID:           "pi_1",
			Status:       "requires_capture",
			ClientSecret: "pi_1_secret",
			Raw:          json.RawMessage(`{"id":"pi_1"}`),
		}

		meta := formatter.Merge(payment.Metadata{}, payment.LogContextIntent, result, payment.StatusAuthorized)

		Expect(string(meta.LatestIntent)).To(Equal(`{"id":"pi_1"}`))
		Expect(meta.LatestRefund).To(BeNil())
		Expect(meta.IntentStatus).To(Equal("requires_capture"))
		Expect(meta.ClientSecret).To(Equal("pi_1_secret"))
		Expect(meta.Logs).To(HaveLen(1))
		Expect(meta.Logs[0].Status).To(Equal(payment.StatusAuthorized))
		Expect(meta.Logs[0].Context).To(Equal(payment.LogContextIntent))
		Expect(meta.Logs[0].Timestamp).To(Equal(fixed))
		Expect(meta.Logs[0].ID).ToNot(BeEmpty())
	})

	It("records refunds separately and keeps the intent mirrors", func() {
		meta := payment.Metadata{IntentStatus: "succeeded", ClientSecret: "pi_1_secret"}
		result := &paymentgateway.Result{Object: "refund", ID: "re_1", Status: "succeeded", Raw: json.RawMessage(`{"id":"re_1"}`)}

		meta = formatter.Merge(meta, payment.LogContextRefund, result, payment.StatusRefunded)

		Expect(string(meta.LatestRefund)).To(Equal(`{"id":"re_1"}`))
		Expect(meta.IntentStatus).To(Equal("succeeded"))
		Expect(meta.ClientSecret).To(Equal("pi_1_secret"))
		Expect(meta.Logs[0].Context).To(Equal(payment.LogContextRefund))
	})
})

var _ = Describe("IntentBuilder", func() {
	var (
		builder *payment.IntentBuilder
		cfg     internal.PaymentConfig
	)

	BeforeEach(func() {
		builder = payment.NewIntentBuilder(
			payment.NewAmountCalculator(nil),
			payment.NewMinorUnitConverter(nil),
			payment.NewFormatter(nil),
		)
		cfg = internal.PaymentConfig{
			Enabled:          true,
			Strategy:         internal.StrategyAuthorization,
			Currency:         "eur",
			DepositPerPerson: dec("20"),
			SecretKey:        "sk_test",
			SiteURL:          "https://bistro.example",
		}.Normalize()
	})

	encode := func(params *stripe.PaymentIntentParams) map[string]string {
		values := &form.Values{}
		form.AppendTo(values, params)
		out := map[string]string{}
		for key, vals := range values.ToValues() {
			out[key] = vals[0]
		}
		return out
	}

	It("builds a manual-capture payload for the authorization strategy", func() {
		booking := payment.BookingSnapshot{ID: 7, PartySize: 3, PayerEmail: "guest@example.com"}

		params := builder.BuildIntentPayload(cfg, 7, booking, dec("60.00"), "EUR")
		fields := encode(params)

		Expect(fields["amount"]).To(Equal("6000"))
		Expect(fields["currency"]).To(Equal("eur"))
		Expect(fields["capture_method"]).To(Equal("manual"))
		Expect(fields["confirmation_method"]).To(Equal("automatic"))
		Expect(fields["automatic_payment_methods[enabled]"]).To(Equal("true"))
		Expect(fields["metadata[reservation_id]"]).To(Equal("7"))
		Expect(fields["metadata[strategy]"]).To(Equal("authorization"))
		Expect(fields["metadata[site_url]"]).To(Equal("https://bistro.example"))
		Expect(fields["receipt_email"]).To(Equal("guest@example.com"))
		Expect(fields["description"]).To(ContainSubstring("7"))
	})

	It("captures automatically for the other strategies and omits an unknown email", func() {
		cfg.Strategy = internal.StrategyDeposit

		fields := encode(builder.BuildIntentPayload(cfg, 9, payment.BookingSnapshot{ID: 9}, dec("500"), "JPY"))

		Expect(fields["capture_method"]).To(Equal("automatic"))
		Expect(fields["amount"]).To(Equal("500"))
		Expect(fields).ToNot(HaveKey("receipt_email"))
	})

	It("resolves the booking currency before the configured one", func() {
		Expect(builder.ResolveCurrency(cfg, payment.BookingSnapshot{Currency: "gbp"})).To(Equal("GBP"))
		Expect(builder.ResolveCurrency(cfg, payment.BookingSnapshot{Currency: "pounds"})).To(Equal("EUR"))
		Expect(builder.ResolveCurrency(cfg, payment.BookingSnapshot{})).To(Equal("EUR"))
	})

	It("prices the booking with the configured strategy", func() {
		cfg.Strategy = internal.StrategyDeposit

		amount := builder.ResolveAmount(context.Background(), cfg, payment.BookingSnapshot{PartySize: 3})

		Expect(amount.StringFixed(2)).To(Equal("60.00"))
	})

	It("seeds the metadata snapshot with one creation entry", func() {
		result := &paymentgateway.Result{Object: "payment_intent", ID: "pi_1", Status: "requires_payment_method", ClientSecret: "cs"}

		meta := builder.BuildMetaSnapshot(result, dec("60"))

		Expect(meta.RequestedAmount).To(Equal("60.00"))
		Expect(meta.ClientSecret).To(Equal("cs"))
		Expect(meta.IntentStatus).To(Equal("requires_payment_method"))
		Expect(meta.Logs).To(HaveLen(1))
		Expect(meta.Logs[0].Context).To(Equal(payment.LogContextCreate))
		Expect(meta.Logs[0].Status).To(Equal(payment.StatusPending))
	})
})
