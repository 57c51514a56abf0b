package payment_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/reservation-payments/internal/payment"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var _ = Describe("AmountCalculator", func() {
	var (
		calc *payment.AmountCalculator
		ctx  context.Context
	)

	BeforeEach(func() {
		calc = payment.NewAmountCalculator(nil)
		ctx = context.Background()
	})

	DescribeTable("computes the amount to charge",
		func(strategy payment.Strategy, party int, deposit string, submitted *decimal.Decimal, expected string) {
			booking := payment.BookingSnapshot{ID: 1, PartySize: party}

			amount := calc.Amount(ctx, booking, strategy, dec(deposit), submitted)

			Expect(amount.StringFixed(2)).To(Equal(expected))
		},
		Entry("deposit floor wins over a smaller submitted value", payment.StrategyDeposit, 4, "10.00", decPtr("30.00"), "40.00"),
		Entry("submitted value wins over a smaller deposit floor", payment.StrategyDeposit, 4, "10.00", decPtr("50.00"), "50.00"),
		Entry("authorization falls back to deposit times party", payment.StrategyAuthorization, 2, "15.00", nil, "30.00"),
		Entry("authorization uses a positive submitted value", payment.StrategyAuthorization, 2, "15.00", decPtr("12.345"), "12.35"),
		Entry("capture treats a zero submitted value as absent", payment.StrategyCapture, 3, "5.00", decPtr("0"), "15.00"),
		Entry("negative submitted value is treated as absent", payment.StrategyCapture, 1, "5.00", decPtr("-8"), "5.00"),
		Entry("party below one counts as one", payment.StrategyDeposit, 0, "20.00", nil, "20.00"),
		Entry("negative deposit is clamped to zero", payment.StrategyAuthorization, 5, "-3.00", nil, "0.00"),
		Entry("deposit is rounded before it is multiplied", payment.StrategyDeposit, 3, "3.333", nil, "9.99"),
	)

	It("applies the override hook before clamping and rounding", func() {
		var seenStrategy payment.Strategy
		calc = payment.NewAmountCalculator(func(_ context.Context, booking payment.BookingSnapshot, strategy payment.Strategy, amount decimal.Decimal) decimal.Decimal {
			seenStrategy = strategy
			return amount.Sub(dec("100.004"))
		})

		amount := calc.Amount(ctx, payment.BookingSnapshot{PartySize: 2}, payment.StrategyDeposit, dec("60"), nil)

		Expect(seenStrategy).To(Equal(payment.StrategyDeposit))
		Expect(amount.StringFixed(2)).To(Equal("20.00"))
	})

	It("clamps a negative override result to zero", func() {
		calc = payment.NewAmountCalculator(func(context.Context, payment.BookingSnapshot, payment.Strategy, decimal.Decimal) decimal.Decimal {
			return dec("-1")
		})

		amount := calc.Amount(ctx, payment.BookingSnapshot{PartySize: 1}, payment.StrategyCapture, dec("10"), nil)

		Expect(amount.IsZero()).To(BeTrue())
	})
})

var _ = Describe("MinorUnitConverter", func() {
	var conv *payment.MinorUnitConverter

	BeforeEach(func() {
		conv = payment.NewMinorUnitConverter(nil)
	})

	It("multiplies two-decimal currencies by 100", func() {
		Expect(conv.ToMinorUnits(dec("12.34"), "EUR")).To(Equal(int64(1234)))
	})

	It("leaves zero-decimal currencies whole", func() {
		Expect(conv.ToMinorUnits(dec("500"), "JPY")).To(Equal(int64(500)))
	})

	It("normalizes the currency code", func() {
		Expect(conv.ToMinorUnits(dec("500"), " jpy ")).To(Equal(int64(500)))
	})

	It("rounds half away from zero", func() {
		Expect(conv.ToMinorUnits(dec("0.125"), "USD")).To(Equal(int64(13)))
		Expect(conv.ToMinorUnits(dec("499.5"), "KRW")).To(Equal(int64(500)))
	})

	It("uses a configured zero-decimal set in place of the default", func() {
		conv = payment.NewMinorUnitConverter([]string{"huf"})

		Expect(conv.IsZeroDecimal("HUF")).To(BeTrue())
		Expect(conv.IsZeroDecimal("JPY")).To(BeFalse())
		Expect(conv.ToMinorUnits(dec("500"), "JPY")).To(Equal(int64(50000)))
	})
})

var _ = Describe("StatusMapper", func() {
	DescribeTable("maps gateway intent statuses",
		func(gatewayStatus string, expected payment.Status) {
			Expect(payment.MapIntentStatus(gatewayStatus)).To(Equal(expected))
			Expect(payment.MapIntent(&paymentgateway.Result{Status: gatewayStatus})).To(Equal(expected))
		},
		Entry("requires_capture", "requires_capture", payment.StatusAuthorized),
		Entry("succeeded", "succeeded", payment.StatusPaid),
		Entry("canceled", "canceled", payment.StatusVoid),
		Entry("requires_payment_method", "requires_payment_method", payment.StatusPending),
		Entry("processing", "processing", payment.StatusPending),
		Entry("anything else", "anything_else", payment.StatusPending),
		Entry("empty", "", payment.StatusPending),
	)

	It("treats a missing response as pending", func() {
		Expect(payment.MapIntent(nil)).To(Equal(payment.StatusPending))
	})

	DescribeTable("derives the booking status",
		func(status payment.Status, expected string) {
			Expect(payment.BookingStatusFor(status)).To(Equal(expected))
		},
		Entry("paid", payment.StatusPaid, "confirmed"),
		Entry("authorized", payment.StatusAuthorized, "confirmed"),
		Entry("refunded", payment.StatusRefunded, "cancelled"),
		Entry("void", payment.StatusVoid, "cancelled"),
		Entry("pending", payment.StatusPending, ""),
	)

	It("marks only refunded and void as terminal", func() {
		Expect(payment.StatusRefunded.IsTerminal()).To(BeTrue())
		Expect(payment.StatusVoid.IsTerminal()).To(BeTrue())
		Expect(payment.StatusPaid.IsTerminal()).To(BeFalse())
		Expect(payment.StatusAuthorized.IsTerminal()).To(BeFalse())
		Expect(payment.StatusPending.IsTerminal()).To(BeFalse())
	})
})
