package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"

	errors "github.com/frahmantamala/reservation-payments/internal"
	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/reservation-payments/pkg/logger"
)

// Gateway is the subset of the gateway client the service drives.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*gatewaytypes.Result, error)
	GetPaymentIntent(ctx context.Context, id string) (*gatewaytypes.Result, error)
	CapturePaymentIntent(ctx context.Context, id string) (*gatewaytypes.Result, error)
	CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*gatewaytypes.Result, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*gatewaytypes.Result, error)
}

// GatewayFactory builds a gateway bound to one configuration snapshot.
type GatewayFactory func(cfg errors.PaymentConfig) Gateway

type ServiceAPI interface {
	Config() errors.PaymentConfig
	ShouldRequireReservationPayment(ctx context.Context, booking BookingSnapshot) bool
	RequiredAmount(ctx context.Context, booking BookingSnapshot) (decimal.Decimal, string)
	CreateReservationIntent(ctx context.Context, bookingID int64, booking BookingSnapshot, amountOverride *decimal.Decimal) (*FormattedPayment, error)
	RefreshPayment(ctx context.Context, paymentID int64, opts ...CallOption) (*FormattedPayment, error)
	CapturePayment(ctx context.Context, paymentID int64, opts ...CallOption) (*FormattedPayment, error)
	VoidPayment(ctx context.Context, paymentID int64, reason string, opts ...CallOption) (*FormattedPayment, error)
	RefundPayment(ctx context.Context, paymentID int64, amount *decimal.Decimal, opts ...CallOption) (*FormattedPayment, error)
	GetPayment(ctx context.Context, paymentID int64) (*FormattedPayment, error)
	GetLatestForBooking(ctx context.Context, bookingID int64) (*FormattedPayment, error)
}

// Service is the payment lifecycle orchestrator. The persisted row is the only
// source of truth; every operation returns the updated view and fires no side
// effects of its own.
type Service struct {
	cfg        errors.PaymentConfig
	store      Store
	gateway    Gateway
	newGateway GatewayFactory
	override   AmountOverride
	converter  *MinorUnitConverter
	builder    *IntentBuilder
	formatter  Formatter
	locker     Locker
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

func WithAmountOverride(override AmountOverride) Option {
	return func(s *Service) {
		s.override = override
	}
}

func WithLocker(locker Locker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// CallOption adjusts a single lifecycle call. Options are evaluated against
// the record loaded under the payment lock.
type CallOption func(*callOptions)

type callOptions struct {
	rejectFinalized bool
	skipFinalized   bool
}

// RejectFinalized fails with ErrPaymentFinalized when the payment is already
// refunded or void. No gateway call is made.
func RejectFinalized() CallOption {
	return func(o *callOptions) {
		o.rejectFinalized = true
	}
}

// SkipFinalized returns a refunded or void payment unchanged without calling
// the gateway.
func SkipFinalized() CallOption {
	return func(o *callOptions) {
		o.skipFinalized = true
	}
}

func NewService(cfg errors.PaymentConfig, store Store, newGateway GatewayFactory, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		newGateway: newGateway,
		locker:     NewKeyedMutex(),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.configure(cfg)
	return s
}

// WithConfig returns a service bound to another configuration snapshot. The
// store and locker are shared with s.
func (s *Service) WithConfig(cfg errors.PaymentConfig) *Service {
	clone := *s
	clone.configure(cfg)
	return &clone
}

func (s *Service) Config() errors.PaymentConfig {
	return s.cfg
}

func (s *Service) configure(cfg errors.PaymentConfig) {
	s.cfg = cfg.Normalize()
	s.converter = NewMinorUnitConverter(s.cfg.ZeroDecimalCurrencies)
	s.formatter = NewFormatter(s.now)
	s.builder = NewIntentBuilder(NewAmountCalculator(s.override), s.converter, s.formatter)
	s.gateway = nil
	if s.newGateway != nil && s.cfg.SecretKey != "" {
		s.gateway = s.newGateway(s.cfg)
	}
}

func (s *Service) RequiredAmount(ctx context.Context, booking BookingSnapshot) (decimal.Decimal, string) {
	return s.builder.ResolveAmount(ctx, s.cfg, booking), s.builder.ResolveCurrency(s.cfg, booking)
}

// ShouldRequireReservationPayment is true iff the integration is enabled and
// the booking prices above zero.
func (s *Service) ShouldRequireReservationPayment(ctx context.Context, booking BookingSnapshot) bool {
	if !s.cfg.Enabled {
		return false
	}
	amount, _ := s.RequiredAmount(ctx, booking)
	return amount.IsPositive()
}

func (s *Service) CreateReservationIntent(ctx context.Context, bookingID int64, booking BookingSnapshot, amountOverride *decimal.Decimal) (*FormattedPayment, error) {
	log := logger.FromOr(ctx, s.logger).With("booking_id", bookingID, "strategy", s.cfg.Strategy)

	if !s.cfg.Enabled {
		log.Warn("payment intent rejected: integration disabled")
		return nil, errors.ErrIntegrationDisabled
	}
	if err := s.requireGateway(); err != nil {
		log.Warn("payment intent rejected: secret key missing")
		return nil, err
	}

	var amount decimal.Decimal
	if amountOverride != nil {
		amount = clampMoney(*amountOverride)
	} else {
		amount = s.builder.ResolveAmount(ctx, s.cfg, booking)
	}
	if !amount.IsPositive() {
		log.Warn("payment intent rejected: non-positive amount", "amount", amount.StringFixed(2))
		return nil, errors.ErrInvalidAmount
	}
	currency := s.builder.ResolveCurrency(s.cfg, booking)

	params := s.builder.BuildIntentPayload(s.cfg, bookingID, booking, amount, currency)
	result, err := s.gateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		log.Error("failed to create payment intent", "error", err)
		return nil, gatewayError(err)
	}

	meta := s.builder.BuildMetaSnapshot(result, amount)
	blob, err := meta.JSON()
	if err != nil {
		return nil, errors.NewInternalError("failed to encode payment metadata", err)
	}

	now := s.now()
	record := &paymentmodel.Payment{
		BookingID:  bookingID,
		Provider:   ProviderStripe,
		Strategy:   s.cfg.Strategy,
		Amount:     amount,
		Currency:   currency,
		Status:     string(MapIntent(result)),
		ExternalID: result.ID,
		Metadata:   blob,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	id, err := s.store.Insert(ctx, record)
	if err != nil {
		log.Error("failed to persist payment", "external_id", result.ID, "error", err)
		return nil, persistenceError(err)
	}
	record.ID = id

	log.Info("payment intent created",
		"payment_id", record.ID,
		"external_id", record.ExternalID,
		"amount", amount.StringFixed(2),
		"currency", currency,
		"status", record.Status)

	return NewFormattedPayment(record, meta, s.cfg.Mode), nil
}

func (s *Service) RefreshPayment(ctx context.Context, paymentID int64, opts ...CallOption) (*FormattedPayment, error) {
	return s.advance(ctx, paymentID, "refresh", LogContextIntent, opts, func(ctx context.Context, p *paymentmodel.Payment) (*gatewaytypes.Result, Status, error) {
		result, err := s.gateway.GetPaymentIntent(ctx, p.ExternalID)
		if err != nil {
			return nil, "", err
		}
		return result, MapIntent(result), nil
	})
}

func (s *Service) CapturePayment(ctx context.Context, paymentID int64, opts ...CallOption) (*FormattedPayment, error) {
	return s.advance(ctx, paymentID, "capture", LogContextIntent, opts, func(ctx context.Context, p *paymentmodel.Payment) (*gatewaytypes.Result, Status, error) {
		result, err := s.gateway.CapturePaymentIntent(ctx, p.ExternalID)
		if err != nil {
			return nil, "", err
		}
		return result, MapIntent(result), nil
	})
}

// VoidPayment cancels the intent. An empty reason defaults to
// requested_by_customer.
func (s *Service) VoidPayment(ctx context.Context, paymentID int64, reason string, opts ...CallOption) (*FormattedPayment, error) {
	if reason == "" {
		reason = CancelReasonRequestedByCustomer
	}
	return s.advance(ctx, paymentID, "void", LogContextIntent, opts, func(ctx context.Context, p *paymentmodel.Payment) (*gatewaytypes.Result, Status, error) {
		result, err := s.gateway.CancelPaymentIntent(ctx, p.ExternalID, &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String(reason),
		})
		if err != nil {
			return nil, "", err
		}
		return result, MapIntent(result), nil
	})
}

// RefundPayment refunds in full when amount is nil or not positive. A
// successful refund always leaves the payment refunded, partial or not.
func (s *Service) RefundPayment(ctx context.Context, paymentID int64, amount *decimal.Decimal, opts ...CallOption) (*FormattedPayment, error) {
	return s.advance(ctx, paymentID, "refund", LogContextRefund, opts, func(ctx context.Context, p *paymentmodel.Payment) (*gatewaytypes.Result, Status, error) {
		params := &stripe.RefundParams{PaymentIntent: stripe.String(p.ExternalID)}
		if amount != nil && amount.IsPositive() {
			params.Amount = stripe.Int64(s.converter.ToMinorUnits(clampMoney(*amount), p.Currency))
		}
		result, err := s.gateway.CreateRefund(ctx, params)
		if err != nil {
			return nil, "", err
		}
		return result, StatusRefunded, nil
	})
}

func (s *Service) GetPayment(ctx context.Context, paymentID int64) (*FormattedPayment, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.format(p)
}

func (s *Service) GetLatestForBooking(ctx context.Context, bookingID int64) (*FormattedPayment, error) {
	p, err := s.store.FindLatestByBooking(ctx, bookingID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if p == nil {
		return nil, errors.ErrPaymentNotFound
	}
	return s.format(p)
}

type gatewayCall func(ctx context.Context, p *paymentmodel.Payment) (*gatewaytypes.Result, Status, error)

// advance runs one gateway call against an existing payment and writes the
// outcome back. Nothing is written when the call fails.
func (s *Service) advance(ctx context.Context, paymentID int64, op, logContext string, opts []CallOption, call gatewayCall) (*FormattedPayment, error) {
	log := logger.FromOr(ctx, s.logger).With("payment_id", paymentID, "operation", op)

	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	unlock, err := s.locker.Lock(ctx, strconv.FormatInt(paymentID, 10))
	if err != nil {
		log.Error("failed to acquire payment lock", "error", err)
		return nil, errors.NewInternalError("failed to acquire payment lock", err)
	}
	defer unlock()

	p, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if Status(p.Status).IsTerminal() {
		switch {
		case o.rejectFinalized:
			log.Warn("payment already finalized", "status", p.Status)
			return nil, errors.ErrPaymentFinalized
		case o.skipFinalized:
			log.Debug("skipping finalized payment", "status", p.Status)
			return s.format(p)
		}
	}
	if p.ExternalID == "" {
		log.Warn("payment has no gateway reference")
		return nil, errors.ErrMissingExternalReference
	}
	if err := s.requireGateway(); err != nil {
		return nil, err
	}

	log = log.With("external_id", p.ExternalID, "booking_id", p.BookingID)

	meta, err := ParseMetadata(p.Metadata)
	if err != nil {
		log.Error("stored payment metadata is unreadable", "error", err)
		return nil, errors.NewInternalError("stored payment metadata is unreadable", err)
	}

	result, status, err := call(ctx, p)
	if err != nil {
		log.Error("gateway call failed", "error", err)
		return nil, gatewayError(err)
	}

	meta = s.formatter.Merge(meta, logContext, result, status)

	blob, err := meta.JSON()
	if err != nil {
		return nil, errors.NewInternalError("failed to encode payment metadata", err)
	}

	if err := s.store.UpdateStatus(ctx, p.ID, string(status), blob); err != nil {
		log.Error("failed to persist payment status", "status", status, "error", err)
		return nil, persistenceError(err)
	}

	previous := p.Status
	p.Status = string(status)
	p.Metadata = blob
	p.UpdatedAt = s.now()

	log.Info("payment updated", "previous_status", previous, "status", status)

	return NewFormattedPayment(p, meta, s.cfg.Mode), nil
}

func (s *Service) load(ctx context.Context, paymentID int64) (*paymentmodel.Payment, error) {
	p, err := s.store.FindByID(ctx, paymentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if p == nil {
		return nil, errors.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) format(p *paymentmodel.Payment) (*FormattedPayment, error) {
	meta, err := ParseMetadata(p.Metadata)
	if err != nil {
		s.logger.Warn("unreadable payment metadata", "payment_id", p.ID, "error", err)
		meta = Metadata{}
	}
	return NewFormattedPayment(p, meta, s.cfg.Mode), nil
}

func (s *Service) requireGateway() error {
	if s.cfg.SecretKey == "" || s.gateway == nil {
		return errors.ErrMissingSecretKey
	}
	return nil
}

func gatewayError(err error) error {
	var gwErr *gatewaytypes.Error
	if !stderrors.As(err, &gwErr) {
		if _, ok := errors.IsAppError(err); ok {
			return err
		}
		return errors.NewGatewayError("payment gateway call failed", errors.ErrCodeGatewayTransport, err)
	}

	if gwErr.Kind == gatewaytypes.ErrorKindTransport {
		return errors.NewGatewayError("payment gateway unreachable", errors.ErrCodeGatewayTransport, gwErr)
	}

	details := map[string]interface{}{"status_code": gwErr.StatusCode}
	if gwErr.Code != "" {
		details["gateway_code"] = gwErr.Code
	}
	return errors.NewGatewayError(gwErr.Message, errors.ErrCodeGatewayApplication, gwErr).WithDetails(details)
}

func persistenceError(err error) error {
	if _, ok := errors.IsAppError(err); ok {
		return err
	}
	return errors.NewPersistenceError("failed to persist payment", err)
}
