package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	errors "github.com/frahmantamala/reservation-payments/internal"
	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
)

// PaymentRepository is the gorm-backed payment store. It runs against
// postgres in production and sqlite locally.
type PaymentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db:  db,
		now: time.Now,
	}
}

// AutoMigrate creates the payments table for drivers that are not managed by
// the SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&paymentmodel.Payment{})
}

func (r *PaymentRepository) Insert(ctx context.Context, p *paymentmodel.Payment) (int64, error) {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return p.ID, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment %d: %w", id, err)
	}
	return &p, nil
}

func (r *PaymentRepository) FindLatestByBooking(ctx context.Context, bookingID int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Order("id DESC").
		First(&p).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment for booking %d: %w", bookingID, err)
	}
	return &p, nil
}

// UpdateStatus never touches external_id, amount, currency, strategy or booking_id.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, status string, metadata []byte) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": r.now(),
	}
	if metadata != nil {
		updates["metadata"] = datatypes.JSON(metadata)
	}

	result := r.db.WithContext(ctx).
		Model(&paymentmodel.Payment{}).
		Where("id = ?", id).
		UpdateColumns(updates)
	if result.Error != nil {
		return fmt.Errorf("update payment %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	query := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list payments by status: %w", err)
	}
	return payments, nil
}
