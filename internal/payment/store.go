package payment

import (
	"context"

	paymentmodel "github.com/frahmantamala/reservation-payments/internal/core/datamodel/payment"
)

// Store persists payment rows. Finders return (nil, nil) when nothing matches.
// UpdateStatus stamps updated_at and, when metadata is non-nil, replaces the
// stored blob wholesale.
type Store interface {
	Insert(ctx context.Context, p *paymentmodel.Payment) (int64, error)
	FindByID(ctx context.Context, id int64) (*paymentmodel.Payment, error)
	FindLatestByBooking(ctx context.Context, bookingID int64) (*paymentmodel.Payment, error)
	UpdateStatus(ctx context.Context, id int64, status string, metadata []byte) error
	ListByStatus(ctx context.Context, statuses []string, limit int) ([]*paymentmodel.Payment, error)
}
