package jobs

import (
	"context"
	"errors"

	"github.com/anjiri1684/estate_portal/logger"
)

// ExpireStalePending moves pending bookings and payments past their TTL to
// expired. Both sweeps run even if one fails.
func (r *Runner) ExpireStalePending(ctx context.Context) error {
	now := r.Clock.Now()

	bookings, bErr := r.Bookings.ExpireStale(ctx, now.Add(-r.BookingTTL))
	payments, pErr := r.Payments.ExpireStale(ctx, now.Add(-r.PaymentTTL))

	if bookings > 0 || payments > 0 {
		logger.Log.WithField("bookings", bookings).WithField("payments", payments).Info("expired stale pending records")
	}
	return errors.Join(bErr, pErr)
}
