package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/lifecycle"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/config"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db"
)

const (
	jobBookingExpirySweep    = "booking_expiry_sweep"
	jobMaintenanceAutoExpiry = "maintenance_auto_expiry"
)

// RegisterBookingJobs wires the periodic booking jobs onto the singleton
// scheduler: sweeping lapsed payment holds and ending elapsed planned
// maintenance windows.
func RegisterBookingJobs(cfg config.JobsConfig, ctrl *lifecycle.Controller, database *db.DB) error {
	if _, err := AddJob(jobBookingExpirySweep, cfg.ExpirySweepCron, func() {
		ctx := context.Background()
		removed, err := ctrl.SweepExpired(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Booking expiry sweep failed")
			return
		}
		if removed > 0 {
			log.Info().Int("removed", removed).Msg("Booking expiry sweep finished")
		}
	}); err != nil {
		return fmt.Errorf("register %s: %w", jobBookingExpirySweep, err)
	}

	if _, err := AddJob(jobMaintenanceAutoExpiry, cfg.MaintenanceExpiryCron, func() {
		ctx := context.Background()
		ended, err := database.Queries.DeactivateExpiredMaintenanceWindows(ctx, ctrl.Now())
		if err != nil {
			log.Error().Err(err).Msg("Maintenance auto-expiry failed")
			return
		}
		if ended > 0 {
			log.Info().Int64("ended", ended).Msg("Elapsed maintenance windows closed")
		}
	}); err != nil {
		return fmt.Errorf("register %s: %w", jobMaintenanceAutoExpiry, err)
	}

	return nil
}
