package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/freekieb7/playlog/internal/telemetry"
)

type expiredInviteCodeStore interface {
	DeleteExpiredGroupInviteCodes(ctx context.Context, before time.Time) (int64, error)
}

// PurgeExpiredInviteCodesTask deletes expired invite codes every interval.
// Redeeming already rejects expired codes, so a failed run is only logged and
// retried on the next tick.
func PurgeExpiredInviteCodesTask(store expiredInviteCodeStore, logger *slog.Logger, interval time.Duration, instruments *telemetry.Instruments) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("Invite code purge task started", "task", name, "interval", interval)

		for {
			select {
			case <-ctx.Done():
				logger.Info("Invite code purge task shutting down", "task", name)
				return nil
			case t := <-ticker.C:
				purgeExpiredInviteCodes(ctx, store, logger, instruments, t)
			}
		}
	}
}

func purgeExpiredInviteCodes(ctx context.Context, store expiredInviteCodeStore, logger *slog.Logger, instruments *telemetry.Instruments, now time.Time) {
	ctx, span := telemetry.StartSpan(ctx, "daemon.PurgeExpiredInviteCodes")
	removed, err := store.DeleteExpiredGroupInviteCodes(ctx, now)
	telemetry.EndSpan(span, err)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to purge expired invite codes", "error", err)
		return
	}
	if removed == 0 {
		return
	}

	instruments.InviteCodesPurged.Add(ctx, removed)
	logger.InfoContext(ctx, "Purged expired invite codes", "count", removed)
}
