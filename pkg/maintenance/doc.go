// Package maintenance runs the periodic cleanup jobs of the service.
//
// Two jobs are scheduled with robfig/cron:
//
//   - invitation expiry moves overdue PENDING invitations to EXPIRED, so
//     listings reflect reality even when nobody tries to accept them
//   - session purge deletes sessions whose refresh window closed longer
//     ago than the configured retention
//
// Usage:
//
//	scheduler, err := maintenance.NewScheduler(invites, sessions, cfg, logger, metrics)
//	if err != nil {
//		return err
//	}
//	scheduler.Start()
//	defer scheduler.Stop(ctx)
package maintenance
