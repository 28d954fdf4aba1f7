package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/homestead/pkg/observability"
)

// Job names used in logs and metrics
const (
	JobExpireInvitations = "expire_invitations"
	JobPurgeSessions     = "purge_sessions"
	JobThrottleCleanup   = "throttle_cleanup"
	JobPurgeAudit        = "purge_audit"
)

// InvitationExpirer expires overdue invitations
type InvitationExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// SessionPurger deletes sessions that expired before a cutoff
type SessionPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Config schedules the jobs. An empty schedule disables its job.
type Config struct {
	InvitationExpirySchedule string
	SessionPurgeSchedule     string
	// SessionRetention keeps expired sessions this long before purging
	SessionRetention time.Duration
	// JobTimeout bounds a single run
	JobTimeout time.Duration
}

// DefaultConfig returns the default schedules
func DefaultConfig() Config {
	return Config{
		InvitationExpirySchedule: "@every 15m",
		SessionPurgeSchedule:     "@daily",
		SessionRetention:         7 * 24 * time.Hour,
		JobTimeout:               time.Minute,
	}
}

// Scheduler runs the maintenance jobs on their cron schedules
type Scheduler struct {
	cron     *cron.Cron
	invites  InvitationExpirer
	sessions SessionPurger
	cfg      Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewScheduler validates the schedules and registers the jobs. Nothing runs
// until Start.
func NewScheduler(invites InvitationExpirer, sessions SessionPurger, cfg Config,
	logger *observability.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		invites:  invites,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.WithField("component", "maintenance"),
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}

	if cfg.InvitationExpirySchedule != "" && invites != nil {
		if _, err := s.cron.AddFunc(cfg.InvitationExpirySchedule, s.job(JobExpireInvitations, s.ExpireInvitations)); err != nil {
			return nil, fmt.Errorf("failed to schedule invitation expiry: %w", err)
		}
	}
	if cfg.SessionPurgeSchedule != "" && sessions != nil {
		if _, err := s.cron.AddFunc(cfg.SessionPurgeSchedule, s.job(JobPurgeSessions, s.PurgeSessions)); err != nil {
			return nil, fmt.Errorf("failed to schedule session purge: %w", err)
		}
	}
	return s, nil
}

// WithClock overrides the clock used for the purge cutoff
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// AddJob schedules an extra job under the same logging, metrics and timeout
// handling as the built-in ones
func (s *Scheduler) AddJob(name, spec string, run func(ctx context.Context) (int64, error)) error {
	if _, err := s.cron.AddFunc(spec, s.job(name, run)); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Jobs returns how many jobs are scheduled
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.WithField("next_run", entry.Next).Debug("maintenance job scheduled")
	}
	s.logger.WithField("jobs", s.Jobs()).Info("maintenance scheduler started")
}

// Stop stops scheduling and waits for running jobs or ctx, whichever ends first
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("maintenance jobs still running: %w", ctx.Err())
	}
}

// ExpireInvitations runs the invitation expiry job once
func (s *Scheduler) ExpireInvitations(ctx context.Context) (int64, error) {
	return s.invites.ExpireStale(ctx)
}

// PurgeSessions runs the session purge job once
func (s *Scheduler) PurgeSessions(ctx context.Context) (int64, error) {
	return s.sessions.PurgeExpired(ctx, s.now().Add(-s.cfg.SessionRetention))
}

func (s *Scheduler) job(name string, run func(ctx context.Context) (int64, error)) func() {
	return func() {
		logger := s.logger.WithField("job", name)
		defer observability.RecoverPanic(logger, "maintenance."+name)

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()

		start := time.Now()
		n, err := run(ctx)
		s.metrics.RecordMaintenanceRun(name, err)
		if err != nil {
			logger.WithError(err).Error("maintenance job failed")
			return
		}
		logger.WithFields(map[string]interface{}{
			"affected":    n,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("maintenance job completed")
	}
}
