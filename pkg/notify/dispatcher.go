package notify

import (
	"context"

	"github.com/platinummonkey/homestead/pkg/async"
	"github.com/platinummonkey/homestead/pkg/observability"
)

// Dispatcher sends notices in the background
type Dispatcher struct {
	notifier Notifier
	pool     *async.WorkerPool
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewDispatcher runs notifier on a worker pool sized by cfg
func NewDispatcher(notifier Notifier, cfg async.Config, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Dispatcher{
		notifier: notifier,
		pool:     async.NewWorkerPool(cfg, logger),
		logger:   logger,
		metrics:  metrics,
	}
}

// Invite queues an invitation notice
func (d *Dispatcher) Invite(msg InviteMessage) {
	d.submit(KindInvite, msg.Email, func(ctx context.Context) error {
		return d.notifier.SendInvite(ctx, msg)
	})
}

// PasswordReset queues a password-reset notice
func (d *Dispatcher) PasswordReset(msg PasswordResetMessage) {
	d.submit(KindPasswordReset, msg.Email, func(ctx context.Context) error {
		return d.notifier.SendPasswordResetNotice(ctx, msg)
	})
}

func (d *Dispatcher) submit(kind, email string, send async.Task) {
	err := d.pool.Submit("notify "+kind, func(ctx context.Context) error {
		err := send(ctx)
		d.metrics.RecordNotification(kind, err)
		return err
	})
	if err != nil {
		d.metrics.RecordNotification(kind, err)
		d.logger.WithError(err).
			WithField("kind", kind).
			WithField("email", email).
			Warn("notification dropped")
	}
}

// Shutdown drains queued notices
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}
