package notify

import (
	"context"
	"time"

	"github.com/platinummonkey/homestead/pkg/observability"
)

// Message kinds, also used as metric labels
const (
	KindInvite        = "invite"
	KindPasswordReset = "password_reset"
)

// InviteMessage carries everything the mailer needs to send an invitation
type InviteMessage struct {
	Email      string    `json:"email"`
	Token      string    `json:"token"`
	AcceptURL  string    `json:"accept_url,omitempty"`
	TenantName string    `json:"tenant_name"`
	RoleLabel  string    `json:"role_label"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PasswordResetMessage carries a newly issued credential
type PasswordResetMessage struct {
	Email      string `json:"email"`
	Credential string `json:"credential"`
}

// Notifier sends notices to users
type Notifier interface {
	SendInvite(ctx context.Context, msg InviteMessage) error
	SendPasswordResetNotice(ctx context.Context, msg PasswordResetMessage) error
}

// LogNotifier records notices in the structured log instead of sending them.
// Secrets are never logged.
type LogNotifier struct {
	logger *observability.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendInvite implements Notifier
func (n *LogNotifier) SendInvite(_ context.Context, msg InviteMessage) error {
	n.logger.WithFields(map[string]interface{}{
		"email":      msg.Email,
		"tenant":     msg.TenantName,
		"role":       msg.RoleLabel,
		"expires_at": msg.ExpiresAt,
	}).Info("invitation notice")
	return nil
}

// SendPasswordResetNotice implements Notifier
func (n *LogNotifier) SendPasswordResetNotice(_ context.Context, msg PasswordResetMessage) error {
	n.logger.WithField("email", msg.Email).Info("password reset notice")
	return nil
}
