package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Headers set on every webhook delivery
const (
	HeaderEvent     = "X-Homestead-Event"
	HeaderDelivery  = "X-Homestead-Delivery"
	HeaderSignature = "X-Homestead-Signature"
)

// RetryConfig configures webhook retries
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Delay returns the wait before retry number attempt (1-based)
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return c.InitialDelay
	}
	delay := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// webhookEnvelope is the body posted to the receiver
type webhookEnvelope struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// errPermanent marks a response that retrying cannot fix
var errPermanent = errors.New("permanent delivery failure")

// WebhookNotifier posts notices to an HTTP receiver, signed with
// HMAC-SHA256 over the body when a secret is configured
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
	retry  RetryConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWebhookNotifier creates a notifier delivering to url
func NewWebhookNotifier(url, secret string, retry RetryConfig) *WebhookNotifier {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffMultiplier <= 1.0 {
		retry.BackoffMultiplier = 2.0
	}
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
}

// WithHTTPClient replaces the HTTP client
func (n *WebhookNotifier) WithHTTPClient(client *http.Client) *WebhookNotifier {
	n.client = client
	return n
}

// SendInvite implements Notifier
func (n *WebhookNotifier) SendInvite(ctx context.Context, msg InviteMessage) error {
	return n.deliver(ctx, KindInvite, msg)
}

// SendPasswordResetNotice implements Notifier
func (n *WebhookNotifier) SendPasswordResetNotice(ctx context.Context, msg PasswordResetMessage) error {
	return n.deliver(ctx, KindPasswordReset, msg)
}

func (n *WebhookNotifier) deliver(ctx context.Context, kind string, data interface{}) error {
	envelope := webhookEnvelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: n.now(),
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := n.sleep(ctx, n.retry.Delay(attempt-1)); err != nil {
				return fmt.Errorf("webhook %s abandoned after %d attempts: %w", envelope.ID, attempt-1, lastErr)
			}
		}
		lastErr = n.post(ctx, kind, envelope.ID, payload)
		if lastErr == nil || errors.Is(lastErr, errPermanent) {
			return lastErr
		}
	}
	return fmt.Errorf("webhook %s failed after %d attempts: %w", envelope.ID, n.retry.MaxAttempts, lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, kind, id string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, kind)
	req.Header.Set(HeaderDelivery, id)
	if n.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook receiver returned %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: receiver returned %d", errPermanent, resp.StatusCode)
	}
}

// Sign returns the hex HMAC-SHA256 of payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value produced by the notifier
func VerifySignature(payload []byte, header, secret string) bool {
	expected := "sha256=" + Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(header))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
