// Package notify delivers invitation and password-reset notices.
//
// Delivery is a best-effort side effect of a state transition that has
// already committed. Callers hand messages to a Dispatcher, which runs the
// configured Notifier on a background worker pool; failures are logged and
// counted and never reach the caller.
//
// LogNotifier writes a structured log line and is the default.
// AMQPNotifier publishes JSON messages to durable RabbitMQ queues consumed by
// the mailer. WebhookNotifier posts signed JSON to an HTTP receiver and
// retries transient failures with exponential backoff; receivers check the
// X-Homestead-Signature header with VerifySignature.
package notify
