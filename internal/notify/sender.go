package notify

import "context"

// EmailSender provides a testable abstraction over SES delivery.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// EventPublisher provides a testable abstraction over the message broker.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}
