// Package notify delivers operator notifications for registration events.
package notify

import "context"

// Event is one notification to the operator channel.
type Event struct {
	Title   string
	Subject string
	Detail  string
}

// Notifier delivers events. Delivery failures are logged by callers and
// never fail the flow that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop discards all events. Used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(ctx context.Context, ev Event) error { return nil }
