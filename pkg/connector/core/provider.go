package core

import (
	"context"

	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/settings"
)

// Provider is the minimal contract a messaging provider implements to
// run under the connector runtime. Hooks receive inputs the runtime has
// already validated and gated; they talk to the provider API and
// nothing else.
type Provider interface {
	// Setup prepares the provider with its validated connection
	// settings. It runs once, during Initialize, after authentication
	// has succeeded.
	Setup(ctx context.Context, store *settings.Store) error

	// Teardown releases provider resources. It runs once, during
	// Shutdown, and must tolerate a Setup that never ran or failed.
	Teardown(ctx context.Context) error

	// TestConnection verifies the provider is reachable. Expected
	// failures (rejected credentials, unreachable host) come back in
	// the result; a non-nil error is reserved for faults.
	TestConnection(ctx context.Context) (*ConnectionTestResult, error)

	// Send submits one message that already passed validation.
	Send(ctx context.Context, msg *message.Message) (*message.Receipt, error)
}

// BatchSender is implemented by providers with a native batch endpoint.
// Without it, SendBatch falls back to rate-limited concurrent single
// sends.
type BatchSender interface {
	SendBatch(ctx context.Context, msgs []*message.Message) ([]*message.Receipt, error)
}

// Receiver is implemented by providers that can pull inbound messages.
type Receiver interface {
	ReceiveMessages(ctx context.Context, limit int) ([]*message.Message, error)
}

// StatusQuerier is implemented by providers that can look up the
// delivery state of a previously sent message by its provider-assigned
// identifier.
type StatusQuerier interface {
	GetMessageStatus(ctx context.Context, providerMessageID string) (*message.StatusUpdate, error)
}

// StatusReceiver is implemented by providers that can pull delivery
// reports.
type StatusReceiver interface {
	ReceiveMessageStatus(ctx context.Context, limit int) ([]*message.StatusUpdate, error)
}

// HealthReporter is implemented by providers that contribute their own
// metrics and issues to GetHealth beyond the synthesized state check.
type HealthReporter interface {
	ReportHealth(ctx context.Context) (metrics map[string]interface{}, issues []string)
}
