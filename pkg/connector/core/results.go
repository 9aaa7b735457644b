package core

import (
	"time"

	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/schema"
)

// Stable result codes for expected operational failures. Contract
// faults never use these; they surface as errors built from pkg/errors.
const (
	CodeMessageValidationFailed = "MESSAGE_VALIDATION_FAILED"
	CodeInitializationError     = "INITIALIZATION_ERROR"
	CodeAuthenticationFailed    = "AUTHENTICATION_FAILED"
	CodeSendFailed              = "SEND_FAILED"
	CodeBatchSendFailed         = "BATCH_SEND_FAILED"
	CodeStatusQueryFailed       = "STATUS_QUERY_FAILED"
	CodeReceiveFailed           = "RECEIVE_FAILED"
	CodeConnectionTestFailed    = "CONNECTION_TEST_FAILED"
	CodeShutdownFailed          = "SHUTDOWN_FAILED"
	CodeCancelled               = "CANCELLED"
)

// Status is the uniform outcome header shared by operation results.
// An expected failure sets Successful false plus a stable Code; when
// validation produced the failure, Errors carries the complete list.
type Status struct {
	Successful bool                     `json:"successful"`
	Code       string                   `json:"code,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Errors     []schema.ValidationError `json:"errors,omitempty"`
}

// OK returns a successful Status.
func OK() Status {
	return Status{Successful: true}
}

// Fail returns a failed Status with a stable code and a human-readable
// message.
func Fail(code, message string) Status {
	return Status{Code: code, Message: message}
}

// FailValidation returns a failed Status carrying every error the
// validation pass produced.
func FailValidation(code string, result *schema.ValidationResult) Status {
	return Status{
		Code:    code,
		Message: result.Summary(),
		Errors:  result.Errors(),
	}
}

// InitializeResult reports the outcome of Initialize.
type InitializeResult struct {
	Status
	State ConnectorState `json:"state"`
}

// ConnectionTestResult reports the outcome of TestConnection. Providers
// build it in their TestConnection hook; the runtime passes it through.
type ConnectionTestResult struct {
	Status
	Latency time.Duration     `json:"latency,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// SendResult reports the outcome of a single send.
type SendResult struct {
	Status
	Receipt *message.Receipt `json:"receipt,omitempty"`
}

// BatchSendResult reports the outcome of SendBatch. Results holds one
// entry per input message, in input order.
type BatchSendResult struct {
	Status
	Results []SendResult `json:"results,omitempty"`
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
}

// MessageStatusResult reports a delivery-state lookup for one message.
type MessageStatusResult struct {
	Status
	Update *message.StatusUpdate `json:"update,omitempty"`
}

// ReceiveResult reports pulled inbound messages.
type ReceiveResult struct {
	Status
	Messages []*message.Message `json:"messages,omitempty"`
}

// StatusReceiveResult reports pulled delivery reports.
type StatusReceiveResult struct {
	Status
	Updates []*message.StatusUpdate `json:"updates,omitempty"`
}

// HealthResult is the synthesized health report. IsHealthy mirrors the
// Ready state; provider metrics and issues are merged in when the
// provider implements HealthReporter.
type HealthResult struct {
	IsHealthy bool                   `json:"isHealthy"`
	State     ConnectorState         `json:"state"`
	CheckedAt time.Time              `json:"checkedAt"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
	Issues    []string               `json:"issues,omitempty"`
}

// ShutdownResult reports the outcome of Shutdown. A teardown error is
// reported here while the state still reaches Shutdown.
type ShutdownResult struct {
	Status
	State ConnectorState `json:"state"`
}
