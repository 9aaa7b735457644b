// Package message defines the messages, endpoints, receipts, and status
// updates exchanged through channel connectors. Types here are plain data
// carriers; all validation against a channel's declared capabilities lives
// in the schema package.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Endpoint identifies one side of a message: a typed address such as a
// phone number, an email address, or a device token.
type Endpoint struct {
	// Type is the endpoint-type tag declared by the channel schema
	// (e.g. "PhoneNumber", "Email")
	Type string `json:"type"`

	// Address is the provider-facing address value
	Address string `json:"address"`
}

// Message is a single outgoing or incoming message.
type Message struct {
	// ID is the caller-assigned identifier; it must be non-empty
	ID string `json:"id"`

	// Sender is the originating endpoint
	Sender Endpoint `json:"sender"`

	// Receiver is the destination endpoint
	Receiver Endpoint `json:"receiver"`

	// ContentType names the content-type tag the body should be
	// interpreted as (e.g. "Text", "Media", "Template")
	ContentType string `json:"contentType"`

	// Content is the message body
	Content string `json:"content"`

	// Properties carries per-message values validated against the
	// schema's message-property declarations
	Properties map[string]interface{} `json:"properties,omitempty"`

	// Metadata carries transport hints that are never validated
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns an independent copy of the message. Mutating the copy,
// including its maps, never affects the original.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Properties != nil {
		out.Properties = make(map[string]interface{}, len(m.Properties))
		for k, v := range m.Properties {
			out.Properties[k] = v
		}
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Status is the delivery state of a message as reported by a provider.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Receipt is the provider's acknowledgement of an accepted message.
type Receipt struct {
	// MessageID echoes the caller-assigned message ID
	MessageID string `json:"messageId"`

	// ProviderMessageID is the provider-assigned identifier used for
	// later status queries
	ProviderMessageID string `json:"providerMessageId"`

	// Status is the delivery state at acceptance time
	Status Status `json:"status"`

	// AcceptedAt is when the provider accepted the message
	AcceptedAt time.Time `json:"acceptedAt"`

	// Details carries provider-specific acknowledgement values
	Details map[string]string `json:"details,omitempty"`
}

// StatusUpdate is a delivery report for a previously sent message.
type StatusUpdate struct {
	// MessageID is the caller-assigned message ID when known
	MessageID string `json:"messageId,omitempty"`

	// ProviderMessageID is the provider-assigned identifier
	ProviderMessageID string `json:"providerMessageId"`

	// Status is the reported delivery state
	Status Status `json:"status"`

	// OccurredAt is when the provider recorded the state change
	OccurredAt time.Time `json:"occurredAt"`

	// Reason carries the provider's explanation for failed states
	Reason string `json:"reason,omitempty"`
}

// NewProviderID mints a unique provider-side message identifier. Simulated
// and test providers use it where a real provider would return its own.
func NewProviderID() string {
	return uuid.NewString()
}
