// Package testutil provides shared fixtures for Herald tests: the
// canonical SMS channel schema, settings stores that satisfy it, valid
// messages, a scriptable provider, and a stub token exchanger.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

// TestLogger creates a logger that writes to the test output. It is
// cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout. The
// caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the
// timeout, checking every 10ms.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// NewSMSSchema builds the channel schema used across the framework's
// tests: a Twilio-style SMS channel authenticating with Basic over
// AccountSid and AuthToken.
func NewSMSSchema(t *testing.T) *schema.Schema {
	t.Helper()

	s, err := schema.NewBuilder("twilio", "sms", "1.2.0").
		WithDisplayName("Twilio SMS").
		WithCapabilities(
			schema.CapabilitySend,
			schema.CapabilityBatchSend,
			schema.CapabilityMessageStatus,
			schema.CapabilityReceive,
			schema.CapabilityStatusReceive,
			schema.CapabilityHealthCheck).
		WithRequiredParameter("AccountSid", schema.DataTypeString).
		WithParameter(schema.Parameter{
			Name:      "AuthToken",
			DataType:  schema.DataTypeString,
			Required:  true,
			Sensitive: true,
		}).
		WithParameter(schema.Parameter{
			Name:          "Region",
			DataType:      schema.DataTypeString,
			Default:       "us1",
			AllowedValues: []interface{}{"us1", "ie1", "au1"},
		}).
		WithMessageProperty(schema.MessageProperty{
			Name:          "Priority",
			DataType:      schema.DataTypeString,
			AllowedValues: []interface{}{"low", "normal", "high"},
		}).
		WithRequiredEndpoint(schema.EndpointTypePhoneNumber, true, true).
		WithContentTypes(schema.ContentTypeText, schema.ContentTypeMedia).
		WithAuthentication(schema.AuthMethodBasic, "Account SID and auth token",
			schema.AuthField{Name: "AccountSid", Role: schema.FieldRoleUsername},
			schema.AuthField{Name: "AuthToken", Role: schema.FieldRolePassword, Sensitive: true}).
		WithStrictValidation(true).
		Build()
	require.NoError(t, err)
	return s
}

// NewSMSStore returns a settings store satisfying NewSMSSchema.
func NewSMSStore(t *testing.T, s *schema.Schema) *settings.Store {
	t.Helper()

	st, err := settings.NewFromMap(s, map[string]interface{}{
		"AccountSid": "AC0123456789abcdef",
		"AuthToken":  "secret-token",
	})
	require.NoError(t, err)
	return st
}

// TextMessage returns a message that passes NewSMSSchema validation.
func TextMessage(id string) *message.Message {
	return &message.Message{
		ID:          id,
		Sender:      message.Endpoint{Type: "PhoneNumber", Address: "+15550100"},
		Receiver:    message.Endpoint{Type: "PhoneNumber", Address: "+15550123"},
		ContentType: "Text",
		Content:     "hello from herald",
	}
}

// TextMessages returns n valid messages with ids msg-0 .. msg-<n-1>.
func TextMessages(n int) []*message.Message {
	msgs := make([]*message.Message, n)
	for i := range msgs {
		msgs[i] = TextMessage(fmt.Sprintf("msg-%d", i))
	}
	return msgs
}
