package loopback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/connector/core"
	"github.com/heraldhq/herald/pkg/connector/registry"
	"github.com/heraldhq/herald/pkg/connector/runtime"
	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/settings"
	"github.com/heraldhq/herald/pkg/testutil"
)

func newLoopbackConnector(t *testing.T, values map[string]interface{}) *runtime.Connector {
	t.Helper()
	c, err := registry.NewConnector(providerID, channelType, "", values,
		runtime.WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	res, err := c.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, res.Successful)
	return c
}

func TestChannelIsRegistered(t *testing.T) {
	def, ok := registry.Get(providerID, channelType, version)
	require.True(t, ok)
	assert.Equal(t, "Herald Loopback", def.Schema.DisplayName())
	assert.False(t, def.Schema.RequiresAuthentication())
}

func TestEndToEnd(t *testing.T) {
	c := newLoopbackConnector(t, nil)
	ctx := context.Background()

	tres, err := c.TestConnection(ctx)
	require.NoError(t, err)
	assert.True(t, tres.Successful)
	assert.Equal(t, "in-memory", tres.Details["transport"])

	msg := testutil.TextMessage("msg-1")
	sres, err := c.Send(ctx, msg)
	require.NoError(t, err)
	require.True(t, sres.Successful)
	assert.Equal(t, message.StatusSent, sres.Receipt.Status)

	// The send echoes back with the endpoints swapped.
	rres, err := c.ReceiveMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rres.Messages, 1)
	echo := rres.Messages[0]
	assert.Equal(t, msg.Receiver, echo.Sender)
	assert.Equal(t, msg.Sender, echo.Receiver)
	assert.Equal(t, msg.Content, echo.Content)
	assert.NotEqual(t, msg.ID, echo.ID)

	mres, err := c.GetMessageStatus(ctx, sres.Receipt.ProviderMessageID)
	require.NoError(t, err)
	require.True(t, mres.Successful)
	assert.Equal(t, message.StatusDelivered, mres.Update.Status)
	assert.Equal(t, "msg-1", mres.Update.MessageID)

	urres, err := c.ReceiveMessageStatus(ctx, 10)
	require.NoError(t, err)
	require.Len(t, urres.Updates, 1)
	assert.Equal(t, sres.Receipt.ProviderMessageID, urres.Updates[0].ProviderMessageID)

	hres, err := c.GetHealth(ctx)
	require.NoError(t, err)
	assert.True(t, hres.IsHealthy)
	assert.Equal(t, 1, hres.Metrics["messages_sent"])
	assert.Equal(t, 1, hres.Metrics["messages_received"])

	shres, err := c.Shutdown(ctx)
	require.NoError(t, err)
	assert.True(t, shres.Successful)
}

func TestNativeBatch(t *testing.T) {
	c := newLoopbackConnector(t, nil)

	res, err := c.SendBatch(context.Background(), testutil.TextMessages(3))
	require.NoError(t, err)
	assert.True(t, res.Successful)
	assert.Equal(t, 3, res.Sent)
	for i, r := range res.Results {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), r.Receipt.MessageID)
	}

	rres, err := c.ReceiveMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rres.Messages, 3)
}

func TestUnknownProviderMessageID(t *testing.T) {
	c := newLoopbackConnector(t, nil)

	res, err := c.GetMessageStatus(context.Background(), "never-sent")
	require.NoError(t, err)
	require.True(t, res.Successful)
	assert.Equal(t, message.StatusUnknown, res.Update.Status)
}

func TestLatencyHonorsCancellation(t *testing.T) {
	p := New()
	st, err := settings.NewFromMap(Schema(), map[string]interface{}{"LatencyMs": 5000})
	require.NoError(t, err)
	require.NoError(t, p.Setup(context.Background(), st))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Send(ctx, testutil.TextMessage("msg-1"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait out the latency")
}

func TestCancelledSendMapsToResultCode(t *testing.T) {
	c := newLoopbackConnector(t, map[string]interface{}{"LatencyMs": 5000})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := c.Send(ctx, testutil.TextMessage("msg-1"))
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.Equal(t, core.CodeCancelled, res.Code)
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	c := newLoopbackConnector(t, map[string]interface{}{"QueueLimit": 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		msg := testutil.TextMessage(fmt.Sprintf("msg-%d", i))
		msg.Content = fmt.Sprintf("payload %d", i)
		res, err := c.Send(ctx, msg)
		require.NoError(t, err)
		require.True(t, res.Successful)
	}

	rres, err := c.ReceiveMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rres.Messages, 2)
	assert.Equal(t, "payload 2", rres.Messages[0].Content)
	assert.Equal(t, "payload 3", rres.Messages[1].Content)

	hres, err := c.GetHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, hres.Metrics["messages_dropped"])
	assert.Contains(t, hres.Issues, "inbound queue overflowed; oldest echoes were dropped")
	assert.True(t, hres.IsHealthy, "advisory issues do not flip health")
}
