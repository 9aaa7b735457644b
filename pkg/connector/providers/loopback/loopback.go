// Package loopback provides an in-memory channel: accepted sends echo
// back as inbound messages with the endpoints swapped, and every send
// synthesizes a delivery report. It exercises the full connector surface
// without an external provider, backing the CLI, the examples, and
// development setups.
//
// Importing the package registers the channel in the default registry.
package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/heraldhq/herald/pkg/connector/core"
	"github.com/heraldhq/herald/pkg/connector/registry"
	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

const (
	providerID  = "herald"
	channelType = "loopback"
	version     = "1.0.0"

	defaultQueueLimit = 100
)

// Schema builds the loopback channel schema: every capability, any
// endpoint, no authentication.
func Schema() *schema.Schema {
	return schema.NewBuilder(providerID, channelType, version).
		WithDisplayName("Herald Loopback").
		WithCapabilities(
			schema.CapabilitySend,
			schema.CapabilityBatchSend,
			schema.CapabilityReceive,
			schema.CapabilityMessageStatus,
			schema.CapabilityStatusReceive,
			schema.CapabilityHealthCheck).
		WithParameter(schema.Parameter{
			Name:     "LatencyMs",
			DataType: schema.DataTypeInteger,
			Default:  0,
		}).
		WithParameter(schema.Parameter{
			Name:     "QueueLimit",
			DataType: schema.DataTypeInteger,
			Default:  defaultQueueLimit,
		}).
		WithEndpoint(schema.EndpointTypeAny, true, true).
		WithContentTypes(schema.ContentTypeText, schema.ContentTypeMedia).
		WithNoAuthentication().
		MustBuild()
}

// Provider is the in-memory loopback provider. One instance serves one
// connector; the queues live for the connector's lifetime.
type Provider struct {
	mu sync.Mutex

	latency time.Duration
	limit   int

	inbound  []*message.Message
	reports  []*message.StatusUpdate
	statuses map[string]*message.StatusUpdate

	sent     int
	received int
	dropped  int
}

var _ core.Provider = (*Provider)(nil)
var _ core.BatchSender = (*Provider)(nil)
var _ core.Receiver = (*Provider)(nil)
var _ core.StatusQuerier = (*Provider)(nil)
var _ core.StatusReceiver = (*Provider)(nil)
var _ core.HealthReporter = (*Provider)(nil)

// New creates an unconfigured loopback provider; Setup applies the
// channel settings.
func New() *Provider {
	return &Provider{limit: defaultQueueLimit}
}

func (p *Provider) Setup(_ context.Context, st *settings.Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ms, ok := st.GetInt("LatencyMs"); ok && ms > 0 {
		p.latency = time.Duration(ms) * time.Millisecond
	}
	if limit, ok := st.GetInt("QueueLimit"); ok && limit > 0 {
		p.limit = limit
	}
	p.statuses = make(map[string]*message.StatusUpdate)
	return nil
}

func (p *Provider) Teardown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inbound = nil
	p.reports = nil
	p.statuses = nil
	return nil
}

func (p *Provider) TestConnection(ctx context.Context) (*core.ConnectionTestResult, error) {
	start := time.Now()
	if err := p.pause(ctx); err != nil {
		return nil, err
	}
	return &core.ConnectionTestResult{
		Status:  core.OK(),
		Latency: time.Since(start),
		Details: map[string]string{"transport": "in-memory"},
	}, nil
}

func (p *Provider) Send(ctx context.Context, msg *message.Message) (*message.Receipt, error) {
	if err := p.pause(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accept(msg), nil
}

// SendBatch accepts the batch sequentially, honoring cancellation
// between messages.
func (p *Provider) SendBatch(ctx context.Context, msgs []*message.Message) ([]*message.Receipt, error) {
	receipts := make([]*message.Receipt, len(msgs))
	for i, m := range msgs {
		if err := p.pause(ctx); err != nil {
			return nil, err
		}
		p.mu.Lock()
		receipts[i] = p.accept(m)
		p.mu.Unlock()
	}
	return receipts, nil
}

// accept records one outbound message: mints the receipt, loops an echo
// into the inbound queue with the endpoints swapped, and synthesizes a
// delivered report. Callers hold p.mu.
func (p *Provider) accept(msg *message.Message) *message.Receipt {
	now := time.Now()
	pmid := message.NewProviderID()
	p.sent++

	echo := msg.Clone()
	echo.ID = message.NewProviderID()
	echo.Sender, echo.Receiver = msg.Receiver, msg.Sender
	p.enqueue(echo)

	update := &message.StatusUpdate{
		MessageID:         msg.ID,
		ProviderMessageID: pmid,
		Status:            message.StatusDelivered,
		OccurredAt:        now,
	}
	p.statuses[pmid] = update
	p.reports = append(p.reports, update)
	if len(p.reports) > p.limit {
		p.reports = p.reports[len(p.reports)-p.limit:]
	}

	return &message.Receipt{
		MessageID:         msg.ID,
		ProviderMessageID: pmid,
		Status:            message.StatusSent,
		AcceptedAt:        now,
	}
}

// enqueue appends to the inbound queue, dropping the oldest entries
// beyond the configured limit. Callers hold p.mu.
func (p *Provider) enqueue(msg *message.Message) {
	p.inbound = append(p.inbound, msg)
	if len(p.inbound) > p.limit {
		p.dropped += len(p.inbound) - p.limit
		p.inbound = p.inbound[len(p.inbound)-p.limit:]
	}
}

func (p *Provider) ReceiveMessages(ctx context.Context, limit int) ([]*message.Message, error) {
	if err := p.pause(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := limit
	if n > len(p.inbound) {
		n = len(p.inbound)
	}
	out := p.inbound[:n]
	p.inbound = p.inbound[n:]
	p.received += n
	return out, nil
}

func (p *Provider) GetMessageStatus(ctx context.Context, providerMessageID string) (*message.StatusUpdate, error) {
	if err := p.pause(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if update, ok := p.statuses[providerMessageID]; ok {
		return update, nil
	}
	return &message.StatusUpdate{
		ProviderMessageID: providerMessageID,
		Status:            message.StatusUnknown,
		OccurredAt:        time.Now(),
	}, nil
}

func (p *Provider) ReceiveMessageStatus(ctx context.Context, limit int) ([]*message.StatusUpdate, error) {
	if err := p.pause(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := limit
	if n > len(p.reports) {
		n = len(p.reports)
	}
	out := p.reports[:n]
	p.reports = p.reports[n:]
	return out, nil
}

func (p *Provider) ReportHealth(context.Context) (map[string]interface{}, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	metrics := map[string]interface{}{
		"messages_sent":     p.sent,
		"messages_received": p.received,
		"inbound_queue":     len(p.inbound),
		"report_queue":      len(p.reports),
	}
	var issues []string
	if p.dropped > 0 {
		metrics["messages_dropped"] = p.dropped
		issues = append(issues, "inbound queue overflowed; oldest echoes were dropped")
	}
	return metrics, issues
}

// pause simulates the configured channel latency, honoring cancellation.
func (p *Provider) pause(ctx context.Context) error {
	p.mu.Lock()
	latency := p.latency
	p.mu.Unlock()

	if latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func init() {
	registry.MustRegister(registry.Definition{
		Schema:  Schema(),
		Factory: func() core.Provider { return New() },
	})
}
