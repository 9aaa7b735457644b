package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/heraldhq/herald/pkg/auth"
	"github.com/heraldhq/herald/pkg/connector/core"
	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/settings"
)

// ScriptedProvider is a provider whose behavior is driven by its fields.
// Zero value defaults: Setup and Teardown succeed, TestConnection reports
// success, Send acknowledges with a queued receipt, GetMessageStatus
// reports delivered, and the receive hooks drain the Inbound and Reports
// queues. Assign the *Fn fields or the scripted results to override.
//
// It deliberately does not implement core.BatchSender; wrap it in a
// ScriptedBatchProvider when a test needs the native batch path.
type ScriptedProvider struct {
	mu sync.Mutex

	// Overrides. When nil the default behavior applies.
	SetupFn    func(ctx context.Context, st *settings.Store) error
	TeardownFn func(ctx context.Context) error
	SendFn     func(ctx context.Context, msg *message.Message) (*message.Receipt, error)
	StatusFn   func(ctx context.Context, providerMessageID string) (*message.StatusUpdate, error)

	// Scripted TestConnection outcome.
	TestResult *core.ConnectionTestResult
	TestErr    error

	// Inbound and Reports are drained by ReceiveMessages and
	// ReceiveMessageStatus respectively; the Err fields make the
	// corresponding hook fail instead.
	Inbound    []*message.Message
	ReceiveErr error
	Reports    []*message.StatusUpdate
	ReportErr  error

	// ReportHealth payload.
	Metrics map[string]interface{}
	Issues  []string

	// Recorded activity.
	SetupCalls    int
	TeardownCalls int
	SendCalls     int
	LastStore     *settings.Store
	Sent          []*message.Message
}

var _ core.Provider = (*ScriptedProvider)(nil)
var _ core.Receiver = (*ScriptedProvider)(nil)
var _ core.StatusQuerier = (*ScriptedProvider)(nil)
var _ core.StatusReceiver = (*ScriptedProvider)(nil)
var _ core.HealthReporter = (*ScriptedProvider)(nil)

func (p *ScriptedProvider) Setup(ctx context.Context, st *settings.Store) error {
	p.mu.Lock()
	p.SetupCalls++
	p.LastStore = st
	fn := p.SetupFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, st)
	}
	return nil
}

func (p *ScriptedProvider) Teardown(ctx context.Context) error {
	p.mu.Lock()
	p.TeardownCalls++
	fn := p.TeardownFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (p *ScriptedProvider) TestConnection(context.Context) (*core.ConnectionTestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.TestErr != nil {
		return nil, p.TestErr
	}
	if p.TestResult != nil {
		return p.TestResult, nil
	}
	return &core.ConnectionTestResult{
		Status:  core.OK(),
		Latency: time.Millisecond,
		Details: map[string]string{"endpoint": "scripted"},
	}, nil
}

func (p *ScriptedProvider) Send(ctx context.Context, msg *message.Message) (*message.Receipt, error) {
	p.mu.Lock()
	p.SendCalls++
	p.Sent = append(p.Sent, msg)
	fn := p.SendFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, msg)
	}
	return &message.Receipt{
		MessageID:         msg.ID,
		ProviderMessageID: message.NewProviderID(),
		Status:            message.StatusQueued,
		AcceptedAt:        time.Now(),
	}, nil
}

func (p *ScriptedProvider) ReceiveMessages(_ context.Context, limit int) ([]*message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ReceiveErr != nil {
		return nil, p.ReceiveErr
	}
	n := limit
	if n > len(p.Inbound) {
		n = len(p.Inbound)
	}
	out := p.Inbound[:n]
	p.Inbound = p.Inbound[n:]
	return out, nil
}

func (p *ScriptedProvider) GetMessageStatus(ctx context.Context, providerMessageID string) (*message.StatusUpdate, error) {
	p.mu.Lock()
	fn := p.StatusFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, providerMessageID)
	}
	return &message.StatusUpdate{
		ProviderMessageID: providerMessageID,
		Status:            message.StatusDelivered,
		OccurredAt:        time.Now(),
	}, nil
}

func (p *ScriptedProvider) ReceiveMessageStatus(_ context.Context, limit int) ([]*message.StatusUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ReportErr != nil {
		return nil, p.ReportErr
	}
	n := limit
	if n > len(p.Reports) {
		n = len(p.Reports)
	}
	out := p.Reports[:n]
	p.Reports = p.Reports[n:]
	return out, nil
}

func (p *ScriptedProvider) ReportHealth(context.Context) (map[string]interface{}, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Metrics, p.Issues
}

// SentMessages returns a snapshot of the messages handed to Send.
func (p *ScriptedProvider) SentMessages() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*message.Message, len(p.Sent))
	copy(out, p.Sent)
	return out
}

// Counts returns the recorded Setup, Teardown and Send call counts.
func (p *ScriptedProvider) Counts() (setup, teardown, send int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SetupCalls, p.TeardownCalls, p.SendCalls
}

// ScriptedBatchProvider extends ScriptedProvider with a native SendBatch.
// Without a BatchFn it acknowledges every message with a queued receipt.
type ScriptedBatchProvider struct {
	*ScriptedProvider

	BatchFn    func(ctx context.Context, msgs []*message.Message) ([]*message.Receipt, error)
	BatchCalls int
	bmu        sync.Mutex
}

var _ core.BatchSender = (*ScriptedBatchProvider)(nil)

func (p *ScriptedBatchProvider) SendBatch(ctx context.Context, msgs []*message.Message) ([]*message.Receipt, error) {
	p.bmu.Lock()
	p.BatchCalls++
	fn := p.BatchFn
	p.bmu.Unlock()

	if fn != nil {
		return fn(ctx, msgs)
	}
	receipts := make([]*message.Receipt, len(msgs))
	for i, m := range msgs {
		receipts[i] = &message.Receipt{
			MessageID:         m.ID,
			ProviderMessageID: message.NewProviderID(),
			Status:            message.StatusQueued,
			AcceptedAt:        time.Now(),
		}
	}
	return receipts, nil
}

// StubExchanger serves scripted client-credentials tokens and records
// the requests it sees.
type StubExchanger struct {
	mu    sync.Mutex
	calls int
	last  auth.TokenExchange

	Token *auth.ExchangedToken
	Err   error
}

var _ auth.TokenExchanger = (*StubExchanger)(nil)

func (e *StubExchanger) Exchange(_ context.Context, req auth.TokenExchange) (*auth.ExchangedToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = req
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Token != nil {
		return e.Token, nil
	}
	return &auth.ExchangedToken{
		AccessToken: "stub-token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

// Calls reports how many exchanges were requested.
func (e *StubExchanger) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LastRequest returns the most recent exchange request.
func (e *StubExchanger) LastRequest() auth.TokenExchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
