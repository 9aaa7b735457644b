package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heraldhq/herald/pkg/connector/core"
	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/message"
	"github.com/heraldhq/herald/pkg/metrics"
	"github.com/heraldhq/herald/pkg/observability"
	"github.com/heraldhq/herald/pkg/schema"
)

// Operation names used in metric labels and span names.
const (
	opInitialize           = "initialize"
	opTestConnection       = "test_connection"
	opSend                 = "send"
	opSendBatch            = "send_batch"
	opGetMessageStatus     = "get_message_status"
	opReceiveMessages      = "receive_messages"
	opReceiveMessageStatus = "receive_message_status"
	opGetHealth            = "get_health"
	opShutdown             = "shutdown"
)

// failureCode maps a hook error to a result code, preserving CANCELLED
// for caller-driven aborts.
func failureCode(err error, fallback string) string {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return core.CodeCancelled
	}
	return fallback
}

// Initialize authenticates the channel and runs the provider's setup
// hook. It must be the first call on a connector; any other state is a
// contract fault. Expected failures land the connector in Error with
// code AUTHENTICATION_FAILED or INITIALIZATION_ERROR; Error is a dead
// end, the connector is never re-initialized.
func (c *Connector) Initialize(ctx context.Context) (result *core.InitializeResult, err error) {
	if !c.state.CompareAndSwap(int32(core.StateUninitialized), int32(core.StateInitializing)) {
		c.collector.RecordFault(opInitialize)
		return nil, errors.Newf(errors.ErrorTypeState,
			"connector is already initialized (state: %s)", c.State())
	}
	c.collector.SetState(int32(core.StateInitializing))
	c.logger.Info("initializing connector", zap.String("version", c.schema.Version()))

	ctx, span := c.tracer.StartSpan(ctx, opInitialize)
	defer span.End()
	start := time.Now()

	// A panicking hook must not leave the connector stuck in
	// Initializing.
	defer func() {
		if r := recover(); r != nil {
			c.setState(core.StateError)
			c.logger.Error("initialization panicked", zap.Any("panic", r))
			c.collector.RecordOperation(opInitialize, metrics.OutcomeFor(false), time.Since(start))
			span.SetAttribute("result.code", core.CodeInitializationError)
			result = &core.InitializeResult{
				Status: core.Fail(core.CodeInitializationError, fmt.Sprintf("initialization panicked: %v", r)),
				State:  core.StateError,
			}
			err = nil
		}
	}()

	if c.schema.RequiresAuthentication() {
		cred, aerr := c.authenticate(ctx)
		if aerr != nil {
			c.setState(core.StateError)
			c.logger.Error("authentication failed", zap.Error(aerr))
			c.collector.RecordOperation(opInitialize, metrics.OutcomeFor(false), time.Since(start))
			code := failureCode(aerr, core.CodeAuthenticationFailed)
			span.SetAttribute("result.code", code)
			span.RecordOutcome(aerr)
			return &core.InitializeResult{
				Status: core.Fail(code, aerr.Error()),
				State:  core.StateError,
			}, nil
		}
		if cred != nil {
			c.credential.Store(cred)
			span.SetAttribute("auth.method", string(cred.Method))
		}
	}

	if serr := c.provider.Setup(ctx, c.store); serr != nil {
		c.setState(core.StateError)
		c.logger.Error("provider setup failed", zap.Error(serr))
		c.collector.RecordOperation(opInitialize, metrics.OutcomeFor(false), time.Since(start))
		code := failureCode(serr, core.CodeInitializationError)
		span.SetAttribute("result.code", code)
		span.RecordOutcome(serr)
		return &core.InitializeResult{
			Status: core.Fail(code, serr.Error()),
			State:  core.StateError,
		}, nil
	}

	c.setState(core.StateReady)
	c.collector.RecordOperation(opInitialize, metrics.OutcomeFor(true), time.Since(start))
	span.RecordOutcome(nil)
	return &core.InitializeResult{Status: core.OK(), State: core.StateReady}, nil
}

// TestConnection asks the provider to verify reachability. The provider
// builds the result; a hook error converts to CONNECTION_TEST_FAILED.
func (c *Connector) TestConnection(ctx context.Context) (*core.ConnectionTestResult, error) {
	if err := c.requireReady(opTestConnection); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.StartSpan(ctx, opTestConnection)
	defer span.End()
	start := time.Now()

	result, herr := c.provider.TestConnection(ctx)
	if herr != nil {
		code := failureCode(herr, core.CodeConnectionTestFailed)
		c.collector.RecordOperation(opTestConnection, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(herr)
		c.logger.Warn("connection test failed", zap.Error(herr))
		return &core.ConnectionTestResult{Status: core.Fail(code, herr.Error())}, nil
	}
	if result == nil {
		c.collector.RecordFault(opTestConnection)
		return nil, errors.New(errors.ErrorTypeInternal, "provider returned neither result nor error")
	}

	c.collector.RecordOperation(opTestConnection, metrics.OutcomeFor(result.Successful), time.Since(start))
	span.RecordOutcome(nil)
	return result, nil
}

// Send validates one message and submits it through the provider. Any
// validation error returns a single MESSAGE_VALIDATION_FAILED result
// carrying the complete error list; the provider hook is never invoked.
func (c *Connector) Send(ctx context.Context, msg *message.Message) (*core.SendResult, error) {
	if err := c.requireReady(opSend); err != nil {
		return nil, err
	}
	if err := c.requireCapability(opSend, schema.CapabilitySend); err != nil {
		return nil, err
	}
	if msg == nil {
		c.collector.RecordFault(opSend)
		return nil, errors.New(errors.ErrorTypeValidation, "message must not be nil")
	}

	ctx, span := c.tracer.StartSpan(ctx, opSend)
	defer span.End()
	span.SetAttribute("message.id", msg.ID)
	start := time.Now()

	c.collector.AddInFlight(1)
	defer c.collector.AddInFlight(-1)

	if v := c.schema.ValidateMessage(msg); !v.Valid() {
		c.collector.RecordValidationFailures("message", v.Len())
		c.collector.RecordOperation(opSend, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", core.CodeMessageValidationFailed)
		c.logger.Debug("message rejected by validation",
			zap.String("message_id", msg.ID),
			zap.Int("errors", v.Len()))
		return &core.SendResult{Status: core.FailValidation(core.CodeMessageValidationFailed, v)}, nil
	}

	// The provider gets a copy carrying the trace context; the caller's
	// message is never mutated.
	out := msg.Clone()
	c.propagator.Inject(ctx, out)

	receipt, herr := c.provider.Send(ctx, out)
	if herr != nil {
		code := failureCode(herr, core.CodeSendFailed)
		c.collector.RecordOperation(opSend, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(herr)
		c.logger.Warn("send failed", zap.String("message_id", msg.ID), zap.Error(herr))
		return &core.SendResult{Status: core.Fail(code, herr.Error())}, nil
	}
	if receipt == nil {
		c.collector.RecordFault(opSend)
		return nil, errors.New(errors.ErrorTypeInternal, "provider returned neither receipt nor error")
	}

	c.collector.RecordSent(string(receipt.Status))
	c.collector.RecordOperation(opSend, metrics.OutcomeFor(true), time.Since(start))
	span.RecordOutcome(nil)
	return &core.SendResult{Status: core.OK(), Receipt: receipt}, nil
}

// SendBatch validates every message up front, then submits the batch
// through the provider's native batch hook when it has one, or through
// the bounded fan-out dispatcher otherwise. Results keep input order.
func (c *Connector) SendBatch(ctx context.Context, msgs []*message.Message) (*core.BatchSendResult, error) {
	if err := c.requireReady(opSendBatch); err != nil {
		return nil, err
	}
	if err := c.requireCapability(opSendBatch, schema.CapabilityBatchSend); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		c.collector.RecordFault(opSendBatch)
		return nil, errors.New(errors.ErrorTypeValidation, "batch must contain at least one message")
	}
	for i, m := range msgs {
		if m == nil {
			c.collector.RecordFault(opSendBatch)
			return nil, errors.Newf(errors.ErrorTypeValidation, "batch message %d is nil", i)
		}
	}

	ctx, span := c.tracer.StartSpan(ctx, opSendBatch)
	defer span.End()
	span.SetAttribute("batch.size", len(msgs))
	start := time.Now()

	c.collector.AddInFlight(len(msgs))
	defer c.collector.AddInFlight(-len(msgs))

	problems := schema.NewValidationResult()
	for _, m := range msgs {
		if v := c.schema.ValidateMessage(m); !v.Valid() {
			for _, e := range v.Errors() {
				problems.Add(fmt.Sprintf("message %q: %s", m.ID, e.Message), e.Fields...)
			}
		}
	}
	if !problems.Valid() {
		c.collector.RecordValidationFailures("message", problems.Len())
		c.collector.RecordOperation(opSendBatch, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", core.CodeMessageValidationFailed)
		return &core.BatchSendResult{
			Status: core.FailValidation(core.CodeMessageValidationFailed, problems),
			Failed: len(msgs),
		}, nil
	}

	outgoing := make([]*message.Message, len(msgs))
	for i, m := range msgs {
		outgoing[i] = m.Clone()
		c.propagator.Inject(ctx, outgoing[i])
	}

	if bs, ok := c.provider.(core.BatchSender); ok {
		return c.sendBatchNative(ctx, span, bs, outgoing, start)
	}
	return c.sendBatchFanout(ctx, span, outgoing, start), nil
}

// sendBatchNative submits through the provider's batch endpoint.
func (c *Connector) sendBatchNative(ctx context.Context, span *observability.Span, bs core.BatchSender, msgs []*message.Message, start time.Time) (*core.BatchSendResult, error) {
	receipts, herr := bs.SendBatch(ctx, msgs)
	if herr != nil {
		code := failureCode(herr, core.CodeBatchSendFailed)
		c.collector.RecordOperation(opSendBatch, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(herr)
		c.logger.Warn("batch send failed", zap.Int("messages", len(msgs)), zap.Error(herr))
		return &core.BatchSendResult{
			Status: core.Fail(code, herr.Error()),
			Failed: len(msgs),
		}, nil
	}
	if len(receipts) != len(msgs) {
		c.collector.RecordFault(opSendBatch)
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"provider returned %d receipts for %d messages", len(receipts), len(msgs))
	}

	results := make([]core.SendResult, len(msgs))
	sent, failed := 0, 0
	for i, r := range receipts {
		if r == nil {
			failed++
			results[i] = core.SendResult{Status: core.Fail(core.CodeSendFailed, "provider returned no receipt")}
			continue
		}
		sent++
		c.collector.RecordSent(string(r.Status))
		results[i] = core.SendResult{Status: core.OK(), Receipt: r}
	}

	res := &core.BatchSendResult{Results: results, Sent: sent, Failed: failed}
	if failed == 0 {
		res.Status = core.OK()
	} else {
		res.Status = core.Fail(core.CodeBatchSendFailed, fmt.Sprintf("%d of %d messages failed", failed, len(msgs)))
	}
	c.collector.RecordOperation(opSendBatch, metrics.OutcomeFor(res.Successful), time.Since(start))
	if !res.Successful {
		span.SetAttribute("result.code", res.Code)
	}
	span.RecordOutcome(nil)
	return res, nil
}

// sendBatchFanout submits through bounded concurrent single sends.
func (c *Connector) sendBatchFanout(ctx context.Context, span *observability.Span, msgs []*message.Message, start time.Time) *core.BatchSendResult {
	outcomes := c.dispatcher.Dispatch(ctx, msgs, c.provider.Send)

	results := make([]core.SendResult, len(outcomes))
	sent, failed := 0, 0
	for i, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
			code := failureCode(o.Err, core.CodeSendFailed)
			results[i] = core.SendResult{Status: core.Fail(code, o.Err.Error())}
		case o.Receipt == nil:
			failed++
			results[i] = core.SendResult{Status: core.Fail(core.CodeSendFailed, "provider returned no receipt")}
		default:
			sent++
			c.collector.RecordSent(string(o.Receipt.Status))
			results[i] = core.SendResult{Status: core.OK(), Receipt: o.Receipt}
		}
	}

	res := &core.BatchSendResult{Results: results, Sent: sent, Failed: failed}
	switch {
	case failed == 0:
		res.Status = core.OK()
	case ctx.Err() != nil:
		res.Status = core.Fail(core.CodeCancelled,
			fmt.Sprintf("batch cancelled after %d of %d messages", sent, len(msgs)))
	default:
		res.Status = core.Fail(core.CodeBatchSendFailed,
			fmt.Sprintf("%d of %d messages failed", failed, len(msgs)))
	}
	c.collector.RecordOperation(opSendBatch, metrics.OutcomeFor(res.Successful), time.Since(start))
	if !res.Successful {
		span.SetAttribute("result.code", res.Code)
	}
	span.RecordOutcome(nil)
	return res
}

// GetStatus returns the lifecycle state. It is a pure state read,
// callable in any state.
func (c *Connector) GetStatus() core.ConnectorState {
	return c.State()
}

// GetMessageStatus looks up the delivery state of a previously sent
// message by its provider-assigned identifier.
func (c *Connector) GetMessageStatus(ctx context.Context, providerMessageID string) (*core.MessageStatusResult, error) {
	if err := c.requireReady(opGetMessageStatus); err != nil {
		return nil, err
	}
	if err := c.requireCapability(opGetMessageStatus, schema.CapabilityMessageStatus); err != nil {
		return nil, err
	}
	if providerMessageID == "" {
		c.collector.RecordFault(opGetMessageStatus)
		return nil, errors.New(errors.ErrorTypeValidation, "provider message id must not be empty")
	}
	sq, ok := c.provider.(core.StatusQuerier)
	if !ok {
		c.collector.RecordFault(opGetMessageStatus)
		return nil, errors.New(errors.ErrorTypeCapability, "provider does not implement message status lookup")
	}

	ctx, span := c.tracer.StartSpan(ctx, opGetMessageStatus)
	defer span.End()
	span.SetAttribute("message.provider_id", providerMessageID)
	start := time.Now()

	update, herr := sq.GetMessageStatus(ctx, providerMessageID)
	if herr != nil {
		code := failureCode(herr, core.CodeStatusQueryFailed)
		c.collector.RecordOperation(opGetMessageStatus, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(herr)
		return &core.MessageStatusResult{Status: core.Fail(code, herr.Error())}, nil
	}
	if update == nil {
		c.collector.RecordFault(opGetMessageStatus)
		return nil, errors.New(errors.ErrorTypeInternal, "provider returned neither status nor error")
	}

	c.collector.RecordOperation(opGetMessageStatus, metrics.OutcomeFor(true), time.Since(start))
	span.RecordOutcome(nil)
	return &core.MessageStatusResult{Status: core.OK(), Update: update}, nil
}

// ReceiveMessages pulls up to limit inbound messages from the provider.
func (c *Connector) ReceiveMessages(ctx context.Context, limit int) (*core.ReceiveResult, error) {
	if err := c.requireReady(opReceiveMessages); err != nil {
		return nil, err
	}
	if err := c.requireCapability(opReceiveMessages, schema.CapabilityReceive); err != nil {
		return nil, err
	}
	if limit <= 0 {
		c.collector.RecordFault(opReceiveMessages)
		return nil, errors.New(errors.ErrorTypeValidation, "receive limit must be positive")
	}
	rcv, ok := c.provider.(core.Receiver)
	if !ok {
		c.collector.RecordFault(opReceiveMessages)
		return nil, errors.New(errors.ErrorTypeCapability, "provider does not implement message receiving")
	}

	ctx, span := c.tracer.StartSpan(ctx, opReceiveMessages)
	defer span.End()
	span.SetAttribute("receive.limit", limit)
	start := time.Now()

	msgs, herr := rcv.ReceiveMessages(ctx, limit)
	if herr != nil {
		code := failureCode(herr, core.CodeReceiveFailed)
		c.collector.RecordOperation(opReceiveMessages, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(herr)
		return &core.ReceiveResult{Status: core.Fail(code, herr.Error())}, nil
	}

	c.collector.RecordReceived(len(msgs))
	c.collector.RecordOperation(opReceiveMessages, metrics.OutcomeFor(true), time.Since(start))
	span.SetAttribute("receive.count", len(msgs))
	span.RecordOutcome(nil)
	return &core.ReceiveResult{Status: core.OK(), Messages: msgs}, nil
}

// ReceiveMessageStatus pulls up to limit delivery reports from the
// provider.
func (c *Connector) ReceiveMessageStatus(ctx context.Context, limit int) (*core.StatusReceiveResult, error) {
	if err := c.requireReady(opReceiveMessageStatus); err != nil {
		return nil, err
	}
	if err := c.requireCapability(opReceiveMessageStatus, schema.CapabilityStatusReceive); err != nil {
		return nil, err
	}
	if limit <= 0 {
		c.collector.RecordFault(opReceiveMessageStatus)
		return nil, errors.New(errors.ErrorTypeValidation, "receive limit must be positive")
	}
	sr, ok := c.provider.(core.StatusReceiver)
	if !ok {
		c.collector.RecordFault(opReceiveMessageStatus)
		return nil, errors.New(errors.ErrorTypeCapability, "provider does not implement status receiving")
	}

	ctx, span := c.tracer.StartSpan(ctx, opReceiveMessageStatus)
	defer span.End()
	span.SetAttribute("receive.limit", limit)
	start := time.Now()

	updates, herr := sr.ReceiveMessageStatus(ctx, limit)
	if herr != nil {
		code := failureCode(herr, core.CodeReceiveFailed)
		c.collector.RecordOperation(opReceiveMessageStatus, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(herr)
		return &core.StatusReceiveResult{Status: core.Fail(code, herr.Error())}, nil
	}

	c.collector.RecordOperation(opReceiveMessageStatus, metrics.OutcomeFor(true), time.Since(start))
	span.SetAttribute("receive.count", len(updates))
	span.RecordOutcome(nil)
	return &core.StatusReceiveResult{Status: core.OK(), Updates: updates}, nil
}

// GetHealth synthesizes a health report from the lifecycle state and,
// when the connector is Ready, the provider's own health hook. It is
// callable in any state so operators can inspect a failed connector.
func (c *Connector) GetHealth(ctx context.Context) (*core.HealthResult, error) {
	if err := c.requireCapability(opGetHealth, schema.CapabilityHealthCheck); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.StartSpan(ctx, opGetHealth)
	defer span.End()
	start := time.Now()

	state := c.State()
	result := &core.HealthResult{
		IsHealthy: state == core.StateReady,
		State:     state,
		CheckedAt: time.Now(),
		Metrics: map[string]interface{}{
			"uptime_seconds": time.Since(c.collector.StartTime()).Seconds(),
		},
	}

	if state == core.StateReady {
		if hr, ok := c.provider.(core.HealthReporter); ok {
			pm, issues := hr.ReportHealth(ctx)
			for k, v := range pm {
				result.Metrics[k] = v
			}
			result.Issues = append(result.Issues, issues...)
		}
	} else {
		result.Issues = append(result.Issues, fmt.Sprintf("Connector is in %s state", state))
	}

	c.collector.RecordOperation(opGetHealth, metrics.OutcomeFor(true), time.Since(start))
	span.SetAttribute("health.healthy", result.IsHealthy)
	span.RecordOutcome(nil)
	return result, nil
}

// Shutdown moves any non-terminal state through ShuttingDown to
// Shutdown, running the provider's teardown hook exactly once. Repeat
// calls after reaching Shutdown are no-ops. A teardown error is
// reported in the result; the state still reaches Shutdown.
func (c *Connector) Shutdown(ctx context.Context) (*core.ShutdownResult, error) {
	for {
		s := c.State()
		if s == core.StateShutdown || s == core.StateShuttingDown {
			return &core.ShutdownResult{Status: core.OK(), State: s}, nil
		}
		if c.state.CompareAndSwap(int32(s), int32(core.StateShuttingDown)) {
			c.collector.SetState(int32(core.StateShuttingDown))
			c.logger.Info("connector state changed",
				zap.String("from", s.String()),
				zap.String("to", core.StateShuttingDown.String()))
			break
		}
	}

	ctx, span := c.tracer.StartSpan(ctx, opShutdown)
	defer span.End()
	start := time.Now()

	var terr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				terr = errors.Newf(errors.ErrorTypeInternal, "teardown panicked: %v", r)
			}
		}()
		terr = c.provider.Teardown(ctx)
	}()

	c.setState(core.StateShutdown)

	if terr != nil {
		code := failureCode(terr, core.CodeShutdownFailed)
		c.collector.RecordOperation(opShutdown, metrics.OutcomeFor(false), time.Since(start))
		span.SetAttribute("result.code", code)
		span.RecordOutcome(terr)
		c.logger.Warn("teardown failed", zap.Error(terr))
		return &core.ShutdownResult{Status: core.Fail(code, terr.Error()), State: core.StateShutdown}, nil
	}

	c.collector.RecordOperation(opShutdown, metrics.OutcomeFor(true), time.Since(start))
	span.RecordOutcome(nil)
	return &core.ShutdownResult{Status: core.OK(), State: core.StateShutdown}, nil
}
