// Package runtime wraps a messaging provider in the connector lifecycle
// state machine. It owns state gating, capability gating, message
// validation, authentication, batch fan-out, and observability; the
// provider's hooks only talk to the provider API.
//
// Every operational entry point returns (result, error). A non-nil
// error is a contract fault: the call was made in the wrong state, the
// channel never declared the capability, or an argument was invalid.
// Expected failures always come back inside the result with a stable
// code, so callers branch on exactly one of the two.
package runtime

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/heraldhq/herald/internal/dispatch"
	"github.com/heraldhq/herald/pkg/auth"
	"github.com/heraldhq/herald/pkg/clients"
	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/connector/core"
	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/logger"
	"github.com/heraldhq/herald/pkg/metrics"
	"github.com/heraldhq/herald/pkg/observability"
	"github.com/heraldhq/herald/pkg/schema"
	"github.com/heraldhq/herald/pkg/settings"
)

// Connector drives one provider instance through the lifecycle
// Uninitialized -> Initializing -> Ready -> ShuttingDown -> Shutdown,
// with Error as the destination of failed initialization.
//
// The state guards check-then-transition without serializing concurrent
// Initialize calls; the state value itself is stored atomically so
// reads are tear-free. Once Ready, operational calls may run
// concurrently.
type Connector struct {
	schema   *schema.Schema
	provider core.Provider
	store    *settings.Store

	logger     *zap.Logger
	collector  *metrics.Collector
	tracer     *observability.ChannelTracer
	propagator *observability.TracePropagator
	auth       *auth.Authenticator
	dispatcher *dispatch.Dispatcher

	state      atomic.Int32
	credential atomic.Pointer[auth.Credential]

	dispatchCfg config.DispatchConfig
}

// Option configures a Connector at construction time.
type Option func(*Connector)

// WithLogger replaces the default channel-scoped logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) {
		c.logger = l
	}
}

// WithAuthenticator replaces the default authenticator. Connectors for
// channels that declare client-credentials authentication use this to
// supply a custom token exchanger.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(c *Connector) {
		c.auth = a
	}
}

// WithDispatchConfig tunes the batch fan-out used when the provider has
// no native batch endpoint.
func WithDispatchConfig(cfg config.DispatchConfig) Option {
	return func(c *Connector) {
		c.dispatchCfg = cfg
	}
}

// New wraps a provider in the lifecycle runtime. The settings store
// must be bound to the same channel schema the connector runs under.
func New(s *schema.Schema, provider core.Provider, store *settings.Store, opts ...Option) (*Connector, error) {
	if s == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "schema must not be nil")
	}
	if provider == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "provider must not be nil")
	}
	if store == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "settings store must not be nil")
	}
	if !store.Schema().IsCompatibleWith(s) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"settings store is bound to %s/%s/%s, not to %s/%s/%s",
			store.Schema().Provider(), store.Schema().ChannelType(), store.Schema().Version(),
			s.Provider(), s.ChannelType(), s.Version())
	}

	c := &Connector{
		schema:   s,
		provider: provider,
		store:    store,
		logger: logger.Get().With(
			zap.String("provider", s.Provider()),
			zap.String("channel", s.ChannelType())),
		collector:  metrics.NewCollector(s.Provider(), s.ChannelType()),
		tracer:     observability.NewChannelTracer(s.Provider(), s.ChannelType()),
		propagator: observability.NewTracePropagator(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.auth == nil {
		c.auth = auth.NewAuthenticator(auth.WithTokenExchanger(clients.NewOAuth2Exchanger()))
	}
	c.dispatcher = dispatch.New(c.dispatchCfg, c.logger)

	c.state.Store(int32(core.StateUninitialized))
	c.collector.SetState(int32(core.StateUninitialized))
	return c, nil
}

// Schema returns the channel schema the connector runs under.
func (c *Connector) Schema() *schema.Schema {
	return c.schema
}

// State returns the current lifecycle state.
func (c *Connector) State() core.ConnectorState {
	return core.ConnectorState(c.state.Load())
}

// Credential returns the credential resolved during Initialize, or nil
// when the channel needed none.
func (c *Connector) Credential() *auth.Credential {
	return c.credential.Load()
}

// setState stores the new state and mirrors it into the state gauge.
func (c *Connector) setState(s core.ConnectorState) {
	old := core.ConnectorState(c.state.Swap(int32(s)))
	c.collector.SetState(int32(s))
	c.logger.Info("connector state changed",
		zap.String("from", old.String()),
		zap.String("to", s.String()))
}

// requireReady returns a contract fault unless the connector is Ready.
func (c *Connector) requireReady(op string) error {
	if s := c.State(); s != core.StateReady {
		c.collector.RecordFault(op)
		return errors.Newf(errors.ErrorTypeState,
			"operation %s requires the Ready state; connector is %s", op, s)
	}
	return nil
}

// requireCapability returns a contract fault unless the schema declares
// the capability the operation needs.
func (c *Connector) requireCapability(op string, capability schema.Capability) error {
	if !c.schema.HasCapability(capability) {
		c.collector.RecordFault(op)
		return errors.Newf(errors.ErrorTypeCapability,
			"channel %s/%s does not support %s", c.schema.Provider(), c.schema.ChannelType(), capability)
	}
	return nil
}

// authenticate resolves a credential for the first declared
// authentication configuration the settings satisfy. A declared None
// method keeps unauthenticated operation allowed when nothing else
// matches.
func (c *Connector) authenticate(ctx context.Context) (*auth.Credential, error) {
	values := c.store.Raw()
	noneDeclared := false
	problems := schema.NewValidationResult()

	for _, cfg := range c.schema.AuthenticationConfigurations() {
		if strings.EqualFold(string(cfg.Method), string(schema.AuthMethodNone)) {
			noneDeclared = true
			continue
		}
		outcome := schema.EvaluateAuthentication(cfg, values)
		if outcome.Valid() {
			return c.auth.Authenticate(ctx, c.store, cfg)
		}
		problems.Merge(outcome)
	}

	if noneDeclared {
		return nil, nil
	}
	return nil, errors.New(errors.ErrorTypeAuthentication,
		"no declared authentication method is satisfied by the connection settings").
		WithDetail("problems", problems.Summary())
}
