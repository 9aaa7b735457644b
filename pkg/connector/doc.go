// Package connector hosts the channel connector framework: the provider
// hook contracts, the runtime that drives them, the registry that holds
// channel definitions, and the built-in channels.
//
// # Sub-packages
//
//   - core: the contracts between the framework and provider code. A
//     Provider implements four mandatory hooks (Setup, Teardown, Send,
//     TestConnection); optional interfaces (BatchSender, StatusQuerier,
//     Receiver, StatusReceiver, HealthReporter) unlock the rest of the
//     operation surface. Results and stable failure codes live here too.
//
//   - runtime: the connector. It owns the Uninitialized/Ready/Error/
//     Shutdown state machine, gates every operation on state and declared
//     capability, validates messages against the channel schema, resolves
//     credentials, traces operations, and fans batch sends out over a
//     bounded worker pool when the provider has no native batch hook.
//
//   - registry: channel definitions keyed by provider/channel@version,
//     with semver-aware latest-version resolution, a catalog for tooling,
//     and one-call connector construction from a raw settings map.
//
//   - providers/loopback: the built-in in-memory channel. Sends echo back
//     as inbound messages, every accepted send produces a delivery report,
//     and latency and queue bounds are tunable through settings. Used by
//     the CLI, the examples, and as the reference for writing providers.
//
// # Writing a provider
//
// Declare the channel in a schema, implement core.Provider plus whichever
// optional hooks the schema's capabilities promise, and register a
// factory:
//
//	var channelSchema = schema.NewBuilder("acme", "chat", "1.0.0").
//	    WithCapabilities(schema.CapabilitySend, schema.CapabilityReceive).
//	    WithRequiredParameter("ApiKey", schema.DataTypeString).
//	    WithEndpoint(schema.EndpointTypeUserID, true, true).
//	    WithContentType(schema.ContentTypeText).
//	    WithNoAuthentication().
//	    MustBuild()
//
//	func init() {
//	    registry.MustRegister(registry.Definition{
//	        Schema:  channelSchema,
//	        Factory: func() core.Provider { return &chatProvider{} },
//	    })
//	}
//
// The framework owns gating, validation, authentication, tracing, and
// result shaping; the provider only talks to its service.
//
// Capabilities are promises: a schema that declares BatchSend, Receive,
// or MessageStatus must be paired with a provider implementing the
// matching optional interface, or those operations fail as contract
// faults at call time.
package connector
