// Package herald is a framework for hosting messaging channel connectors
// behind one uniform lifecycle: SMS, chat, email, push, or any other
// channel a provider exposes, driven through the same operation surface.
//
// A channel declares what it supports in a schema: capabilities,
// connection parameters, per-message properties, endpoint types, content
// types, and authentication methods. Everything else follows from that
// declaration. Settings are validated against the schema before a
// connector is built, messages are validated against it before they reach
// the provider, and operations the schema does not declare fail uniformly
// without provider code running.
//
// # Architecture
//
// Herald separates what a channel is from how it talks to its provider:
//
// 1. Schema (pkg/schema): the declarative descriptor, built once through
// a Builder, with validation, derivation, and restriction rules.
//
// 2. Settings (pkg/settings): typed, schema-validated connection values
// with defaults and case-insensitive lookup.
//
// 3. Authentication (pkg/auth): schema-declared auth methods evaluated
// against settings, producing cached credentials; token exchange for
// client-credential flows lives behind an interface (pkg/clients).
//
// 4. Runtime (pkg/connector/runtime): the connector itself. It owns the
// state machine, gates every operation on state and declared capability,
// validates messages, authenticates, traces, and delegates provider I/O
// to a small set of hooks (pkg/connector/core).
//
// 5. Registry (pkg/connector/registry): channel definitions by identity
// with semver-aware resolution and a catalog for tooling.
//
// # Quick Start
//
// Send a message through the built-in loopback channel:
//
//	import (
//	    "context"
//
//	    "github.com/heraldhq/herald/pkg/connector/registry"
//	    "github.com/heraldhq/herald/pkg/message"
//
//	    _ "github.com/heraldhq/herald/pkg/connector/providers/loopback"
//	)
//
//	conn, err := registry.NewConnector("herald", "loopback", "", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if _, err := conn.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Shutdown(ctx)
//
//	result, err := conn.Send(ctx, &message.Message{
//	    ID:          "m-1",
//	    Receiver:    message.Endpoint{Type: "UserId", Address: "oncall"},
//	    ContentType: "Text",
//	    Content:     "hello",
//	})
//
// Expected operational failures (invalid message, provider rejection,
// cancellation) come back as results with Successful=false and a stable
// code; contract violations (wrong state, undeclared capability, nil
// arguments) come back as errors.
//
// The herald CLI (cmd/herald) lists registered channels, prints schemas,
// validates configuration files against them, and sends test messages.
package herald
