package schema

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/heraldhq/herald/pkg/errors"
)

// Builder assembles a Schema through a fluent chain. Problems are collected
// as the chain runs and reported together by Build, so definitions read as
// one declaration. Builders are construction-phase only and not safe for
// concurrent use.
//
// Example:
//
//	s, err := schema.NewBuilder("twilio", "sms", "1.0.0").
//	    WithDisplayName("Twilio SMS").
//	    WithCapabilities(schema.CapabilitySend, schema.CapabilityMessageStatus).
//	    WithParameter(schema.Parameter{Name: "Region", DataType: schema.DataTypeString}).
//	    WithEndpoint(schema.EndpointTypePhoneNumber, true, true).
//	    WithContentType(schema.ContentTypeText).
//	    WithAuthentication(schema.AuthMethodBasic, "Basic",
//	        schema.AuthField{Name: "AccountSid", Role: schema.FieldRoleUsername},
//	        schema.AuthField{Name: "AuthToken", Role: schema.FieldRolePassword, Sensitive: true}).
//	    Build()
type Builder struct {
	schema *Schema
	errs   []error
}

// NewBuilder starts a schema definition for the given identity triple.
// Validation of the triple itself is deferred to Build.
func NewBuilder(provider, channelType, version string) *Builder {
	return &Builder{
		schema: &Schema{
			identity:    Identity{Provider: provider, ChannelType: channelType, Version: version},
			displayName: strings.TrimSpace(provider + " " + channelType),
			strict:      true,
		},
	}
}

func (b *Builder) collect(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// WithDisplayName sets the human-readable schema name.
func (b *Builder) WithDisplayName(name string) *Builder {
	b.schema.displayName = name
	return b
}

// WithCapability declares one capability.
func (b *Builder) WithCapability(c Capability) *Builder {
	b.collect(b.schema.AddCapability(c))
	return b
}

// WithCapabilities declares several capabilities at once.
func (b *Builder) WithCapabilities(caps ...Capability) *Builder {
	for _, c := range caps {
		b.collect(b.schema.AddCapability(c))
	}
	return b
}

// WithParameter declares a connection parameter.
func (b *Builder) WithParameter(p Parameter) *Builder {
	b.collect(b.schema.AddParameter(p))
	return b
}

// WithRequiredParameter declares a required connection parameter of the
// given type.
func (b *Builder) WithRequiredParameter(name string, dt DataType) *Builder {
	return b.WithParameter(Parameter{Name: name, DataType: dt, Required: true})
}

// WithMessageProperty declares a per-message property.
func (b *Builder) WithMessageProperty(p MessageProperty) *Builder {
	b.collect(b.schema.AddMessageProperty(p))
	return b
}

// WithEndpoint declares an endpoint type with its direction flags.
func (b *Builder) WithEndpoint(t EndpointType, canSend, canReceive bool) *Builder {
	b.collect(b.schema.AddEndpoint(EndpointConfig{Type: t, CanSend: canSend, CanReceive: canReceive}))
	return b
}

// WithRequiredEndpoint declares an endpoint type that messages must carry.
func (b *Builder) WithRequiredEndpoint(t EndpointType, canSend, canReceive bool) *Builder {
	b.collect(b.schema.AddEndpoint(EndpointConfig{Type: t, CanSend: canSend, CanReceive: canReceive, Required: true}))
	return b
}

// WithContentType declares one supported content type.
func (b *Builder) WithContentType(c ContentType) *Builder {
	b.collect(b.schema.AddContentType(c))
	return b
}

// WithContentTypes declares several content types at once.
func (b *Builder) WithContentTypes(types ...ContentType) *Builder {
	for _, c := range types {
		b.collect(b.schema.AddContentType(c))
	}
	return b
}

// WithAuthentication declares a fixed authentication method whose every
// field is required.
func (b *Builder) WithAuthentication(method AuthMethod, displayName string, fields ...AuthField) *Builder {
	b.collect(b.schema.AddAuthenticationConfiguration(AuthenticationConfiguration{
		Method:      method,
		DisplayName: displayName,
		Fields:      fields,
	}))
	return b
}

// WithFlexibleAuthentication declares an authentication method satisfied by
// any one complete field group.
func (b *Builder) WithFlexibleAuthentication(method AuthMethod, displayName string, groups ...FieldGroup) *Builder {
	b.collect(b.schema.AddAuthenticationConfiguration(AuthenticationConfiguration{
		Method:      method,
		DisplayName: displayName,
		Groups:      groups,
	}))
	return b
}

// WithNoAuthentication declares the always-satisfied None method.
func (b *Builder) WithNoAuthentication() *Builder {
	b.collect(b.schema.AddAuthenticationConfiguration(AuthenticationConfiguration{Method: AuthMethodNone}))
	return b
}

// WithStrictValidation toggles rejection of unknown settings keys and
// message properties. Definitions are strict unless switched off.
func (b *Builder) WithStrictValidation(strict bool) *Builder {
	b.schema.SetStrictValidation(strict)
	return b
}

// Build finishes the definition, reporting every collected problem at once.
func (b *Builder) Build() (*Schema, error) {
	if b.schema.identity.Provider == "" {
		b.errs = append(b.errs, errors.New(errors.ErrorTypeValidation, "schema provider id must not be empty"))
	}
	if b.schema.identity.ChannelType == "" {
		b.errs = append(b.errs, errors.New(errors.ErrorTypeValidation, "schema channel type must not be empty"))
	}
	if b.schema.identity.Version == "" {
		b.errs = append(b.errs, errors.New(errors.ErrorTypeValidation, "schema version must not be empty"))
	} else if _, err := semver.NewVersion(b.schema.identity.Version); err != nil {
		b.errs = append(b.errs, errors.Newf(errors.ErrorTypeValidation,
			"schema version '%s' is not a valid semantic version", b.schema.identity.Version))
	}

	if len(b.errs) > 0 {
		msgs := make([]string, 0, len(b.errs))
		for _, err := range b.errs {
			msgs = append(msgs, err.Error())
		}
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"invalid schema definition: %s", strings.Join(msgs, "; "))
	}
	return b.schema, nil
}

// MustBuild is Build for definitions known to be well-formed, such as
// compiled-in channel registrations. It panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return s
}
